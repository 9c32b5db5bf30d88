package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Prompt section markers. The mock driver keys off these to decide which
// stage is calling it and to recover the user text from the prompt.
const (
	RawIntakeMarker       = "----- RAW INTAKE -----"
	StructuredInputMarker = "----- STRUCTURED INPUT -----"
)

// MockDriver is a deterministic, offline generation driver. Given the same
// prompt it always produces the same output, which keeps pipeline tests and
// local development reproducible without an API key.
type MockDriver struct{}

var _ Driver = (*MockDriver)(nil)

func NewMockDriver() *MockDriver { return &MockDriver{} }

func (d *MockDriver) Kind() string { return "mock" }

func (d *MockDriver) HealthCheck(_ context.Context) error { return nil }

func (d *MockDriver) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case strings.Contains(prompt, RawIntakeMarker):
		return d.structure(sectionAfter(prompt, RawIntakeMarker)), nil
	case strings.Contains(prompt, StructuredInputMarker):
		return d.report(sectionAfter(prompt, StructuredInputMarker)), nil
	default:
		return "", fmt.Errorf("mock driver: unrecognized prompt shape")
	}
}

var symptomKeywords = []string{
	"headache", "nausea", "fever", "cough", "fatigue", "dizziness",
	"sore throat", "congestion", "chest pain", "shortness of breath",
	"back pain", "insomnia", "anxiety", "rash", "vomiting", "chills",
}

var durationRe = regexp.MustCompile(`(?i)\b(?:for|over|past|since)\s+(?:the\s+)?(?:last\s+|past\s+)?([\w\s]{1,20}?(?:hours?|days?|weeks?|months?|years?|yesterday|morning|night))\b`)

// structure derives a plausible structured record from raw intake text using
// simple keyword and pattern extraction.
func (d *MockDriver) structure(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)

	complaint := raw
	if runes := []rune(complaint); len(runes) > 200 {
		complaint = string(runes[:200])
	}
	if complaint == "" {
		complaint = "general health concern"
	}

	symptoms := []string{}
	for _, kw := range symptomKeywords {
		if strings.Contains(lower, kw) {
			symptoms = append(symptoms, kw)
		}
	}

	var duration any
	if m := durationRe.FindStringSubmatch(raw); m != nil {
		duration = strings.TrimSpace(m[1])
	}

	var severity any
	switch {
	case strings.Contains(lower, "severe"), strings.Contains(lower, "unbearable"):
		severity = "severe"
	case strings.Contains(lower, "moderate"):
		severity = "moderate"
	case strings.Contains(lower, "mild"), strings.Contains(lower, "slight"):
		severity = "mild"
	}

	out, _ := json.Marshal(map[string]any{
		"chief_complaint":    complaint,
		"symptoms":           symptoms,
		"duration":           duration,
		"severity":           severity,
		"additional_context": nil,
	})
	return string(out)
}

// report turns a structured record (as JSON text inside the prompt) into a
// fixed-template wellness report. The wording stays informational: it never
// names a condition or a treatment, so it passes the safety layer cleanly
// unless the user's own words carry crisis indicators.
func (d *MockDriver) report(structuredJSON string) string {
	var structured struct {
		ChiefComplaint string   `json:"chief_complaint"`
		Symptoms       []string `json:"symptoms"`
		Duration       *string  `json:"duration"`
		Severity       *string  `json:"severity"`
	}
	// Tolerate a malformed section: fall back to a generic report.
	if block, ok := ExtractJSONBlock(structuredJSON); ok {
		_ = json.Unmarshal([]byte(block), &structured)
	}
	if structured.ChiefComplaint == "" {
		structured.ChiefComplaint = "your described health concern"
	}

	symptomLine := "No specific symptoms were identified from your description."
	if len(structured.Symptoms) > 0 {
		symptomLine = fmt.Sprintf("The following symptoms were noted: %s.", strings.Join(structured.Symptoms, ", "))
	}
	durationLine := ""
	if structured.Duration != nil && *structured.Duration != "" {
		durationLine = fmt.Sprintf(" Reported duration: %s.", *structured.Duration)
	}
	severityLine := ""
	if structured.Severity != nil && *structured.Severity != "" {
		severityLine = fmt.Sprintf(" Reported intensity: %s.", *structured.Severity)
	}

	out, _ := json.Marshal(map[string]any{
		"summary": fmt.Sprintf("A general wellness overview based on: %s.", strings.TrimRight(structured.ChiefComplaint, ".")),
		"sections": map[string]any{
			"overview": fmt.Sprintf("This report summarizes the information you shared about %s.",
				strings.TrimRight(structured.ChiefComplaint, ".")),
			"symptom_analysis": symptomLine + durationLine + severityLine,
			"insights": "General wellness factors such as rest, hydration, nutrition, and stress " +
				"management often influence how symptoms are experienced.",
			"risk_summary": "This service does not assess medical risk. A qualified clinician can " +
				"evaluate whether further attention is needed.",
			"recommendations": "Consider discussing these observations with a qualified healthcare " +
				"professional, and keep a simple log of when symptoms occur.",
		},
		"disclaimer": "This report is generated for informational purposes only and is not medical advice, " +
			"a medical opinion, or a substitute for consultation with a qualified healthcare professional.",
	})
	return string(out)
}

// sectionAfter returns the text following the given marker line.
func sectionAfter(prompt, marker string) string {
	idx := strings.Index(prompt, marker)
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(prompt[idx+len(marker):])
}
