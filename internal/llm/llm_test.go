package llm_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stratumhealth/carepipe/internal/llm"
	"github.com/stratumhealth/carepipe/internal/schema"
)

func TestExtractJSONBlock(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"clean", `{"a": 1}`, `{"a": 1}`, true},
		{"whitespace", "  {\"a\": 1}\n", `{"a": 1}`, true},
		{"code fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"prose wrapper", `Here is the result: {"a": 1} hope that helps`, `{"a": 1}`, true},
		{"nested braces", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`, true},
		{"no json", "no braces here", "", false},
		{"broken json", `{"a": `, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := llm.ExtractJSONBlock(tc.input)
			if ok != tc.ok {
				t.Fatalf("ExtractJSONBlock(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("ExtractJSONBlock(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestMockStructuring(t *testing.T) {
	d := llm.NewMockDriver()
	prompt := "Turn the intake below into structured JSON.\n\n" +
		llm.RawIntakeMarker + "\n" +
		"I have had a severe headache and some nausea for the past 3 days."

	out, err := d.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	v, err := schema.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	if err := v.ValidateStructured([]byte(out)); err != nil {
		t.Fatalf("mock structuring output failed schema: %v\noutput: %s", err, out)
	}

	var structured struct {
		ChiefComplaint string   `json:"chief_complaint"`
		Symptoms       []string `json:"symptoms"`
		Severity       *string  `json:"severity"`
	}
	if err := json.Unmarshal([]byte(out), &structured); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !strings.Contains(structured.ChiefComplaint, "headache") {
		t.Errorf("chief_complaint = %q, want the raw text", structured.ChiefComplaint)
	}
	if len(structured.Symptoms) < 2 {
		t.Errorf("symptoms = %v, want headache and nausea", structured.Symptoms)
	}
	if structured.Severity == nil || *structured.Severity != "severe" {
		t.Errorf("severity = %v, want severe", structured.Severity)
	}
}

func TestMockStructuringDeterministic(t *testing.T) {
	d := llm.NewMockDriver()
	prompt := llm.RawIntakeMarker + "\nmild cough for two days"

	first, err := d.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := d.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if first != second {
		t.Fatalf("mock output not deterministic:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestMockReport(t *testing.T) {
	d := llm.NewMockDriver()
	prompt := "Write the report.\n\n" +
		llm.StructuredInputMarker + "\n" +
		`{"chief_complaint": "mild cough", "symptoms": ["cough"], "duration": "2 days", "severity": "mild", "additional_context": null}`

	out, err := d.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	v, err := schema.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	if err := v.ValidateReport([]byte(out)); err != nil {
		t.Fatalf("mock report failed schema: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "not medical advice") {
		t.Errorf("report missing disclaimer: %s", out)
	}
}

func TestMockUnknownPrompt(t *testing.T) {
	d := llm.NewMockDriver()
	if _, err := d.Generate(context.Background(), "no markers at all"); err == nil {
		t.Fatal("Generate() without markers = nil error, want error")
	}
}
