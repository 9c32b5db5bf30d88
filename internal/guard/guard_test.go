package guard_test

import (
	"strings"
	"testing"

	"github.com/stratumhealth/carepipe/internal/guard"
	"github.com/stratumhealth/carepipe/pkg/models"
)

func TestEvaluateCleanText(t *testing.T) {
	res := guard.Evaluate("Mild seasonal congestion reported over the past two days. Rest and hydration discussed as general wellness measures.")
	if res.Blocked {
		t.Fatalf("Evaluate() blocked clean text: %+v", res.Violations)
	}
	if res.Crisis {
		t.Fatal("Evaluate() flagged crisis on clean text")
	}
	if len(res.Violations) != 0 {
		t.Fatalf("Evaluate() violations = %d, want 0", len(res.Violations))
	}
	if res.Severity != models.SeverityLow {
		t.Fatalf("Severity = %q, want low", res.Severity)
	}
	// A clean verdict still serializes violations and actions as [].
	if res.Violations == nil {
		t.Fatal("Violations is nil, want empty slice")
	}
	if res.Actions == nil {
		t.Fatal("Actions is nil, want empty slice")
	}
}

func TestEvaluatePartsCleanVerdictNotNil(t *testing.T) {
	res, masked := guard.EvaluateParts([]string{
		"Mild seasonal congestion reported.",
		"Rest and hydration discussed.",
	})
	if len(masked) != 2 {
		t.Fatalf("masked parts = %d, want 2", len(masked))
	}
	if res.Violations == nil {
		t.Fatal("Violations is nil, want empty slice")
	}
	if res.Actions == nil {
		t.Fatal("Actions is nil, want empty slice")
	}
}

func TestEvaluateMasksPHI(t *testing.T) {
	text := "Patient SSN 123-45-6789, reach me at jane.doe@example.com or 555-123-4567, visit on 2025-03-14."
	res := guard.Evaluate(text)

	if res.Blocked {
		t.Fatal("PHI alone must mask, not block")
	}
	for _, want := range []string{"[PHI_SSN]", "[PHI_EMAIL]", "[PHI_PHONE]", "[PHI_DATE]"} {
		if !strings.Contains(res.MaskedText, want) {
			t.Errorf("MaskedText missing %s: %q", want, res.MaskedText)
		}
	}
	for _, leaked := range []string{"123-45-6789", "jane.doe@example.com", "555-123-4567", "2025-03-14"} {
		if strings.Contains(res.MaskedText, leaked) {
			t.Errorf("MaskedText leaked %q", leaked)
		}
	}
	if res.Severity != models.SeverityMedium {
		t.Fatalf("Severity = %q, want medium", res.Severity)
	}
	if !containsAction(res, "mask_phi") {
		t.Fatalf("Actions = %v, want mask_phi", res.Actions)
	}
}

func TestEvaluateNameNeedsContext(t *testing.T) {
	// Capitalized phrase without an identification hint stays untouched.
	res := guard.Evaluate("Severe Headache And Nausea reported this morning.")
	if strings.Contains(res.MaskedText, "[PHI_NAME]") {
		t.Fatalf("masked name without context hint: %q", res.MaskedText)
	}

	res = guard.Evaluate("My name is John Smith and the headaches keep coming back.")
	if !strings.Contains(res.MaskedText, "[PHI_NAME]") {
		t.Fatalf("did not mask hinted name: %q", res.MaskedText)
	}
	if strings.Contains(res.MaskedText, "John Smith") {
		t.Fatalf("MaskedText leaked name: %q", res.MaskedText)
	}
}

func TestEvaluateBlocksDiagnosis(t *testing.T) {
	for _, text := range []string{
		"You likely have pneumonia and should rest.",
		"You have bronchitis.",
		"This pattern is consistent with a diagnosis of migraine.",
		"You are suffering from acute sinusitis.",
	} {
		res := guard.Evaluate(text)
		if !res.Blocked {
			t.Errorf("Evaluate(%q) not blocked", text)
			continue
		}
		if res.Severity != models.SeverityHigh {
			t.Errorf("Evaluate(%q) severity = %q, want high", text, res.Severity)
		}
		if !containsAction(res, "block_diagnosis") {
			t.Errorf("Evaluate(%q) actions = %v, want block_diagnosis", text, res.Actions)
		}
	}
}

func TestEvaluateBlocksPrescription(t *testing.T) {
	for _, text := range []string{
		"You should take ibuprofen with food.",
		"Take 400 mg every six hours.",
		"I recommend taking amoxicillin twice daily.",
	} {
		res := guard.Evaluate(text)
		if !res.Blocked {
			t.Errorf("Evaluate(%q) not blocked", text)
		}
		if res.Blocked && !containsAction(res, "block_prescription") {
			t.Errorf("Evaluate(%q) actions = %v, want block_prescription", text, res.Actions)
		}
	}
}

func TestEvaluateCrisisAppendsGuidance(t *testing.T) {
	res := guard.Evaluate("Reported ongoing chest pain and shortness of breath since last night.")
	if !res.Crisis {
		t.Fatal("Evaluate() did not flag crisis")
	}
	if res.Blocked {
		t.Fatal("crisis alone must not block the report")
	}
	if !strings.Contains(res.MaskedText, "emergency") {
		t.Fatalf("MaskedText missing emergency guidance: %q", res.MaskedText)
	}
	if !containsAction(res, "add_emergency_guidance") {
		t.Fatalf("Actions = %v, want add_emergency_guidance", res.Actions)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	text := "Patient SSN 123-45-6789 reported chest pain, contact Jane Doe."
	first := guard.Evaluate(text)
	second := guard.Evaluate(first.MaskedText)

	if second.MaskedText != first.MaskedText {
		t.Fatalf("re-evaluation changed text:\nfirst:  %q\nsecond: %q", first.MaskedText, second.MaskedText)
	}
	for _, v := range second.Violations {
		if v.Kind == models.ViolationPHI {
			t.Fatalf("re-evaluation found new PHI violation: %+v", v)
		}
	}
	if count := strings.Count(second.MaskedText, "IMPORTANT:"); count != 1 {
		t.Fatalf("emergency guidance appended %d times, want 1", count)
	}
}

func TestContainsPHIIndicators(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"My name is on file, call my phone.", true},
		{"SSN is 123-45-6789", true},
		{"patient reports mild headache", true},
		{"mild headache for two days", false},
		{"sore throat and fatigue", false},
	}
	for _, tc := range cases {
		if got := guard.ContainsPHIIndicators(tc.text); got != tc.want {
			t.Errorf("ContainsPHIIndicators(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func containsAction(res models.GuardResult, action string) bool {
	for _, a := range res.Actions {
		if a == action {
			return true
		}
	}
	return false
}
