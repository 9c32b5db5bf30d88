// Package guard implements the rule-based safety layer applied to every
// generated report before it leaves the pipeline. It masks personally
// identifying information, blocks diagnostic and prescriptive language, and
// appends emergency guidance when crisis indicators are present.
//
// Evaluation is pure: the same input text always yields the same result,
// and the guard holds no state between calls.
package guard

import (
	"regexp"
	"strings"

	"github.com/stratumhealth/carepipe/pkg/models"
)

// EmergencyGuidance is appended to reports that mention crisis indicators.
// It is appended at most once per report.
const EmergencyGuidance = "\n\nIMPORTANT: Some of what you described may indicate an urgent medical situation. " +
	"This service cannot assess emergencies. If you are experiencing severe symptoms, " +
	"please call your local emergency number or go to the nearest emergency department immediately."

type phiRule struct {
	class       string
	placeholder string
	re          *regexp.Regexp
}

// Strong PHI classes are masked unconditionally, in a fixed order so that
// overlapping matches resolve the same way on every run. More specific
// classes run before broader ones (SSN before generic ID, dates before ZIP).
var phiRules = []phiRule{
	{"ssn", "[PHI_SSN]", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"email", "[PHI_EMAIL]", regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)},
	{"phone", "[PHI_PHONE]", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"date", "[PHI_DATE]", regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)},
	{"mrn", "[PHI_ID]", regexp.MustCompile(`(?i)\b(?:mrn|medical record|record number|patient id)[:\s#]*\d{4,}\b`)},
	{"zip", "[PHI_ZIP]", regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)},
}

// Person names only mask when the surrounding text signals identification;
// a bare capitalized phrase ("Severe Headache") is not PHI.
var (
	nameRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s[A-Z][a-z]+)+\b`)

	nameHints = []string{
		"my name is", "i am called", "call me", "contact", "reached at",
		"patient name", "this is",
	}
)

// Diagnostic language is a hard violation: the report is blocked, never
// rewritten. These run against the text after PHI masking.
var diagnosisRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\byou (?:likely |probably |clearly |definitely )?have\b`),
	regexp.MustCompile(`(?i)\byou are suffering from\b`),
	regexp.MustCompile(`(?i)\bdiagnos(?:e|is|ed|tic conclusion)\b`),
	regexp.MustCompile(`(?i)\bthis (?:is|confirms) (?:a case of|likely)\b`),
	regexp.MustCompile(`(?i)\byour condition is\b`),
	regexp.MustCompile(`(?i)\bconsistent with a diagnosis\b`),
}

var prescriptionRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\byou should take\b`),
	regexp.MustCompile(`(?i)\btake \d+\s?(?:mg|mcg|ml|g|tablets?|pills?|capsules?)\b`),
	regexp.MustCompile(`(?i)\b(?:start|stop|increase|decrease) (?:taking|your) (?:dose|dosage|medication)\b`),
	regexp.MustCompile(`(?i)\bi (?:prescribe|recommend taking)\b`),
	regexp.MustCompile(`(?i)\btwice (?:a day|daily) for \d+ days?\b`),
}

var crisisRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bchest pain\b`),
	regexp.MustCompile(`(?i)\b(?:trouble|difficulty) breathing\b`),
	regexp.MustCompile(`(?i)\bshortness of breath\b`),
	regexp.MustCompile(`(?i)\bcan(?:not|'t) breathe\b`),
	regexp.MustCompile(`(?i)\bsevere bleeding\b`),
	regexp.MustCompile(`(?i)\bstroke\b`),
	regexp.MustCompile(`(?i)\bloss of consciousness\b`),
	regexp.MustCompile(`(?i)\bfaint(?:ed|ing)?\b`),
	regexp.MustCompile(`(?i)\bsuicid(?:e|al)\b`),
	regexp.MustCompile(`(?i)\bkill myself\b`),
	regexp.MustCompile(`(?i)\bself[- ]harm\b`),
	regexp.MustCompile(`(?i)\boverdose\b`),
}

// Evaluate runs the full rule set against text and returns the verdict.
// Rules apply in a fixed order: PHI masking first, then hard diagnostic and
// prescriptive checks against the masked text, then crisis detection.
// Masking is idempotent: evaluating already-masked output produces no new
// violations and the same text.
func Evaluate(text string) models.GuardResult {
	res := models.GuardResult{
		Severity:   models.SeverityLow,
		Violations: []models.Violation{},
		Actions:    []string{},
	}
	masked := text

	for _, rule := range phiRules {
		matches := rule.re.FindAllString(masked, -1)
		for _, m := range matches {
			res.Violations = append(res.Violations, models.Violation{
				Kind:        models.ViolationPHI,
				Class:       rule.class,
				Match:       m,
				Replacement: rule.placeholder,
			})
		}
		if len(matches) > 0 {
			masked = rule.re.ReplaceAllString(masked, rule.placeholder)
		}
	}
	masked = maskNames(masked, &res)
	if len(res.Violations) > 0 {
		res.Severity = models.SeverityMedium
		res.Actions = append(res.Actions, "mask_phi")
	}

	blockedDiagnosis := scanHard(masked, diagnosisRes, models.ViolationDiagnosis, &res)
	blockedPrescription := scanHard(masked, prescriptionRes, models.ViolationPrescription, &res)
	if blockedDiagnosis {
		res.Actions = append(res.Actions, "block_diagnosis")
	}
	if blockedPrescription {
		res.Actions = append(res.Actions, "block_prescription")
	}
	if blockedDiagnosis || blockedPrescription {
		res.Blocked = true
		res.Severity = models.SeverityHigh
	}

	for _, re := range crisisRes {
		if m := re.FindString(masked); m != "" {
			res.Crisis = true
			res.Severity = models.SeverityHigh
			res.Violations = append(res.Violations, models.Violation{
				Kind:  models.ViolationCrisis,
				Class: "crisis",
				Match: m,
			})
		}
	}
	if res.Crisis && !strings.Contains(masked, strings.TrimSpace(EmergencyGuidance)) {
		masked += EmergencyGuidance
		res.Actions = append(res.Actions, "add_emergency_guidance")
	}

	res.MaskedText = masked
	return res
}

// EvaluateParts evaluates several report fields as one unit: each part is
// masked independently, the verdicts are merged, and crisis guidance is NOT
// appended (the caller decides where it belongs). The returned slice holds
// the masked parts in input order.
func EvaluateParts(parts []string) (models.GuardResult, []string) {
	combined := models.GuardResult{
		Severity:   models.SeverityLow,
		Violations: []models.Violation{},
		Actions:    []string{},
	}
	masked := make([]string, len(parts))

	for i, part := range parts {
		res := Evaluate(part)
		masked[i] = strings.TrimSuffix(res.MaskedText, EmergencyGuidance)

		combined.Violations = append(combined.Violations, res.Violations...)
		combined.Blocked = combined.Blocked || res.Blocked
		combined.Crisis = combined.Crisis || res.Crisis
		if severityRank(res.Severity) > severityRank(combined.Severity) {
			combined.Severity = res.Severity
		}
		for _, a := range res.Actions {
			if a != "add_emergency_guidance" && !containsString(combined.Actions, a) {
				combined.Actions = append(combined.Actions, a)
			}
		}
	}
	return combined, masked
}

func severityRank(s models.GuardSeverity) int {
	switch s {
	case models.SeverityHigh:
		return 2
	case models.SeverityMedium:
		return 1
	}
	return 0
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ContainsPHIIndicators reports whether raw intake text mentions personal
// identifiers, either structurally (a strong PHI pattern matches) or by
// keyword. Used by the intake consent gate.
func ContainsPHIIndicators(text string) bool {
	for _, rule := range phiRules {
		if rule.re.MatchString(text) {
			return true
		}
	}
	lower := strings.ToLower(text)
	for _, kw := range []string{
		"name", "dob", "date of birth", "ssn", "id number",
		"address", "phone", "email", "patient",
	} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func maskNames(text string, res *models.GuardResult) string {
	lower := strings.ToLower(text)
	hinted := false
	for _, h := range nameHints {
		if strings.Contains(lower, h) {
			hinted = true
			break
		}
	}
	if !hinted {
		return text
	}
	matches := nameRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return text
	}
	for _, m := range matches {
		res.Violations = append(res.Violations, models.Violation{
			Kind:        models.ViolationPHI,
			Class:       "name",
			Match:       m,
			Replacement: "[PHI_NAME]",
		})
	}
	return nameRe.ReplaceAllString(text, "[PHI_NAME]")
}

func scanHard(text string, rules []*regexp.Regexp, kind string, res *models.GuardResult) bool {
	hit := false
	for _, re := range rules {
		if m := re.FindString(text); m != "" {
			hit = true
			res.Violations = append(res.Violations, models.Violation{
				Kind:  kind,
				Class: kind,
				Match: m,
				Hard:  true,
			})
		}
	}
	return hit
}
