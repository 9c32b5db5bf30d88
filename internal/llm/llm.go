// Package llm defines the text generation driver used by the structuring and
// output stages, with a deterministic mock for development and testing and
// an OpenAI-backed driver for production.
package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Driver produces model text for a prompt. Implementations must be safe for
// concurrent use.
type Driver interface {
	// Kind identifies the driver ("mock", "openai").
	Kind() string

	// Generate returns the model's completion for prompt. The context
	// carries the generation deadline.
	Generate(ctx context.Context, prompt string) (string, error)

	// HealthCheck verifies the driver can reach its backend.
	HealthCheck(ctx context.Context) error
}

// ExtractJSONBlock pulls a JSON object out of model output. Well-formed
// output passes through untouched; otherwise the text between the first '{'
// and the last '}' is tried, which strips code fences and prose wrappers.
func ExtractJSONBlock(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return trimmed, true
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	candidate := trimmed[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}
