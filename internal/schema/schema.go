// Package schema validates model JSON output against the pipeline's embedded
// JSON Schemas. Schemas are compiled once at startup; both schemas set
// additionalProperties to false so a drifting model cannot smuggle extra
// fields past the pipeline.
package schema

import (
	_ "embed"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

//go:embed structured_output.json
var structuredOutputSchema []byte

//go:embed report_output.json
var reportOutputSchema []byte

// ValidationError carries the schema name and the validator's findings for a
// rejected document.
type ValidationError struct {
	Schema string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s schema validation failed: %s", e.Schema, e.Detail)
}

// Validator holds the compiled pipeline schemas.
type Validator struct {
	structured *jsonschema.Schema
	report     *jsonschema.Schema
}

// NewValidator compiles the embedded schemas. Compilation failure means the
// binary shipped with a broken schema, so callers treat it as fatal.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	structured, err := compiler.Compile(structuredOutputSchema)
	if err != nil {
		return nil, fmt.Errorf("compile structured output schema: %w", err)
	}
	report, err := compiler.Compile(reportOutputSchema)
	if err != nil {
		return nil, fmt.Errorf("compile report output schema: %w", err)
	}
	return &Validator{structured: structured, report: report}, nil
}

// ValidateStructured checks raw JSON against the structured output schema.
func (v *Validator) ValidateStructured(data []byte) error {
	return v.check("structured_output", v.structured, data)
}

// ValidateReport checks raw JSON against the report output schema.
func (v *Validator) ValidateReport(data []byte) error {
	return v.check("report_output", v.report, data)
}

func (v *Validator) check(name string, schema *jsonschema.Schema, data []byte) error {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return &ValidationError{Schema: name, Detail: fmt.Sprintf("%v", result.Errors)}
}
