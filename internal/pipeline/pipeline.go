// Package pipeline implements the staged run: intake, structuring, optional
// retrieval, output generation, safety evaluation, and optional persistence.
//
// The runner is deterministic given its drivers: every stage is pure or
// driven by an injected dependency, every run produces a complete stage
// trace, and all failures surface as typed stage errors rather than raw
// driver error text.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stratumhealth/carepipe/internal/guard"
	"github.com/stratumhealth/carepipe/internal/llm"
	"github.com/stratumhealth/carepipe/internal/rag"
	"github.com/stratumhealth/carepipe/internal/schema"
	"github.com/stratumhealth/carepipe/internal/store"
	"github.com/stratumhealth/carepipe/pkg/models"
)

// Version identifies the pipeline revision stamped on persisted records.
const Version = "v0.1.0"

const defaultGenerationTimeout = 30 * time.Second

// Options configures a Runner.
type Options struct {
	// EnableRAG switches the retrieval stage on. Requires a Retriever.
	EnableRAG bool
	// EnablePersistence switches the persistence stage on. Requires a Store.
	EnablePersistence bool
	// RequirePersistence promotes persistence failures from warnings to
	// run failures.
	RequirePersistence bool
	// GenerationTimeout bounds each model call.
	GenerationTimeout time.Duration
}

// Runner executes pipeline runs.
type Runner struct {
	generator llm.Driver
	retriever *rag.Retriever
	records   store.RecordStore
	validator *schema.Validator
	opts      Options
	log       zerolog.Logger
}

func NewRunner(generator llm.Driver, retriever *rag.Retriever, records store.RecordStore,
	validator *schema.Validator, opts Options, log zerolog.Logger) *Runner {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = defaultGenerationTimeout
	}
	if retriever == nil {
		opts.EnableRAG = false
	}
	if records == nil {
		opts.EnablePersistence = false
	}
	return &Runner{
		generator: generator,
		retriever: retriever,
		records:   records,
		validator: validator,
		opts:      opts,
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes the full pipeline for one submission. It always returns a
// result; the error taxonomy lives in result.Errors and per-stage status in
// result.Stages. A safety hard-block yields Success == false together with a
// sanitized fallback report.
func (r *Runner) Run(ctx context.Context, req models.RunRequest) *models.PipelineResult {
	result := &models.PipelineResult{
		TraceID: uuid.NewString(),
		Stages:  []models.StageTrace{},
		Errors:  []models.StageError{},
	}
	log := r.log.With().Str("trace_id", result.TraceID).Logger()

	// Intake.
	if fatal := r.timed(result, models.StageIntake, func() *models.StageError {
		in, err := ProcessIntake(req)
		if err != nil {
			return err
		}
		result.Intake = in
		return nil
	}); fatal != nil {
		return r.failed(result, fatal, log)
	}

	// Structuring.
	if fatal := r.timed(result, models.StageStructuring, func() *models.StageError {
		structured, err := r.structure(ctx, result.Intake.RawText)
		if err != nil {
			return err
		}
		result.Structured = structured
		return nil
	}); fatal != nil {
		return r.failed(result, fatal, log)
	}

	// Retrieval. Best effort: a failed trace is recorded, never fatal.
	if r.opts.EnableRAG {
		r.timed(result, models.StageRetrieval, func() *models.StageError {
			trace := r.retriever.Retrieve(ctx, result.Structured, result.Intake.RawText)
			result.RetrievalTrace = trace
			if trace.Failed {
				result.Errors = append(result.Errors, models.StageError{
					Kind:    models.ErrKindRetrievalFailure,
					Stage:   models.StageRetrieval,
					Message: "knowledge retrieval failed, report generated without context",
				})
			}
			return nil
		})
	} else {
		r.skip(result, models.StageRetrieval)
	}

	// Output.
	if fatal := r.timed(result, models.StageOutput, func() *models.StageError {
		report, err := r.generateReport(ctx, result.Structured, result.RetrievalTrace)
		if err != nil {
			return err
		}
		result.Report = report
		return nil
	}); fatal != nil {
		return r.failed(result, fatal, log)
	}

	// Safety. A hard block keeps the pipeline finishing, but the run is not
	// a success and the report is replaced with a sanitized fallback.
	blocked := false
	r.timed(result, models.StageSafety, func() *models.StageError {
		verdict := r.applyGuard(result.Report)
		result.SafetyTrace = &verdict
		if verdict.Blocked {
			blocked = true
			result.Report = fallbackReport()
			result.Errors = append(result.Errors, models.StageError{
				Kind:    models.ErrKindSafetyViolation,
				Stage:   models.StageSafety,
				Message: "generated report contained disallowed content and was withheld",
			})
		}
		return nil
	})

	// Persistence. Runs only when the guard did not hard-block the report; a
	// blocked run must not consume the input hash, so a later clean
	// submission of the same content can still be stored.
	if r.opts.EnablePersistence && !blocked {
		fatal := r.timed(result, models.StagePersistence, func() *models.StageError {
			return r.persist(ctx, result)
		})
		if fatal != nil {
			result.Errors = append(result.Errors, *fatal)
			if r.opts.RequirePersistence {
				return r.failed(result, nil, log)
			}
			log.Warn().Str("stage", models.StagePersistence).Msg(fatal.Message)
		}
	} else {
		r.skip(result, models.StagePersistence)
	}

	result.Success = !blocked
	log.Info().
		Bool("success", result.Success).
		Bool("blocked", blocked).
		Bool("persisted", result.Persisted).
		Msg("pipeline run finished")
	return result
}

// ── Stage execution helpers ──────────────────────────────────

// timed runs fn as the named stage, appending a trace entry with duration
// and status, and returns fn's error.
func (r *Runner) timed(result *models.PipelineResult, stage string, fn func() *models.StageError) *models.StageError {
	start := time.Now()
	stageErr := fn()
	trace := models.StageTrace{
		Stage:      stage,
		Status:     models.StageCompleted,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if stageErr != nil {
		trace.Status = models.StageFailed
		trace.Error = stageErr.Message
	}
	result.Stages = append(result.Stages, trace)
	return stageErr
}

func (r *Runner) skip(result *models.PipelineResult, stage string) {
	result.Stages = append(result.Stages, models.StageTrace{Stage: stage, Status: models.StageSkipped})
}

func (r *Runner) failed(result *models.PipelineResult, stageErr *models.StageError, log zerolog.Logger) *models.PipelineResult {
	if stageErr != nil {
		result.Errors = append(result.Errors, *stageErr)
	}
	result.Success = false
	if len(result.Errors) > 0 {
		last := result.Errors[len(result.Errors)-1]
		log.Warn().Str("stage", last.Stage).Str("kind", last.Kind).Msg(last.Message)
	}
	return result
}

// ── Structuring ──────────────────────────────────────────────

const structuringPrompt = `Extract the health intake below into a JSON object with exactly these fields:
  chief_complaint (string, required, non-empty)
  symptoms (array of strings, required, may be empty)
  duration (string or null)
  severity ("mild", "moderate", "severe", or null)
  additional_context (string or null)
Use only information present in the text. Do not infer conditions.

` + llm.RawIntakeMarker + "\n"

func (r *Runner) structure(ctx context.Context, rawText string) (*models.StructuredOutput, *models.StageError) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.GenerationTimeout)
	defer cancel()

	raw, err := r.generator.Generate(ctx, structuringPrompt+rawText)
	if err != nil {
		return nil, stageError(models.ErrKindStructuring, models.StageStructuring,
			"structuring model call failed")
	}
	block, ok := llm.ExtractJSONBlock(raw)
	if !ok {
		return nil, stageError(models.ErrKindStructuring, models.StageStructuring,
			"structuring output was not valid JSON")
	}
	if err := r.validator.ValidateStructured([]byte(block)); err != nil {
		return nil, stageError(models.ErrKindStructuring, models.StageStructuring,
			"structuring output failed schema validation")
	}
	var structured models.StructuredOutput
	if err := json.Unmarshal([]byte(block), &structured); err != nil {
		return nil, stageError(models.ErrKindStructuring, models.StageStructuring,
			"structuring output could not be decoded")
	}
	return &structured, nil
}

// ── Output ───────────────────────────────────────────────────

const reportPromptHeader = `Write a general wellness report as a JSON object with exactly these fields:
  summary (string)
  sections (object with overview, symptom_analysis, insights, risk_summary, recommendations; overview, symptom_analysis and recommendations are required)
  disclaimer (string)
Never state or imply a diagnosis. Never recommend medication, dosage, or treatment.
`

const contextMarker = "----- CONTEXT -----"

func (r *Runner) generateReport(ctx context.Context, structured *models.StructuredOutput, retrieval *models.RetrievalTrace) (*models.ReportOutput, *models.StageError) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.GenerationTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(reportPromptHeader)
	if retrieval != nil && len(retrieval.Chunks) > 0 {
		sb.WriteString("\nGeneral background that may be relevant:\n")
		sb.WriteString(contextMarker)
		sb.WriteString("\n")
		for _, c := range retrieval.Chunks {
			sb.WriteString("- ")
			sb.WriteString(c.Snippet)
			sb.WriteString("\n")
		}
	}
	structuredJSON, err := json.Marshal(structured)
	if err != nil {
		return nil, stageError(models.ErrKindOutput, models.StageOutput,
			"structured input could not be encoded")
	}
	sb.WriteString("\n")
	sb.WriteString(llm.StructuredInputMarker)
	sb.WriteString("\n")
	sb.Write(structuredJSON)

	raw, err := r.generator.Generate(ctx, sb.String())
	if err != nil {
		return nil, stageError(models.ErrKindOutput, models.StageOutput,
			"report model call failed")
	}
	block, ok := llm.ExtractJSONBlock(raw)
	if !ok {
		return nil, stageError(models.ErrKindOutput, models.StageOutput,
			"report output was not valid JSON")
	}
	if err := r.validator.ValidateReport([]byte(block)); err != nil {
		return nil, stageError(models.ErrKindOutput, models.StageOutput,
			"report output failed schema validation")
	}
	var report models.ReportOutput
	if err := json.Unmarshal([]byte(block), &report); err != nil {
		return nil, stageError(models.ErrKindOutput, models.StageOutput,
			"report output could not be decoded")
	}
	return &report, nil
}

// ── Safety ───────────────────────────────────────────────────

// applyGuard evaluates every textual field of the report as one unit and
// writes the masked values back. Crisis guidance, when warranted, lands in
// the recommendations section exactly once.
func (r *Runner) applyGuard(report *models.ReportOutput) models.GuardResult {
	if report.Sections == nil {
		report.Sections = &models.ReportSections{}
	}
	parts := []string{
		report.Summary,
		report.Sections.Overview,
		report.Sections.SymptomAnalysis,
		report.Sections.Insights,
		report.Sections.RiskSummary,
		report.Sections.Recommendations,
		report.Disclaimer,
	}
	verdict, masked := guard.EvaluateParts(parts)

	report.Summary = masked[0]
	report.Sections.Overview = masked[1]
	report.Sections.SymptomAnalysis = masked[2]
	report.Sections.Insights = masked[3]
	report.Sections.RiskSummary = masked[4]
	report.Sections.Recommendations = masked[5]
	report.Disclaimer = masked[6]

	if verdict.Crisis && !strings.Contains(report.Sections.Recommendations, strings.TrimSpace(guard.EmergencyGuidance)) {
		report.Sections.Recommendations += guard.EmergencyGuidance
		verdict.Actions = append(verdict.Actions, "add_emergency_guidance")
	}
	return verdict
}

func fallbackReport() *models.ReportOutput {
	return &models.ReportOutput{
		Summary: "This report was withheld. The generated draft contained content that this " +
			"service is not permitted to provide, such as a diagnosis or medication guidance.",
		Sections: &models.ReportSections{
			Overview: "Your submission was received and processed, but the generated report " +
				"did not meet this service's safety requirements.",
			SymptomAnalysis: "No analysis is shown for this run.",
			Recommendations: "Please consult a qualified healthcare professional to discuss " +
				"your symptoms directly.",
		},
		Disclaimer: "This service provides general wellness information only and never " +
			"provides diagnoses, treatment, or medication guidance.",
	}
}

// ── Persistence ──────────────────────────────────────────────

func (r *Runner) persist(ctx context.Context, result *models.PipelineResult) *models.StageError {
	hash, err := InputHash(result.Intake)
	if err != nil {
		return stageError(models.ErrKindPersistence, models.StagePersistence,
			"could not derive input hash")
	}

	intakeJSON, err := json.Marshal(result.Intake)
	if err != nil {
		return stageError(models.ErrKindPersistence, models.StagePersistence, "could not encode intake")
	}
	structuredJSON, err := json.Marshal(result.Structured)
	if err != nil {
		return stageError(models.ErrKindPersistence, models.StagePersistence, "could not encode structured output")
	}
	reportJSON, err := json.Marshal(result.Report)
	if err != nil {
		return stageError(models.ErrKindPersistence, models.StagePersistence, "could not encode report")
	}
	auditJSON, err := json.Marshal(result.SafetyTrace)
	if err != nil {
		return stageError(models.ErrKindPersistence, models.StagePersistence, "could not encode safety audit")
	}

	rec := &models.HealthRecord{
		TraceID:         result.TraceID,
		PipelineVersion: Version,
		IntakeJSON:      intakeJSON,
		StructuredJSON:  structuredJSON,
		ReportJSON:      reportJSON,
		ReportText:      RenderReportText(result.Report),
		SafetyAuditJSON: auditJSON,
		InputHash:       hash,
	}
	saved, created, err := r.records.SaveRecord(ctx, rec)
	if err != nil {
		return stageError(models.ErrKindPersistence, models.StagePersistence,
			"record could not be saved")
	}
	result.Persisted = true
	result.RecordID = saved.ID
	if !created {
		r.log.Debug().Str("record_id", saved.ID).Msg("duplicate submission, existing record returned")
	}
	return nil
}

// RenderReportText flattens a report into plain text for storage and
// downstream channels that cannot render structured sections.
func RenderReportText(report *models.ReportOutput) string {
	if report == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(report.Summary)
	if s := report.Sections; s != nil {
		for _, part := range []string{s.Overview, s.SymptomAnalysis, s.Insights, s.RiskSummary, s.Recommendations} {
			if part != "" {
				sb.WriteString("\n\n")
				sb.WriteString(part)
			}
		}
	}
	if report.Disclaimer != "" {
		sb.WriteString("\n\n")
		sb.WriteString(report.Disclaimer)
	}
	return sb.String()
}

func stageError(kind, stage, msg string) *models.StageError {
	return &models.StageError{Kind: kind, Stage: stage, Message: msg}
}
