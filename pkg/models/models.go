// Package models defines the shared domain types for the carepipe service.
//
// Everything the pipeline produces or consumes lives here: the normalized
// intake contract, the schema-validated structured output, retrieval chunks,
// the final report, the safety verdict, and the persisted health record.
package models

import (
	"encoding/json"
	"time"
)

// ── Intake ───────────────────────────────────────────────────

// InputSource identifies the channel an input arrived through.
type InputSource string

const (
	SourceWeb   InputSource = "web"
	SourceSMS   InputSource = "sms"
	SourceVoice InputSource = "voice"
	SourceAPI   InputSource = "api"
	SourceEmail InputSource = "email"
)

// ValidSource reports whether s is in the closed source allow-list.
func ValidSource(s InputSource) bool {
	switch s {
	case SourceWeb, SourceSMS, SourceVoice, SourceAPI, SourceEmail:
		return true
	}
	return false
}

// InputType identifies the kind of interaction that produced the text.
type InputType string

const (
	TypeChat     InputType = "chat"
	TypeIntake   InputType = "intake"
	TypeSurvey   InputType = "survey"
	TypeReferral InputType = "referral"
)

// ValidInputType reports whether t is in the closed input-type allow-list.
func ValidInputType(t InputType) bool {
	switch t {
	case TypeChat, TypeIntake, TypeSurvey, TypeReferral:
		return true
	}
	return false
}

// RunRequest is the raw payload handed to the pipeline entrypoint.
type RunRequest struct {
	Text           string      `json:"text"`
	Source         InputSource `json:"source,omitempty"`
	InputType      InputType   `json:"input_type,omitempty"`
	ConsentGranted bool        `json:"consent_granted"`
	UserID         string      `json:"user_id,omitempty"`
}

// HealthInput is the normalized intake contract. It is created once by the
// intake stage and never mutated afterwards.
type HealthInput struct {
	ID             string      `json:"input_id" db:"input_id"`
	UserID         string      `json:"user_id" db:"user_id"`
	RawText        string      `json:"raw_text" db:"raw_text"`
	Source         InputSource `json:"source" db:"source"`
	InputType      InputType   `json:"input_type" db:"input_type"`
	ContainsPHI    bool        `json:"contains_phi" db:"contains_phi"`
	ConsentGranted bool        `json:"consent_granted" db:"consent_granted"`
	Timestamp      time.Time   `json:"timestamp" db:"timestamp"`
}

// ── Structured Output ────────────────────────────────────────

// StructuredOutput is the schema-validated extraction produced by the
// structuring stage. Instances only exist after passing schema validation;
// unknown or malformed shapes are rejected at the boundary.
type StructuredOutput struct {
	ChiefComplaint    string   `json:"chief_complaint"`
	Symptoms          []string `json:"symptoms"`
	Duration          string   `json:"duration,omitempty"`
	Severity          string   `json:"severity,omitempty"`
	AdditionalContext string   `json:"additional_context,omitempty"`
}

// ── Retrieval ────────────────────────────────────────────────

// ContextChunk is a single ranked retrieval result. Chunks returned for one
// query are ordered by descending score, ties broken by ascending DocID.
type ContextChunk struct {
	DocID   string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
	Source  string  `json:"source,omitempty"`
}

// RetrievalTrace records the outcome of the best-effort retrieval stage.
// A nil trace on PipelineResult means retrieval was disabled, not failed.
type RetrievalTrace struct {
	Query  string         `json:"query"`
	TopK   int            `json:"top_k"`
	Chunks []ContextChunk `json:"chunks"`
	Failed bool           `json:"failed"`
	Error  string         `json:"error,omitempty"`
}

// ── Report ───────────────────────────────────────────────────

// ReportSections holds the narrative sections of the final report.
type ReportSections struct {
	Overview        string `json:"overview"`
	SymptomAnalysis string `json:"symptom_analysis"`
	Insights        string `json:"insights"`
	RiskSummary     string `json:"risk_summary"`
	Recommendations string `json:"recommendations"`
}

// ReportOutput is the final human-readable object. It never leaves the
// pipeline without passing the safety guard; on a hard violation the
// summary is replaced with a safe fallback.
type ReportOutput struct {
	Summary    string          `json:"summary"`
	Sections   *ReportSections `json:"sections,omitempty"`
	Disclaimer string          `json:"disclaimer"`
}

// ── Safety ───────────────────────────────────────────────────

// GuardSeverity grades a safety verdict.
type GuardSeverity string

const (
	SeverityLow    GuardSeverity = "low"
	SeverityMedium GuardSeverity = "medium"
	SeverityHigh   GuardSeverity = "high"
)

// Violation kinds.
const (
	ViolationPHI          = "phi"
	ViolationDiagnosis    = "diagnosis"
	ViolationPrescription = "prescription"
	ViolationCrisis       = "crisis"
)

// Violation is a single rule hit recorded by the safety guard.
// Hard violations (diagnosis, prescription) force Blocked on the verdict;
// soft violations (PHI masking, crisis) only log and annotate.
type Violation struct {
	Kind        string `json:"kind"`
	Class       string `json:"class"`
	Match       string `json:"match,omitempty"`
	Replacement string `json:"replacement,omitempty"`
	Hard        bool   `json:"hard"`
}

// GuardResult is the explainable verdict returned by the safety guard.
// MaskedText is always the post-masking text, never the original when any
// masking occurred.
type GuardResult struct {
	Blocked    bool          `json:"blocked"`
	Crisis     bool          `json:"crisis"`
	Severity   GuardSeverity `json:"severity"`
	Violations []Violation   `json:"violations"`
	Actions    []string      `json:"actions"`
	MaskedText string        `json:"masked_text"`
}

// ── Pipeline Result ──────────────────────────────────────────

// Stage names, in execution order.
const (
	StageIntake      = "intake"
	StageStructuring = "structuring"
	StageRetrieval   = "retrieval"
	StageOutput      = "output"
	StageSafety      = "safety"
	StagePersistence = "persistence"
)

// StageStatus values used in StageTrace.
const (
	StageCompleted = "completed"
	StageFailed    = "failed"
	StageSkipped   = "skipped"
)

// StageTrace is one entry of the per-run trace.
type StageTrace struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Error kinds reported in PipelineResult.Errors.
const (
	ErrKindIntakeValidation = "intake_validation"
	ErrKindStructuring      = "structuring"
	ErrKindOutput           = "output"
	ErrKindSafetyViolation  = "safety_violation"
	ErrKindPersistence      = "persistence"
	ErrKindRetrievalFailure = "retrieval_failure"
)

// StageError is a structured pipeline error: kind, originating stage and a
// human-readable message. Raw lower-layer error text never crosses the API
// boundary.
type StageError struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Message
}

// PipelineResult is returned by one pipeline run.
// Success is false when the run failed or when the safety guard hard-blocked
// the report; a safety block still carries a sanitized report.
type PipelineResult struct {
	TraceID        string            `json:"trace_id"`
	Success        bool              `json:"success"`
	Intake         *HealthInput      `json:"intake,omitempty"`
	Structured     *StructuredOutput `json:"structured,omitempty"`
	Report         *ReportOutput     `json:"report,omitempty"`
	RetrievalTrace *RetrievalTrace   `json:"retrieval_trace,omitempty"`
	SafetyTrace    *GuardResult      `json:"safety_trace,omitempty"`
	Stages         []StageTrace      `json:"stages"`
	Errors         []StageError      `json:"errors"`
	Persisted      bool              `json:"persisted"`
	RecordID       string            `json:"record_id,omitempty"`
}

// ── Persistence ──────────────────────────────────────────────

// HealthRecord is the persisted entity for a finalized pipeline run.
// InputHash is the idempotency key: unique when non-empty, derived from the
// normalized input content so identical submissions collapse to one row.
type HealthRecord struct {
	ID              string          `json:"id" db:"id"`
	TraceID         string          `json:"trace_id" db:"trace_id"`
	PipelineVersion string          `json:"pipeline_version" db:"pipeline_version"`
	IntakeJSON      json.RawMessage `json:"intake_json" db:"intake_json"`
	StructuredJSON  json.RawMessage `json:"structured_json" db:"structured_json"`
	ReportJSON      json.RawMessage `json:"report_json" db:"report_json"`
	ReportText      string          `json:"report_text" db:"report_text"`
	SafetyAuditJSON json.RawMessage `json:"safety_audit_json" db:"safety_audit_json"`
	InputHash       string          `json:"input_hash,omitempty" db:"input_hash"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// ── Vector Index ─────────────────────────────────────────────

// VectorDoc is a document stored in the vector index.
type VectorDoc struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Vector    []float64         `json:"vector"`
	CreatedAt time.Time         `json:"created_at"`
}

// SearchResult is a single vector search result.
type SearchResult struct {
	Doc   VectorDoc `json:"doc"`
	Score float64   `json:"score"`
}

// ── Knowledge Ingestion ──────────────────────────────────────

// RawDocument is a single document to ingest into the knowledge index.
type RawDocument struct {
	ID       string            `json:"id,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestRequest is the input to the knowledge ingestion endpoint.
type IngestRequest struct {
	Documents    []RawDocument `json:"documents"`
	ChunkSize    int           `json:"chunk_size,omitempty"`
	ChunkOverlap int           `json:"chunk_overlap,omitempty"`
}

// IngestResult is the output of knowledge ingestion.
type IngestResult struct {
	DocumentsProcessed int   `json:"documents_processed"`
	ChunksCreated      int   `json:"chunks_created"`
	VectorsStored      int   `json:"vectors_stored"`
	LatencyMs          int64 `json:"latency_ms"`
}
