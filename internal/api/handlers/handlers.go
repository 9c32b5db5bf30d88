// Package handlers implements the HTTP handlers for the carepipe service.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/stratumhealth/carepipe/internal/pipeline"
	"github.com/stratumhealth/carepipe/internal/rag"
	"github.com/stratumhealth/carepipe/internal/store"
	"github.com/stratumhealth/carepipe/pkg/models"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Handlers holds all handler dependencies.
type Handlers struct {
	Runner   *pipeline.Runner
	Ingester *rag.Ingester
	Records  store.RecordStore
	Version  string
}

// New creates a Handlers instance. Records may be nil when persistence is
// disabled; the record endpoints then answer 404.
func New(runner *pipeline.Runner, ingester *rag.Ingester, records store.RecordStore, version string) *Handlers {
	return &Handlers{Runner: runner, Ingester: ingester, Records: records, Version: version}
}

// RunPipeline executes a full pipeline run.
//
// Intake validation failures are the caller's fault and answer 400 with a
// detail message. Everything else, including safety blocks, answers 200 with
// the full result; success=false plus result.Errors tell the caller what
// happened.
func (h *Handlers) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result := h.Runner.Run(r.Context(), req)
	for _, e := range result.Errors {
		if e.Kind == models.ErrKindIntakeValidation {
			respondJSON(w, http.StatusBadRequest, map[string]string{"detail": e.Message})
			return
		}
	}
	respondJSON(w, http.StatusOK, result)
}

// ValidateIntake runs intake validation alone: the normalized HealthInput is
// returned without invoking the rest of the pipeline.
func (h *Handlers) ValidateIntake(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if !decodeBody(w, r, &req) {
		return
	}

	input, stageErr := pipeline.ProcessIntake(req)
	if stageErr != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": stageErr.Message})
		return
	}
	respondJSON(w, http.StatusOK, input)
}

// IngestKnowledge adds documents to the retrieval index.
func (h *Handlers) IngestKnowledge(w http.ResponseWriter, r *http.Request) {
	if h.Ingester == nil {
		respondError(w, http.StatusServiceUnavailable, "retrieval is disabled")
		return
	}
	var req models.IngestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		respondError(w, http.StatusBadRequest, "documents must not be empty")
		return
	}

	result, err := h.Ingester.Ingest(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Msg("knowledge ingestion failed")
		respondError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListRecords returns the most recent health records.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	if h.Records == nil {
		respondError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.Records.ListRecords(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("list records failed")
		respondError(w, http.StatusInternalServerError, "could not list records")
		return
	}
	if records == nil {
		records = []*models.HealthRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// GetRecord returns a single health record by ID.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	if h.Records == nil {
		respondError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}
	id := chi.URLParam(r, "recordId")

	rec, err := h.Records.GetRecord(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("record_id", id).Msg("get record failed")
		respondError(w, http.StatusInternalServerError, "could not load record")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
