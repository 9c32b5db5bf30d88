package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratumhealth/carepipe/internal/api"
	"github.com/stratumhealth/carepipe/internal/api/handlers"
	"github.com/stratumhealth/carepipe/internal/embeddings"
	"github.com/stratumhealth/carepipe/internal/llm"
	"github.com/stratumhealth/carepipe/internal/pipeline"
	"github.com/stratumhealth/carepipe/internal/rag"
	"github.com/stratumhealth/carepipe/internal/schema"
	"github.com/stratumhealth/carepipe/internal/store"
	"github.com/stratumhealth/carepipe/internal/vectorstore"
	"github.com/stratumhealth/carepipe/pkg/models"
)

func newTestRouter(t *testing.T) (http.Handler, store.RecordStore) {
	t.Helper()

	validator, err := schema.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	driver := embeddings.NewHashDriver(embeddings.DefaultDimensions)
	index := vectorstore.NewIndex()
	ingester := rag.NewIngester(driver, index, zerolog.Nop())
	retriever := rag.NewRetriever(driver, index, 3, time.Second, zerolog.Nop())
	records := store.NewMemoryStore()

	runner := pipeline.NewRunner(llm.NewMockDriver(), retriever, records, validator, pipeline.Options{
		EnableRAG:         true,
		EnablePersistence: true,
	}, zerolog.Nop())

	h := handlers.New(runner, ingester, records, "test")
	health := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	return api.NewRouter(h, health), records
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRunPipelineEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/pipeline/run", models.RunRequest{
		Text: "I have had a mild headache and some fatigue for the past three days.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result models.PipelineResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("success = false: %v", result.Errors)
	}
	if result.Report == nil || result.RecordID == "" {
		t.Fatalf("incomplete result: report=%v record=%q", result.Report, result.RecordID)
	}
}

func TestRunPipelineValidationError(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/pipeline/run", models.RunRequest{Text: "short"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body["detail"] == "" {
		t.Fatalf("body = %v, want detail message", body)
	}
}

func TestRunPipelineConsentRejection(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/pipeline/run", models.RunRequest{
		Text: "My name is on the patient file and my head hurts.",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "consent") {
		t.Fatalf("body = %s, want consent detail", rec.Body.String())
	}
}

func TestValidateIntakeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/ingest", models.RunRequest{
		Text:   "Persistent lower back pain after lifting boxes last week.",
		Source: models.SourceWeb,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var input models.HealthInput
	if err := json.Unmarshal(rec.Body.Bytes(), &input); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if input.ID == "" || input.Source != models.SourceWeb {
		t.Fatalf("input = %+v", input)
	}
}

func TestIngestKnowledgeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/knowledge/ingest", models.IngestRequest{
		Documents: []models.RawDocument{
			{ID: "doc1", Content: "Gentle stretching can ease everyday muscle stiffness."},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result models.IngestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if result.DocumentsProcessed != 1 || result.VectorsStored == 0 {
		t.Fatalf("result = %+v", result)
	}

	rec = postJSON(t, router, "/api/v1/knowledge/ingest", models.IngestRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty ingest status = %d, want 400", rec.Code)
	}
}

func TestRecordEndpoints(t *testing.T) {
	router, records := newTestRouter(t)

	run := postJSON(t, router, "/api/v1/pipeline/run", models.RunRequest{
		Text: "I have had a mild headache and some fatigue for the past three days.",
	})
	var result models.PipelineResult
	if err := json.Unmarshal(run.Body.Bytes(), &result); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if result.RecordID == "" {
		t.Fatal("run did not persist a record")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/"+result.RecordID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get record status = %d", rec.Code)
	}
	var loaded models.HealthRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &loaded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if loaded.ID != result.RecordID || loaded.TraceID != result.TraceID {
		t.Fatalf("record = %+v", loaded)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list records status = %d", rec.Code)
	}
	var listing struct {
		Records []models.HealthRecord `json:"records"`
		Count   int                   `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	n, err := records.CountRecords(context.Background())
	if err != nil {
		t.Fatalf("CountRecords() error = %v", err)
	}
	if listing.Count != n {
		t.Fatalf("count = %d, store holds %d", listing.Count, n)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/records/missing-id", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing record status = %d, want 404", rec.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "carepipe") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestInvalidJSONBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
