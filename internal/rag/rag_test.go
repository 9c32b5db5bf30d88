package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratumhealth/carepipe/internal/embeddings"
	"github.com/stratumhealth/carepipe/internal/rag"
	"github.com/stratumhealth/carepipe/internal/vectorstore"
	"github.com/stratumhealth/carepipe/pkg/models"
)

func TestChunkTextShortPassthrough(t *testing.T) {
	chunks := rag.ChunkText("short text", rag.DefaultChunkerConfig())
	if len(chunks) != 1 {
		t.Fatalf("ChunkText() = %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "short text" || chunks[0].Index != 0 {
		t.Fatalf("chunk = %+v", chunks[0])
	}
}

func TestChunkTextSplitsParagraphs(t *testing.T) {
	para := strings.Repeat("alpha beta gamma delta. ", 10)
	text := para + "\n\n" + para + "\n\n" + para
	chunks := rag.ChunkText(text, rag.ChunkerConfig{ChunkSize: 300, ChunkOverlap: 20})

	if len(chunks) < 2 {
		t.Fatalf("ChunkText() = %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk[%d].Index = %d", i, c.Index)
		}
		if len([]rune(c.Text)) > 300+30 {
			t.Errorf("chunk[%d] length %d exceeds target", i, len([]rune(c.Text)))
		}
	}
}

func TestChunkTextUnbrokenText(t *testing.T) {
	text := strings.Repeat("x", 1200)
	chunks := rag.ChunkText(text, rag.ChunkerConfig{ChunkSize: 500, ChunkOverlap: 0})
	if len(chunks) < 2 {
		t.Fatalf("ChunkText() = %d chunks, want rune-level split", len(chunks))
	}
	var total int
	for _, c := range chunks {
		total += len(c.Text)
	}
	if total < 1200 {
		t.Fatalf("chunks lost content: total %d runes, want >= 1200", total)
	}
}

func newTestPipeline(t *testing.T) (*rag.Ingester, *rag.Retriever, *vectorstore.Index) {
	t.Helper()
	driver := embeddings.NewHashDriver(embeddings.DefaultDimensions)
	index := vectorstore.NewIndex()
	log := zerolog.Nop()
	return rag.NewIngester(driver, index, log),
		rag.NewRetriever(driver, index, 3, 2*time.Second, log),
		index
}

func TestIngestAndRetrieve(t *testing.T) {
	ing, ret, index := newTestPipeline(t)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, models.IngestRequest{
		Documents: []models.RawDocument{
			{ID: "hydration", Content: "Headaches and fatigue are commonly associated with mild dehydration."},
			{ID: "sleep", Content: "Adults generally function best with seven to nine hours of sleep per night."},
		},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.DocumentsProcessed != 2 {
		t.Fatalf("DocumentsProcessed = %d, want 2", res.DocumentsProcessed)
	}
	if res.VectorsStored != index.Count(ctx) {
		t.Fatalf("VectorsStored = %d, index holds %d", res.VectorsStored, index.Count(ctx))
	}

	trace := ret.Retrieve(ctx, &models.StructuredOutput{
		ChiefComplaint: "recurring headache",
		Symptoms:       []string{"headache", "fatigue"},
	}, "")
	if trace.Failed {
		t.Fatalf("Retrieve() failed: %s", trace.Error)
	}
	if len(trace.Chunks) == 0 {
		t.Fatal("Retrieve() returned no chunks")
	}
	if trace.Query == "" {
		t.Fatal("trace.Query is empty")
	}
	for _, c := range trace.Chunks {
		if c.DocID == "" || c.Snippet == "" {
			t.Fatalf("incomplete chunk: %+v", c)
		}
	}
}

func TestIngestIdempotentIDs(t *testing.T) {
	ing, _, index := newTestPipeline(t)
	ctx := context.Background()

	doc := models.RawDocument{ID: "doc1", Content: "Stable content for re-ingestion."}
	for i := 0; i < 2; i++ {
		if _, err := ing.Ingest(ctx, models.IngestRequest{Documents: []models.RawDocument{doc}}); err != nil {
			t.Fatalf("Ingest() #%d error = %v", i+1, err)
		}
	}
	if got := index.Count(ctx); got != 1 {
		t.Fatalf("Count() after re-ingest = %d, want 1", got)
	}
}

func TestIngestSkipsEmptyDocuments(t *testing.T) {
	ing, _, index := newTestPipeline(t)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, models.IngestRequest{
		Documents: []models.RawDocument{{ID: "empty", Content: "   "}},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.DocumentsProcessed != 0 || index.Count(ctx) != 0 {
		t.Fatalf("empty document ingested: %+v", res)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	_, ret, _ := newTestPipeline(t)

	trace := ret.Retrieve(context.Background(), nil, "mild headache")
	if trace.Failed {
		t.Fatalf("Retrieve() on empty index failed: %s", trace.Error)
	}
	if len(trace.Chunks) != 0 {
		t.Fatalf("Retrieve() on empty index = %d chunks, want 0", len(trace.Chunks))
	}
}

type failingDriver struct{}

func (failingDriver) Kind() string    { return "failing" }
func (failingDriver) Dimensions() int { return 4 }
func (failingDriver) Embed(context.Context, []string) ([][]float64, error) {
	return nil, errors.New("embedding backend unavailable")
}
func (failingDriver) HealthCheck(context.Context) error { return nil }

func TestRetrieveFailureIsNonFatal(t *testing.T) {
	index := vectorstore.NewIndex()
	ret := rag.NewRetriever(failingDriver{}, index, 3, time.Second, zerolog.Nop())

	trace := ret.Retrieve(context.Background(), nil, "headache")
	if !trace.Failed {
		t.Fatal("trace.Failed = false, want true")
	}
	if trace.Error == "" {
		t.Fatal("trace.Error is empty")
	}
	if len(trace.Chunks) != 0 {
		t.Fatalf("failed retrieval returned %d chunks", len(trace.Chunks))
	}
}

func TestDefaultKnowledgeDocuments(t *testing.T) {
	docs := rag.DefaultKnowledgeDocuments()
	if len(docs) == 0 {
		t.Fatal("no builtin knowledge documents")
	}
	for _, d := range docs {
		if d.ID == "" || strings.TrimSpace(d.Content) == "" {
			t.Fatalf("incomplete builtin document: %q", d.ID)
		}
	}
}
