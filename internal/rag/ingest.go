package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stratumhealth/carepipe/internal/embeddings"
	"github.com/stratumhealth/carepipe/internal/vectorstore"
	"github.com/stratumhealth/carepipe/pkg/models"
)

// Ingester chunks documents, embeds the chunks, and upserts them into the
// vector index.
type Ingester struct {
	driver embeddings.Driver
	index  *vectorstore.Index
	log    zerolog.Logger
}

func NewIngester(driver embeddings.Driver, index *vectorstore.Index, log zerolog.Logger) *Ingester {
	return &Ingester{
		driver: driver,
		index:  index,
		log:    log.With().Str("component", "rag.ingester").Logger(),
	}
}

// Ingest processes a batch of documents. Chunk vector IDs derive from the
// document ID and chunk index, so re-ingesting the same document replaces
// its chunks instead of duplicating them. Documents without an ID are
// assigned one.
func (ing *Ingester) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	start := time.Now()

	cfg := DefaultChunkerConfig()
	if req.ChunkSize > 0 {
		cfg.ChunkSize = req.ChunkSize
	}
	if req.ChunkOverlap > 0 && req.ChunkOverlap < cfg.ChunkSize {
		cfg.ChunkOverlap = req.ChunkOverlap
	}

	var texts []string
	var docs []models.VectorDoc
	processed := 0
	for _, doc := range req.Documents {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		docID := doc.ID
		if docID == "" {
			docID = uuid.NewString()
		}
		processed++

		for _, chunk := range ChunkText(content, cfg) {
			meta := map[string]string{"doc_id": docID}
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			texts = append(texts, chunk.Text)
			docs = append(docs, models.VectorDoc{
				ID:       fmt.Sprintf("%s:%04d", docID, chunk.Index),
				Content:  chunk.Text,
				Metadata: meta,
			})
		}
	}

	if len(docs) == 0 {
		return &models.IngestResult{LatencyMs: time.Since(start).Milliseconds()}, nil
	}

	vectors, err := ing.driver.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embed chunks: expected %d vectors, got %d", len(docs), len(vectors))
	}
	for i := range docs {
		docs[i].Vector = vectors[i]
	}

	if err := ing.index.Upsert(ctx, docs); err != nil {
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}

	result := &models.IngestResult{
		DocumentsProcessed: processed,
		ChunksCreated:      len(docs),
		VectorsStored:      len(docs),
		LatencyMs:          time.Since(start).Milliseconds(),
	}
	ing.log.Info().
		Int("documents", result.DocumentsProcessed).
		Int("chunks", result.ChunksCreated).
		Int64("latency_ms", result.LatencyMs).
		Msg("knowledge ingested")
	return result, nil
}
