package rag

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratumhealth/carepipe/internal/embeddings"
	"github.com/stratumhealth/carepipe/internal/vectorstore"
	"github.com/stratumhealth/carepipe/pkg/models"
)

const (
	DefaultTopK    = 3
	DefaultTimeout = 2 * time.Second

	maxSnippetRunes = 500
)

// Retriever fetches knowledge context for a structured intake. It is
// strictly best-effort: every failure mode (embedding error, index error,
// timeout) is recorded on the returned trace instead of propagating, so the
// pipeline continues without context.
type Retriever struct {
	driver  embeddings.Driver
	index   *vectorstore.Index
	topK    int
	timeout time.Duration
	log     zerolog.Logger
}

func NewRetriever(driver embeddings.Driver, index *vectorstore.Index, topK int, timeout time.Duration, log zerolog.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Retriever{
		driver:  driver,
		index:   index,
		topK:    topK,
		timeout: timeout,
		log:     log.With().Str("component", "rag.retriever").Logger(),
	}
}

// Retrieve returns ranked context chunks for the structured intake. The
// query is built from the chief complaint and symptoms; when structuring
// produced nothing usable it falls back to the raw intake text. The returned
// trace is never nil and Retrieve never returns an error.
func (r *Retriever) Retrieve(ctx context.Context, structured *models.StructuredOutput, fallbackText string) *models.RetrievalTrace {
	query := buildQuery(structured, fallbackText)
	trace := &models.RetrievalTrace{Query: query, TopK: r.topK, Chunks: []models.ContextChunk{}}
	if query == "" {
		return trace
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vectors, err := r.driver.Embed(ctx, []string{query})
	if err != nil {
		return r.failed(trace, err)
	}
	if len(vectors) != 1 {
		trace.Failed = true
		trace.Error = "embedding driver returned no vector for query"
		return trace
	}

	results, err := r.index.Search(ctx, vectors[0], r.topK)
	if err != nil {
		return r.failed(trace, err)
	}

	for _, res := range results {
		trace.Chunks = append(trace.Chunks, models.ContextChunk{
			DocID:   res.Doc.ID,
			Score:   res.Score,
			Snippet: snippet(res.Doc.Content),
			Source:  res.Doc.Metadata["source"],
		})
	}
	return trace
}

func (r *Retriever) failed(trace *models.RetrievalTrace, err error) *models.RetrievalTrace {
	trace.Failed = true
	trace.Error = err.Error()
	r.log.Warn().Err(err).Str("query", trace.Query).Msg("retrieval failed, continuing without context")
	return trace
}

func buildQuery(structured *models.StructuredOutput, fallbackText string) string {
	if structured != nil {
		parts := make([]string, 0, 1+len(structured.Symptoms))
		if c := strings.TrimSpace(structured.ChiefComplaint); c != "" {
			parts = append(parts, c)
		}
		for _, s := range structured.Symptoms {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	return strings.TrimSpace(fallbackText)
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= maxSnippetRunes {
		return content
	}
	return string(runes[:maxSnippetRunes]) + "…"
}
