// Package vectorstore implements the in-memory reference vector index used
// by the retrieval stage. It is a brute-force cosine similarity engine:
// suitable for the bundled wellness knowledge base, not for large corpora.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/stratumhealth/carepipe/pkg/models"
)

// DimensionMismatchError is returned when a vector's length differs from the
// dimensionality pinned by the index's first insert.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, want %d", e.Got, e.Want)
}

// Index is an in-memory vector index. Mutating operations are serialized
// against searches with a single read/write lock; searches may run
// concurrently with each other.
type Index struct {
	mu   sync.RWMutex
	docs map[string]*models.VectorDoc
	dims int // 0 until the first insert pins the dimensionality
}

// NewIndex creates an empty index. Dimensionality is established by the
// first inserted vector.
func NewIndex() *Index {
	return &Index{docs: make(map[string]*models.VectorDoc)}
}

// Upsert inserts documents, replacing any existing entry with the same ID.
// The first inserted vector pins the index dimensionality; any later vector
// of a different length fails the whole batch with DimensionMismatchError
// and leaves the index unchanged.
func (ix *Index) Upsert(_ context.Context, docs []models.VectorDoc) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	dims := ix.dims
	for _, d := range docs {
		if dims == 0 {
			dims = len(d.Vector)
			continue
		}
		if len(d.Vector) != dims {
			return &DimensionMismatchError{Got: len(d.Vector), Want: dims}
		}
	}

	now := time.Now().UTC()
	for _, d := range docs {
		cp := d
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		ix.docs[cp.ID] = &cp
	}
	ix.dims = dims
	return nil
}

// Delete removes documents by ID. Absent IDs are a no-op.
func (ix *Index) Delete(_ context.Context, ids []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, id := range ids {
		delete(ix.docs, id)
	}
	return nil
}

// Clear removes all documents. The pinned dimensionality is reset, so the
// next insert establishes it again.
func (ix *Index) Clear(_ context.Context) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs = make(map[string]*models.VectorDoc)
	ix.dims = 0
}

// Count returns the exact number of stored documents.
func (ix *Index) Count(_ context.Context) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Dimensions returns the pinned dimensionality, or 0 if the index is empty
// and no insert has happened yet.
func (ix *Index) Dimensions() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dims
}

// Search returns up to k documents ranked by cosine similarity to the query
// vector. Ordering is total and deterministic: descending score, ties broken
// by ascending document ID. A query of the wrong length fails with
// DimensionMismatchError.
func (ix *Index) Search(_ context.Context, query []float64, k int) ([]models.SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.dims != 0 && len(query) != ix.dims {
		return nil, &DimensionMismatchError{Got: len(query), Want: ix.dims}
	}
	if k <= 0 || len(ix.docs) == 0 {
		return nil, nil
	}

	candidates := make([]models.SearchResult, 0, len(ix.docs))
	for _, d := range ix.docs {
		candidates = append(candidates, models.SearchResult{
			Doc:   *d,
			Score: cosineSimilarity(query, d.Vector),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Doc.ID < candidates[j].Doc.ID
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k], nil
}

// cosineSimilarity is dot(a,b)/(‖a‖·‖b‖). Zero-vector similarity is defined
// as 0 rather than NaN so ranking stays total and deterministic.
func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
