package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratumhealth/carepipe/pkg/models"
)

// MemoryStore keeps records in process memory. Contents are lost on
// restart; it backs tests and deployments that disable durable persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.HealthRecord
	byHash  map[string]string // input hash -> record ID
}

var _ RecordStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.HealthRecord),
		byHash:  make(map[string]string),
	}
}

func (s *MemoryStore) SaveRecord(_ context.Context, rec *models.HealthRecord) (*models.HealthRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.InputHash != "" {
		if id, ok := s.byHash[rec.InputHash]; ok {
			existing := s.records[id]
			existing.UpdatedAt = time.Now().UTC()
			cp := *existing
			return &cp, false, nil
		}
	}

	cp := *rec
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.records[cp.ID] = &cp
	if cp.InputHash != "" {
		s.byHash[cp.InputHash] = cp.ID
	}
	out := cp
	return &out, true, nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id string) (*models.HealthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) FindRecordByHash(_ context.Context, hash string) (*models.HealthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if hash == "" {
		return nil, ErrNotFound
	}
	id, ok := s.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.records[id]
	return &cp, nil
}

func (s *MemoryStore) ListRecords(_ context.Context, limit int) ([]*models.HealthRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.HealthRecord, 0, len(s.records))
	for _, rec := range s.records {
		cp := *rec
		out = append(out, &cp)
	}
	// Newest first; ID breaks ties so ordering is stable.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountRecords(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
