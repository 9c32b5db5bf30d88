// Package embeddings provides the embedding driver interface and the
// built-in drivers: a deterministic hash embedder for offline development
// and tests, and an OpenAI-backed embedder for real deployments.
package embeddings

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Driver maps texts to fixed-length vectors. Implementations must be
// deterministic for identical input within one process lifetime.
type Driver interface {
	// Kind returns the driver identifier (e.g. "hash", "openai").
	Kind() string

	// Dimensions returns the fixed vector length produced by this driver.
	Dimensions() int

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// HealthCheck verifies the driver is usable.
	HealthCheck(ctx context.Context) error
}

// Registry holds named embedding drivers. Thread-safe.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates an empty embedding registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds a driver under the given name. Overwrites if exists.
func (r *Registry) Register(name string, driver Driver) {
	r.mu.Lock()
	r.drivers[name] = driver
	r.mu.Unlock()
	log.Info().Str("name", name).Str("kind", driver.Kind()).Int("dims", driver.Dimensions()).Msg("Embedding driver registered")
}

// Get returns the driver by name, or error if not found.
func (r *Registry) Get(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("embedding driver not found: %s", name)
	}
	return d, nil
}

// List returns all registered driver names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	return names
}
