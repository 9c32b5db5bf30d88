// Package server is the public entry point for composing the carepipe
// service: configuration, telemetry, storage backend, embeddings and
// generation drivers, knowledge index, pipeline runner and HTTP routes.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/stratumhealth/carepipe/internal/api"
	"github.com/stratumhealth/carepipe/internal/api/handlers"
	"github.com/stratumhealth/carepipe/internal/config"
	"github.com/stratumhealth/carepipe/internal/embeddings"
	"github.com/stratumhealth/carepipe/internal/llm"
	"github.com/stratumhealth/carepipe/internal/pipeline"
	"github.com/stratumhealth/carepipe/internal/rag"
	"github.com/stratumhealth/carepipe/internal/schema"
	"github.com/stratumhealth/carepipe/internal/store"
	"github.com/stratumhealth/carepipe/internal/telemetry"
	"github.com/stratumhealth/carepipe/internal/vectorstore"
	"github.com/stratumhealth/carepipe/pkg/models"
)

// Server holds the initialized carepipe service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Records is the configured record store; nil when persistence is
	// disabled.
	Records store.RecordStore

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc flushes telemetry; call it on graceful shutdown.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from the environment and returns a ready
// Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the service with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	records, err := newRecordStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedDriver, err := newEmbeddingsDriver(cfg)
	if err != nil {
		return nil, err
	}

	generator, err := newGenerationDriver(cfg)
	if err != nil {
		return nil, err
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("compile schemas: %w", err)
	}

	// Knowledge index: builtin notes plus whatever the knowledge dir holds.
	var (
		ingester  *rag.Ingester
		retriever *rag.Retriever
	)
	if cfg.Pipeline.EnableRAG {
		index := vectorstore.NewIndex()
		ingester = rag.NewIngester(embedDriver, index, log.Logger)
		retriever = rag.NewRetriever(embedDriver, index, cfg.Pipeline.TopK, cfg.Pipeline.RetrievalTimeout, log.Logger)
		if err := seedKnowledge(ctx, ingester, cfg.Knowledge); err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("retrieval disabled")
	}

	runner := pipeline.NewRunner(generator, retriever, records, validator, pipeline.Options{
		EnableRAG:          cfg.Pipeline.EnableRAG,
		EnablePersistence:  cfg.Pipeline.EnablePersistence,
		RequirePersistence: cfg.Pipeline.RequirePersistence,
		GenerationTimeout:  cfg.Pipeline.GenerationTimeout,
	}, log.Logger)

	h := handlers.New(runner, ingester, records, cfg.Version)
	router := api.NewRouter(h, healthHandler(records, generator))

	log.Info().
		Str("llm", generator.Kind()).
		Str("embeddings", embedDriver.Kind()).
		Str("store", cfg.Store.Kind).
		Bool("rag", cfg.Pipeline.EnableRAG).
		Bool("persistence", cfg.Pipeline.EnablePersistence).
		Msg("carepipe initialized")

	return &Server{
		Handler:      router,
		Records:      records,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func newRecordStore(ctx context.Context, cfg *config.Config) (store.RecordStore, error) {
	if !cfg.Pipeline.EnablePersistence {
		log.Info().Msg("persistence disabled")
		return nil, nil
	}
	switch cfg.Store.Kind {
	case "memory":
		log.Info().Msg("in-memory record store initialized")
		return store.NewMemoryStore(), nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		log.Info().Str("path", s.Path()).Msg("sqlite record store initialized")
		return s, nil
	case "postgres":
		s, err := store.NewPostgresStore(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		log.Info().Msg("postgres record store initialized")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}

func newEmbeddingsDriver(cfg *config.Config) (embeddings.Driver, error) {
	registry := embeddings.NewRegistry()
	registry.Register("hash", embeddings.NewHashDriver(cfg.Embeddings.Dimensions))
	if cfg.LLM.APIKey != "" {
		driver, err := embeddings.NewOpenAIDriver(cfg.LLM.APIKey, cfg.Embeddings.Model)
		if err != nil {
			return nil, fmt.Errorf("init openai embeddings: %w", err)
		}
		registry.Register("openai", driver)
	}

	driver, err := registry.Get(cfg.Embeddings.Driver)
	if err != nil {
		return nil, fmt.Errorf("embeddings driver %q: %w", cfg.Embeddings.Driver, err)
	}
	return driver, nil
}

func newGenerationDriver(cfg *config.Config) (llm.Driver, error) {
	switch cfg.LLM.Mode {
	case "mock":
		return llm.NewMockDriver(), nil
	case "openai":
		driver, err := llm.NewOpenAIDriver(cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, fmt.Errorf("init openai driver: %w", err)
		}
		return driver, nil
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.LLM.Mode)
	}
}

func seedKnowledge(ctx context.Context, ingester *rag.Ingester, cfg config.KnowledgeConfig) error {
	docs := rag.DefaultKnowledgeDocuments()
	fromDir, err := rag.LoadKnowledgeDir(cfg.Dir)
	if err != nil {
		return fmt.Errorf("load knowledge dir: %w", err)
	}
	docs = append(docs, fromDir...)

	result, err := ingester.Ingest(ctx, models.IngestRequest{
		Documents:    docs,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	if err != nil {
		return fmt.Errorf("seed knowledge index: %w", err)
	}
	log.Info().
		Int("documents", result.DocumentsProcessed).
		Int("chunks", result.ChunksCreated).
		Msg("knowledge index seeded")
	return nil
}

func healthHandler(records store.RecordStore, generator llm.Driver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		checks := map[string]string{}

		if records != nil {
			if err := records.Ping(r.Context()); err != nil {
				checks["store"] = "unreachable"
				status = "degraded"
				code = http.StatusServiceUnavailable
			} else {
				checks["store"] = "ok"
			}
		}
		checks["llm"] = generator.Kind()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  status,
			"service": "carepipe",
			"checks":  checks,
		})
	}
}
