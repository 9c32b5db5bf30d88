// Package api wires the HTTP routes for the carepipe service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stratumhealth/carepipe/internal/api/handlers"
	"github.com/stratumhealth/carepipe/internal/api/middleware"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(h *handlers.Handlers, health http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", health)
	r.Get("/version", versionHandler(h.Version))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/run", h.RunPipeline)
		})

		r.Post("/ingest", h.ValidateIntake)

		r.Route("/knowledge", func(r chi.Router) {
			r.Post("/ingest", h.IngestKnowledge)
		})

		r.Route("/records", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Get("/{recordId}", h.GetRecord)
		})
	})

	return r
}

func versionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": version,
			"service": "carepipe",
		})
	}
}
