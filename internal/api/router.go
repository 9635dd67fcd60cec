package api

import (
	"encoding/json"
	"net/http"

	"github.com/panelsim/panelsim/internal/api/handlers"
	"github.com/panelsim/panelsim/internal/api/middleware"
	"github.com/panelsim/panelsim/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Live simulations
		r.Route("/simulations", func(r chi.Router) {
			r.Post("/", h.StartSimulation)
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", h.GetSimulation)
				r.Delete("/", h.CancelSimulation)
				r.Get("/events", h.StreamEvents)
				r.Post("/interview", h.Interview)
				r.Post("/improvement-plan", h.ImprovementPlan)
			})
		})

		// Persisted run history
		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.ListHistory)
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", h.GetHistory)
				r.Delete("/", h.DeleteHistory)
			})
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "panelsim",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "panelsim",
		})
	}
}
