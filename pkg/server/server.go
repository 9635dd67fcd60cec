// Package server provides the public entry point for initializing the
// PanelSim server.
//
// It lives in pkg/ (not internal/) so embedders can compose the full
// server with their own middleware or storage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/panelsim/panelsim/internal/api"
	"github.com/panelsim/panelsim/internal/api/handlers"
	"github.com/panelsim/panelsim/internal/config"
	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/internal/sim"
	"github.com/panelsim/panelsim/internal/store"
	"github.com/panelsim/panelsim/internal/telemetry"
	"github.com/panelsim/panelsim/internal/throttle"
)

// Server holds the initialized PanelSim components.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Engine drives simulation runs.
	Engine *sim.Engine

	// History is the run history store.
	History store.Store

	// Config is the loaded server configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from the environment and returns a
// ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var history store.Store
	if cfg.Storage.Path != "" {
		history, err = store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.Storage.Path).Msg("✅ SQLite history store initialized")
	} else {
		history = store.NewMemoryStore()
		log.Info().Msg("✅ In-memory history store initialized")
	}

	client := genai.NewGemini(cfg.GenAI.APIKey)
	if !client.HasKey() {
		log.Warn().Msg("GEMINI_API_KEY is not set; simulation runs will fail")
	}

	limiter := throttle.NewRateLimiter(cfg.GenAI.MinInterval)
	queue := throttle.NewQueue(cfg.GenAI.Concurrency)
	engine := sim.NewEngine(client, limiter, queue, history,
		sim.DefaultConfig(cfg.GenAI.OrganizerModel, cfg.GenAI.WorkerModel))

	log.Info().
		Str("organizer_model", cfg.GenAI.OrganizerModel).
		Str("worker_model", cfg.GenAI.WorkerModel).
		Dur("min_interval", cfg.GenAI.MinInterval).
		Int("concurrency", cfg.GenAI.Concurrency).
		Msg("✅ Simulation engine initialized")

	h := handlers.New(engine, history)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Engine:       engine,
		History:      history,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
