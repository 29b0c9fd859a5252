// Package server hosts the HTTP API over the coordinator and the
// reconciliation job.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/docindex/internal/coordinator"
	"github.com/ziadkadry99/docindex/internal/logging"
	"github.com/ziadkadry99/docindex/internal/reconcile"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
}

// Checker reports whether a backing store is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// Server is the docindex HTTP server.
type Server struct {
	cfg        Config
	coord      *coordinator.Coordinator
	job        *reconcile.Job
	catalog    Checker
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server. job may be nil, in which case the reconcile routes
// are not mounted.
func New(cfg Config, coord *coordinator.Coordinator, job *reconcile.Job, catalog Checker, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		coord:   coord,
		job:     job,
		catalog: catalog,
		logger:  logging.OrDiscard(logger).With("component", "server"),
	}

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", s.handleReady)

	coordinator.RegisterRoutes(r, s.coord)
	if s.job != nil {
		reconcile.RegisterRoutes(r, s.job)
	}

	return r
}

// handleReady checks both stores. Either one failing makes the server
// unready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"metadata": "ok", "vector": "ok"}
	status := http.StatusOK

	if s.catalog != nil {
		if err := s.catalog.Check(ctx); err != nil {
			checks["metadata"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if _, err := s.coord.Vector().ListCollections(ctx); err != nil {
		checks["vector"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
		s.logger.Warn("readiness check failed", "checks", checks)
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port. After Shutdown it
// returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("docindex server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
