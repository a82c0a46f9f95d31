package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/baxromumarov/portal-scraper/internal/runner"
	"github.com/baxromumarov/portal-scraper/internal/sink"
)

// Runs starts and tracks scrape runs.
type Runs interface {
	Portals() []string
	Start(ctx context.Context, req runner.Request) *runner.Run
	Get(id uuid.UUID) (*runner.Run, bool)
}

// JobStore lists persisted jobs.
type JobStore interface {
	ListJobs(ctx context.Context, portal string, limit, offset int) ([]sink.StoredJob, error)
}

type Server struct {
	router *chi.Mux
	runs   Runs
	jobs   JobStore
	// parent context for runs started over HTTP
	base context.Context
}

// NewServer builds the router. jobs may be nil when no database is
// configured; /jobs then answers 503.
func NewServer(base context.Context, runs Runs, jobs JobStore) *Server {
	s := &Server{
		router: chi.NewRouter(),
		runs:   runs,
		jobs:   jobs,
		base:   base,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/portals", s.handlePortals)
	s.router.Post("/runs", s.handleStartRun)
	s.router.Get("/runs/{id}", s.handleGetRun)
	s.router.Get("/jobs", s.handleListJobs)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
