package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baxromumarov/portal-scraper/internal/observability"
	"github.com/baxromumarov/portal-scraper/internal/runner"
	"github.com/baxromumarov/portal-scraper/internal/sink"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, observability.Snapshot())
}

func (s *Server) handlePortals(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"items": s.runs.Portals()})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runner.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Portal = strings.TrimSpace(req.Portal)
	req.Query = strings.TrimSpace(req.Query)
	req.Location = strings.TrimSpace(req.Location)

	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if !slices.Contains(s.runs.Portals(), req.Portal) {
		respondError(w, http.StatusBadRequest, "unknown portal: "+req.Portal)
		return
	}

	run := s.runs.Start(s.base, req)
	w.Header().Set("Location", "/runs/"+run.ID().String())
	respondJSON(w, http.StatusAccepted, run.Snapshot())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}
	run, ok := s.runs.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	respondJSON(w, http.StatusOK, run.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		respondError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	limit, offset := parsePagination(r, 20)

	jobs, err := s.jobs.ListJobs(r.Context(), r.URL.Query().Get("portal"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch jobs: "+err.Error())
		return
	}
	if jobs == nil {
		jobs = []sink.StoredJob{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"items":  jobs,
		"limit":  limit,
		"offset": offset,
	})
}

func parsePagination(r *http.Request, defaultLimit int) (int, int) {
	q := r.URL.Query()
	limit := defaultLimit
	offset := 0

	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
