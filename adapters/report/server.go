// Package report exposes run history over HTTP for external reporting
// collaborators. The surface is strictly read-only: every handler goes
// through the ReaderPort and nothing here can reach a sink or an engine.
package report

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"offerctr/domain/core"
	"offerctr/internal"
	"offerctr/ports"
)

// Server serves the read-only report API
type Server struct {
	router chi.Router
	reader ports.ReaderPort
	logger *internal.Logger
}

// Option configures the server
type Option func(*Server)

// WithMetrics mounts the prometheus scrape endpoint at /metrics
func WithMetrics() Option {
	return func(s *Server) {
		s.router.Handle("/metrics", promhttp.Handler())
	}
}

// NewServer builds the report server over a reader
func NewServer(reader ports.ReaderPort, opts ...Option) *Server {
	s := &Server{
		router: chi.NewRouter(),
		reader: reader,
		logger: internal.NewDefaultLogger().Component("report"),
	}

	s.setupMiddleware()
	s.setupRoutes()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the configured handler
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/runs", s.handleListRuns)
	s.router.Get("/runs/{id}", s.handleGetRun)
	s.router.Get("/runs/{id}/features", s.handleFeatureColumns)
	s.router.Get("/predictions", s.handleListPredictions)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRuns returns run summaries, newest first. Supports ?status=,
// ?limit= and ?offset=.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filters := ports.RunFilters{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := ports.RunStatus(raw)
		switch status {
		case ports.RunRunning, ports.RunCompleted, ports.RunFailed:
			filters.Status = &status
		default:
			s.writeError(w, http.StatusBadRequest, "unknown status "+raw)
			return
		}
	}

	runs, err := s.reader.ListRuns(r.Context(), filters)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []ports.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleGetRun returns the full manifest of one run
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := core.RunID(chi.URLParam(r, "id"))

	manifest, err := s.reader.GetRun(r.Context(), runID)
	if err != nil {
		if core.IsNotFoundError(err) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

// handleFeatureColumns returns the frozen feature contract of a run, in
// training order. This is the surface SHAP and reporting tools join
// per-model scores against.
func (s *Server) handleFeatureColumns(w http.ResponseWriter, r *http.Request) {
	runID := core.RunID(chi.URLParam(r, "id"))

	columns, err := s.reader.GetFeatureColumns(r.Context(), runID)
	if err != nil {
		if core.IsNotFoundError(err) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"columns": columns,
	})
}

// handleListPredictions returns stored scores with the per-model breakdown.
// Supports ?run_id=, ?record_id=, ?limit= and ?offset=.
func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	filters := ports.PredictionFilters{
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("run_id"); raw != "" {
		runID := core.RunID(raw)
		filters.RunID = &runID
	}
	if raw := r.URL.Query().Get("record_id"); raw != "" {
		recordID := core.RecordID(raw)
		filters.RecordID = &recordID
	}

	predictions, err := s.reader.ListPredictions(r.Context(), filters)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if predictions == nil {
		predictions = []ports.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"predictions": predictions})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed: %s", message)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
