package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"siterisk/app"
	"siterisk/domain/core"
	"siterisk/domain/metrics"
	"siterisk/internal"
	"siterisk/internal/errors"
	"siterisk/ports"
)

// Server exposes the scoring pipeline over HTTP. Input and output are plain
// structured JSON; report formatting and narrative text are downstream
// concerns.
type Server struct {
	router   chi.Router
	pipeline *app.PipelineService
	store    ports.RunStore
	logger   *internal.Logger
}

// NewServer wires the routes.
func NewServer(pipeline *app.PipelineService, store ports.RunStore, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router:   chi.NewRouter(),
		pipeline: pipeline,
		store:    store,
		logger:   logger,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/runs", s.handleCreateRun)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

type createRunRequest struct {
	Events []metrics.RawEvent `json:"events"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.InvalidInput("request body must be JSON with an events array"))
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, errors.InvalidInput("at least one event is required"))
		return
	}

	result, err := s.pipeline.Run(r.Context(), req.Events)
	if err != nil {
		s.logger.Error("run failed: %v", err)
		status := http.StatusInternalServerError
		if errors.GetCode(err) == errors.CodeConfigInvalid {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	runID, err := core.ParseRunID(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.InvalidInput("run ID is required"))
		return
	}
	result, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.GetCode(err) == errors.CodeNotFound {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	manifests, err := s.store.ListRuns(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": manifests})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}
