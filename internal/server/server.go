// Package server provides the HTTP boundary for the job engine, discovery
// trigger, and onboarding. The transport is deliberately thin: handlers
// validate input, delegate to internal services, and format responses.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/catosphere/catosphere-go/internal/db"
	"github.com/catosphere/catosphere-go/internal/jobs"
	"github.com/catosphere/catosphere-go/internal/models"
	"github.com/catosphere/catosphere-go/internal/onboarding"
	"github.com/catosphere/catosphere-go/internal/pipeline"
	"github.com/catosphere/catosphere-go/internal/scheduler"
)

// RunLister serves persisted discovery run summaries.
type RunLister interface {
	ListDiscoveryRuns(ctx context.Context, limit int) ([]models.DiscoveryRun, error)
}

// Server wires the HTTP routes to the internal services.
type Server struct {
	states     jobs.StateStore
	runner     *jobs.Runner
	catalog    pipeline.Catalog
	proc       pipeline.Processor
	onboarding *onboarding.Service
	scheduler  *scheduler.Scheduler
	runs       RunLister
	logger     *slog.Logger
}

// New creates a Server.
func New(states jobs.StateStore, runner *jobs.Runner, catalog pipeline.Catalog, proc pipeline.Processor,
	onboardingSvc *onboarding.Service, sched *scheduler.Scheduler, runs RunLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		states:     states,
		runner:     runner,
		catalog:    catalog,
		proc:       proc,
		onboarding: onboardingSvc,
		scheduler:  sched,
		runs:       runs,
		logger:     logger,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/onboard", s.handleOnboard)

		r.Route("/stores/{key}", func(r chi.Router) {
			r.Post("/reprocess", s.handleReprocess)
			r.Get("/job", s.handleJobStatus)
			r.Get("/job/logs", s.handleJobLogs)
			r.Post("/job/stop", s.handleJobStop)
		})

		r.Post("/discovery/run", s.handleDiscoveryTrigger)
		r.Get("/discovery/runs", s.handleDiscoveryRuns)
	})

	return r
}

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Message: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reprocessRequest struct {
	SoftCategoriesOnly bool `json:"soft_categories_only,omitempty"`
	AbortOnItemError   bool `json:"abort_on_item_error,omitempty"`
}

type reprocessResponse struct {
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// handleReprocess starts a reprocessing job and returns immediately; the
// caller polls the job endpoint for progress.
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing store key")
		return
	}

	var req reprocessRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	items, err := s.catalog.ListItems(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to list catalog items: "+err.Error())
		return
	}

	stages := pipeline.AllStages()
	if req.SoftCategoriesOnly {
		stages = pipeline.SoftCategoriesOnly()
	}

	err = s.runner.Start(r.Context(), key, items, s.proc, jobs.Options{
		Stages:           stages,
		AbortOnItemError: req.AbortOnItemError,
	})
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, "a job is already running for this store")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, reprocessResponse{Status: "started", Total: len(items)})
}

type jobStatusResponse struct {
	StoreKey  string          `json:"store_key"`
	State     models.JobState `json:"state"`
	Progress  int             `json:"progress"`
	Done      int             `json:"done"`
	Total     int             `json:"total"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rec, err := s.states.GetState(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := jobStatusResponse{
		StoreKey: rec.StoreKey,
		State:    rec.State,
		Progress: rec.Progress,
		Done:     rec.Done,
		Total:    rec.Total,
	}
	resp.StartedAt = rec.StartedAt
	if !rec.UpdatedAt.IsZero() {
		resp.UpdatedAt = &rec.UpdatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type jobLogsResponse struct {
	StoreKey   string          `json:"store_key"`
	State      models.JobState `json:"state"`
	Progress   int             `json:"progress"`
	Logs       []string        `json:"logs"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rec, err := s.states.GetState(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logs := rec.Logs
	if logs == nil {
		logs = []string{}
	}
	writeJSON(w, http.StatusOK, jobLogsResponse{
		StoreKey:   rec.StoreKey,
		State:      rec.State,
		Progress:   rec.Progress,
		Logs:       logs,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	})
}

type stopResponse struct {
	Stopped bool   `json:"stopped"`
	Detail  string `json:"detail"`
}

// handleJobStop is idempotent: stopping an already-stopped or never-started
// job reports "already stopped" with a 200, never an error.
func (s *Server) handleJobStop(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	removed, err := s.runner.Stop(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	detail := "stop requested"
	if !removed {
		detail = "already stopped"
	}
	writeJSON(w, http.StatusOK, stopResponse{Stopped: removed, Detail: detail})
}

func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing credential token")
		return
	}

	var req onboarding.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	cfg, err := s.onboarding.Onboard(r.Context(), token, req)
	switch {
	case errors.Is(err, onboarding.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, onboarding.ErrInvalidCredentials):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, db.ErrAlreadyExists):
		// concurrent first-time onboarding hit the unique store_key index
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleDiscoveryTrigger is fire-and-forget: the run completes asynchronously.
func (s *Server) handleDiscoveryTrigger(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleDiscoveryRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListDiscoveryRuns(r.Context(), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Catosphere-Token")
}
