package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/onnwee/nbody-barneshut/backend/internal/apierr"
	"github.com/onnwee/nbody-barneshut/backend/internal/logger"
	"github.com/onnwee/nbody-barneshut/backend/internal/nbody"
	"github.com/onnwee/nbody-barneshut/backend/internal/runs"
	"github.com/onnwee/nbody-barneshut/backend/internal/store"
)

const (
	maxRequestBody = 1 << 16
	maxListLimit   = 500
)

// RunService is the part of runs.Service the HTTP layer uses.
type RunService interface {
	Submit(ctx context.Context, req runs.Request) (*store.Run, error)
	Get(ctx context.Context, id string) (*store.Run, error)
	List(ctx context.Context, limit int) ([]store.Run, error)
	Subscribe(id string) (*runs.Subscription, error)
	Cancel(id string) error
}

// RunHandler serves the /api/runs endpoints.
type RunHandler struct {
	svc      RunService
	upgrader websocket.Upgrader
}

// NewRunHandler accepts websocket upgrades from allowedOrigins, using the
// same patterns as the CORS middleware.
func NewRunHandler(svc RunService, allowedOrigins []string) *RunHandler {
	return &RunHandler{svc: svc, upgrader: newUpgrader(allowedOrigins)}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

// CreateRun queues a simulation run.
// POST /api/runs
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req runs.Request
	if err := dec.Decode(&req); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}

	run, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		var fe *runs.FieldError
		switch {
		case errors.As(err, &fe):
			apierr.WriteErrorWithContext(w, r, apierr.RunInvalidSpec(fe.Error()).
				WithDetails(map[string]interface{}{"field": fe.Field}))
		case errors.Is(err, runs.ErrBusy):
			apierr.WriteErrorWithContext(w, r, apierr.RunQueueFull())
		case errors.Is(err, runs.ErrShuttingDown):
			apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Server is shutting down"))
		case errors.Is(err, nbody.ErrInvalidParams):
			logger.ErrorContext(r.Context(), "Simulation parameters are misconfigured", "error", err)
			apierr.WriteErrorWithContext(w, r, apierr.SystemInternal("Simulation parameters are misconfigured"))
		default:
			logger.ErrorContext(r.Context(), "Failed to submit run", "error", err)
			apierr.WriteErrorWithContext(w, r, apierr.SystemStore("Failed to record run"))
		}
		return
	}

	w.Header().Set("Location", "/api/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

// ListRuns returns recent runs, newest first.
// GET /api/runs?limit=N
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxListLimit {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("limit", "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	list, err := h.svc.List(r.Context(), limit)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list runs", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemStore("Failed to list runs"))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetRun returns one run record.
// GET /api/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CancelRun stops a queued or running run.
// DELETE /api/runs/{id}
func (h *RunHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.svc.Cancel(id); err != nil {
		if _, ok := h.lookup(w, r, id); ok {
			apierr.WriteErrorWithContext(w, r, apierr.RunNotStreaming(id))
		}
		return
	}
	logger.InfoContext(logger.ContextWithRunID(r.Context(), id), "Run cancel requested")

	run, ok := h.lookup(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// lookup fetches a run and writes the error response when it cannot.
func (h *RunHandler) lookup(w http.ResponseWriter, r *http.Request, id string) (*store.Run, bool) {
	run, err := h.svc.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		apierr.WriteErrorWithContext(w, r, apierr.RunNotFound(id))
		return nil, false
	case err != nil:
		logger.ErrorContext(r.Context(), "Failed to load run", "error", err, "run_id", id)
		apierr.WriteErrorWithContext(w, r, apierr.SystemStore("Failed to load run"))
		return nil, false
	}
	return run, true
}
