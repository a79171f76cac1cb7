package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/timecamp-tools/timecamp-sync/internal/metrics"
	"github.com/timecamp-tools/timecamp-sync/internal/pipeline"
)

// RouterConfig holds all dependencies needed to build the HTTP router.
type RouterConfig struct {
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// NewRouter builds and returns the fully configured Chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// RequestID generates a unique ID for each request, used in logs and
	// response headers for tracing.
	r.Use(middleware.RequestID)

	// RealIP extracts the real client IP from X-Forwarded-For or X-Real-IP
	// headers when the server runs behind a reverse proxy.
	r.Use(middleware.RealIP)

	// RequestLogger logs every request with method, path, status and latency.
	r.Use(RequestLogger(cfg.Logger))

	// Recoverer catches panics in handlers, logs them, and returns a 500
	// instead of crashing the server.
	r.Use(middleware.Recoverer)

	h := &runHandler{pipeline: cfg.Pipeline, logger: cfg.Logger}

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{}))
	r.Post("/run", h.Run)

	return r
}

// runHandler serves the probe and trigger endpoints.
type runHandler struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// Health reports process liveness and whether a run is executing.
func (h *runHandler) Health(w http.ResponseWriter, r *http.Request) {
	Ok(w, map[string]any{
		"status":  "ok",
		"running": h.pipeline.Running(),
	})
}

// Run triggers a pipeline run. By default the run executes in the
// background and the handler answers 202 immediately; with ?wait=true the
// handler blocks until the run completes and returns the full result.
// Query parameter dry_run=true plans without writing.
func (h *runHandler) Run(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"
	wait := r.URL.Query().Get("wait") == "true"

	if wait {
		res, err := h.pipeline.Run(r.Context(), dryRun)
		switch {
		case errors.Is(err, pipeline.ErrRunInProgress):
			ErrConflict(w, "a run is already in progress")
		case err != nil:
			h.logger.Error("triggered run failed", zap.Error(err))
			ErrInternal(w)
		default:
			Ok(w, res)
		}
		return
	}

	if h.pipeline.Running() {
		ErrConflict(w, "a run is already in progress")
		return
	}

	// The run outlives the request; it is only cancelled by process
	// shutdown, not by the client disconnecting.
	go func() {
		if _, err := h.pipeline.Run(context.Background(), dryRun); err != nil && !errors.Is(err, pipeline.ErrRunInProgress) {
			h.logger.Error("triggered run failed", zap.Error(err))
		}
	}()

	Accepted(w, map[string]any{
		"status":  "started",
		"dry_run": dryRun,
	})
}
