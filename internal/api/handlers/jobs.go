// Package handlers contains the HTTP handler implementations for the AdPilot
// admin API. Handlers are thin pass-throughs: they decode and validate the
// request, delegate to the engine component, and write the standard envelope.
// Each handler depends on locally defined interfaces so tests can inject
// doubles without touching the concrete implementations.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"adpilot/internal/core"
	"adpilot/internal/jobs"
	"adpilot/internal/types"
)

// JobRunner triggers one engine job run. Mirrors jobs.Runner.
type JobRunner interface {
	Run(ctx context.Context, job types.JobType) (*jobs.JobSummary, error)
}

// JobsHandler exposes manual job triggering for operators. The same runner
// instance backs the cron schedule, so the single-flight guard applies to
// manual runs too: triggering a job that is already running returns 409.
type JobsHandler struct {
	runner JobRunner
	logger *slog.Logger
}

// NewJobsHandler creates a JobsHandler with the provided dependencies.
func NewJobsHandler(runner JobRunner, logger *slog.Logger) *JobsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsHandler{runner: runner, logger: logger}
}

// RegisterRoutes mounts job routes on the provided chi.Router.
func (h *JobsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/jobs/{type}/run", h.Run)
}

// Run handles POST /v1/jobs/{type}/run. The run is synchronous; the response
// carries the job summary. Unknown job types map to 400 and concurrent
// duplicates to 409 via the runner's own errors.
func (h *JobsHandler) Run(w http.ResponseWriter, r *http.Request) {
	job := types.JobType(chi.URLParam(r, "type"))

	summary, err := h.runner.Run(r.Context(), job)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}
