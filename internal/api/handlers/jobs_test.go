package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adpilot/internal/jobs"
	"adpilot/internal/types"
)

type mockJobRunner struct {
	runFn func(ctx context.Context, job types.JobType) (*jobs.JobSummary, error)

	lastJob types.JobType
}

func (m *mockJobRunner) Run(ctx context.Context, job types.JobType) (*jobs.JobSummary, error) {
	m.lastJob = job
	if m.runFn != nil {
		return m.runFn(ctx, job)
	}
	return &jobs.JobSummary{Job: job, Duration: 10 * time.Millisecond}, nil
}

func newJobsRouter(runner *mockJobRunner) http.Handler {
	h := NewJobsHandler(runner, testLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestJobsRun_TriggersRequestedJob(t *testing.T) {
	runner := &mockJobRunner{
		runFn: func(_ context.Context, job types.JobType) (*jobs.JobSummary, error) {
			return &jobs.JobSummary{Job: job, Processed: 12, Failed: 1}, nil
		},
	}
	router := newJobsRouter(runner)

	w := doJSON(t, router, http.MethodPost, "/jobs/account_scoring/run", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.JobAccountScoring, runner.lastJob)

	body := decodeEnvelope(t, w)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(12), data["processed"])
	assert.Equal(t, float64(1), data["failed"])
}

func TestJobsRun_UnknownTypeIs400(t *testing.T) {
	runner := &mockJobRunner{
		runFn: func(_ context.Context, job types.JobType) (*jobs.JobSummary, error) {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidJobType,
				"unknown job type",
				nil,
				map[string]any{"job_type": string(job)},
			)
		},
	}
	router := newJobsRouter(runner)

	w := doJSON(t, router, http.MethodPost, "/jobs/coffee_brewing/run", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobsRun_DuplicateRunIs409(t *testing.T) {
	runner := &mockJobRunner{
		runFn: func(_ context.Context, job types.JobType) (*jobs.JobSummary, error) {
			return nil, types.NewAppError(types.ErrCodeJobAlreadyRunning, "job already running", nil)
		},
	}
	router := newJobsRouter(runner)

	w := doJSON(t, router, http.MethodPost, "/jobs/pattern_learning/run", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}
