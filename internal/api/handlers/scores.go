package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"adpilot/internal/core"
	"adpilot/internal/types"
)

// defaultTrendDays is the trend window when the query does not specify one.
const defaultTrendDays = 30

// maxTrendDays caps the trend window to keep the query bounded.
const maxTrendDays = 90

// ScoreSource provides read access to account scores.
// Mirrors db.ScoreRepository.
type ScoreSource interface {
	GetLatest(ctx context.Context, adAccountID string) (*types.AccountScore, error)
	ListTrend(ctx context.Context, adAccountID string, since time.Time, limit int) ([]*types.AccountScore, error)
}

// ScoresHandler serves the account-score read surface.
type ScoresHandler struct {
	scores ScoreSource
	clock  types.Clock
	logger *slog.Logger
}

// NewScoresHandler creates a ScoresHandler. A nil clock defaults to the real
// clock.
func NewScoresHandler(scores ScoreSource, clock types.Clock, logger *slog.Logger) *ScoresHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoresHandler{scores: scores, clock: clock, logger: logger}
}

// RegisterRoutes mounts score routes on the provided chi.Router.
func (h *ScoresHandler) RegisterRoutes(r chi.Router) {
	r.Get("/scores/{accountID}", h.GetLatest)
	r.Get("/scores/{accountID}/trend", h.Trend)
}

// GetLatest handles GET /v1/scores/{accountID}. Returns the most recent
// score row for an account, or 404 when the account has never been scored.
func (h *ScoresHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	score, err := h.scores.GetLatest(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: score})
}

// Trend handles GET /v1/scores/{accountID}/trend?days=30. Returns score rows
// oldest first so clients can plot them directly.
func (h *ScoresHandler) Trend(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	days := defaultTrendDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationMissingField,
				"days must be a positive integer",
				err,
				map[string]any{"days": raw},
			))
			return
		}
		days = parsed
	}
	if days > maxTrendDays {
		days = maxTrendDays
	}

	since := h.clock.Now().AddDate(0, 0, -days)
	scores, err := h.scores.ListTrend(r.Context(), accountID, since, days)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: scores,
		Meta: &core.ListMeta{Count: len(scores)},
	})
}
