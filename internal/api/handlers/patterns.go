package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"adpilot/internal/core"
	"adpilot/internal/db"
	"adpilot/internal/types"
)

// PatternSource provides read access to learned patterns.
// Mirrors db.PatternRepository.
type PatternSource interface {
	List(ctx context.Context, params db.ListPatternsParams) ([]*types.LearnedPattern, error)
}

// PatternsHandler serves the learned-pattern read surface.
type PatternsHandler struct {
	patterns PatternSource
	clock    types.Clock
	logger   *slog.Logger
}

// NewPatternsHandler creates a PatternsHandler. A nil clock defaults to the
// real clock.
func NewPatternsHandler(patterns PatternSource, clock types.Clock, logger *slog.Logger) *PatternsHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PatternsHandler{patterns: patterns, clock: clock, logger: logger}
}

// RegisterRoutes mounts pattern routes on the provided chi.Router.
func (h *PatternsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/patterns", h.List)
}

// validPatternTypes guards the pattern_type query parameter.
var validPatternTypes = map[types.PatternType]struct{}{
	types.PatternTimeOfDay:           {},
	types.PatternWinnerProfile:       {},
	types.PatternLoserProfile:        {},
	types.PatternPerformanceClusters: {},
	types.PatternFatigueThreshold:    {},
	types.PatternExpertKill:          {},
	types.PatternExpertScale:         {},
	types.PatternExpertBenchmark:     {},
}

// List handles GET /v1/patterns.
//
// Query parameters:
//   - pattern_type: restrict to one pattern type
//   - user_id, account_id: restrict scope
//   - active: "true" restricts to patterns whose validity window covers now
//   - limit: page size (repository clamps to its own bounds)
func (h *PatternsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := db.ListPatternsParams{}

	if raw := q.Get("pattern_type"); raw != "" {
		pt := types.PatternType(raw)
		if _, ok := validPatternTypes[pt]; !ok {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidPattern,
				"unknown pattern type",
				nil,
				map[string]any{"pattern_type": raw},
			))
			return
		}
		params.PatternType = &pt
	}

	if userID := q.Get("user_id"); userID != "" {
		params.UserID = &userID
	}
	if accountID := q.Get("account_id"); accountID != "" {
		params.AdAccountID = &accountID
	}
	if q.Get("active") == "true" {
		now := h.clock.Now()
		params.ValidAt = &now
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			params.Limit = limit
		}
	}

	patterns, err := h.patterns.List(r.Context(), params)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: patterns,
		Meta: &core.ListMeta{Count: len(patterns)},
	})
}
