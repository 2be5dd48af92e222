package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adpilot/internal/db"
	"adpilot/internal/types"
)

type handlerClock struct {
	now time.Time
}

func (c handlerClock) Now() time.Time { return c.now }

type mockPatternSource struct {
	listFn func(ctx context.Context, params db.ListPatternsParams) ([]*types.LearnedPattern, error)

	lastParams db.ListPatternsParams
}

func (m *mockPatternSource) List(ctx context.Context, params db.ListPatternsParams) ([]*types.LearnedPattern, error) {
	m.lastParams = params
	if m.listFn != nil {
		return m.listFn(ctx, params)
	}
	return nil, nil
}

var patternsNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newPatternsRouter(source *mockPatternSource) http.Handler {
	h := NewPatternsHandler(source, handlerClock{now: patternsNow}, testLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestPatternsList_PassesFilters(t *testing.T) {
	source := &mockPatternSource{}
	router := newPatternsRouter(source)

	w := doJSON(t, router, http.MethodGet,
		"/patterns?pattern_type=winner_profile&user_id=u_1&account_id=act_1&limit=5", nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, source.lastParams.PatternType)
	assert.Equal(t, types.PatternWinnerProfile, *source.lastParams.PatternType)
	assert.Equal(t, "u_1", *source.lastParams.UserID)
	assert.Equal(t, "act_1", *source.lastParams.AdAccountID)
	assert.Equal(t, 5, source.lastParams.Limit)
	assert.Nil(t, source.lastParams.ValidAt)
}

func TestPatternsList_ActiveFilterUsesClock(t *testing.T) {
	source := &mockPatternSource{}
	router := newPatternsRouter(source)

	w := doJSON(t, router, http.MethodGet, "/patterns?active=true", nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, source.lastParams.ValidAt)
	assert.True(t, source.lastParams.ValidAt.Equal(patternsNow))
}

func TestPatternsList_RejectsUnknownPatternType(t *testing.T) {
	source := &mockPatternSource{}
	router := newPatternsRouter(source)

	w := doJSON(t, router, http.MethodGet, "/patterns?pattern_type=astrology", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeEnvelope(t, w)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, string(types.ErrCodeValidationInvalidPattern), errBody["code"])
}

func TestPatternsList_ReturnsPatternsWithCount(t *testing.T) {
	source := &mockPatternSource{
		listFn: func(_ context.Context, _ db.ListPatternsParams) ([]*types.LearnedPattern, error) {
			return []*types.LearnedPattern{
				{
					ID:          "pat_1",
					PatternType: types.PatternTimeOfDay,
					PatternName: "hourly_roas_profile",
					Data:        &types.TimeOfDayData{},
				},
			}, nil
		},
	}
	router := newPatternsRouter(source)

	w := doJSON(t, router, http.MethodGet, "/patterns", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["count"])
}
