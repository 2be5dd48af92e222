package scoring

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"adpilot/internal/config"
	"adpilot/internal/types"
)

// --- Test Doubles ---

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type mockSnapshotSource struct {
	snaps  []*types.PerformanceSnapshot
	phases map[string]types.LearningPhase
}

func (m *mockSnapshotSource) ListForAccount(ctx context.Context, ref types.AccountRef, since time.Time, entityTypes ...types.EntityType) ([]*types.PerformanceSnapshot, error) {
	return m.snaps, nil
}

func (m *mockSnapshotSource) LatestLearningPhases(ctx context.Context, ref types.AccountRef, since time.Time) (map[string]types.LearningPhase, error) {
	return m.phases, nil
}

type mockPixelSource struct {
	health *types.PixelHealth
	err    error
}

func (m *mockPixelSource) LatestPixelHealth(ctx context.Context, ref types.AccountRef) (*types.PixelHealth, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.health, nil
}

type mockScoreStore struct {
	prior    *types.AccountScore
	upserted []*types.AccountScore
}

func (m *mockScoreStore) Upsert(ctx context.Context, s *types.AccountScore) error {
	m.upserted = append(m.upserted, s)
	return nil
}

func (m *mockScoreStore) GetByDate(ctx context.Context, ref types.AccountRef, date time.Time) (*types.AccountScore, error) {
	return m.prior, nil
}

type mockNotifier struct {
	published []*types.Notification
}

func (m *mockNotifier) Publish(ctx context.Context, n *types.Notification) error {
	m.published = append(m.published, n)
	return nil
}

// --- Fixtures ---

var scoreNow = time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)

func defaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{GradeA: 90, GradeB: 75, GradeC: 60, GradeD: 40, ScoreChangeAlertPoints: 10}
}

func newTestScorer(snaps *mockSnapshotSource, pixels *mockPixelSource, store *mockScoreStore, notifier *mockNotifier) *Scorer {
	if pixels == nil {
		pixels = &mockPixelSource{health: &types.PixelHealth{HealthScore: 80}}
	}
	return NewScorer(ScorerConfig{
		Snapshots: snaps,
		Pixels:    pixels,
		Scores:    store,
		Notifier:  notifier,
		Scoring:   defaultScoringConfig(),
		Clock:     fixedClock{t: scoreNow},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func daySnapshot(daysAgo int, spend, revenue, conversions, cpa float64) *types.PerformanceSnapshot {
	roas := 0.0
	if spend > 0 {
		roas = revenue / spend * 100
	}
	return &types.PerformanceSnapshot{
		EntityType:   types.EntityAdSet,
		EntityID:     "adset-1",
		AdAccountID:  "act_123",
		UserID:       "user-1",
		SnapshotDate: scoreNow.AddDate(0, 0, -daysAgo),
		Spend:        spend,
		Revenue:      revenue,
		Conversions:  conversions,
		CPA:          cpa,
		ROAS:         roas,
	}
}

// --- Invariants ---

func TestWeightsSumToOne(t *testing.T) {
	sum := weightPerformance + weightEfficiency + weightPixelHealth + weightLearning + weightConsistency
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("component weights sum to %v, want 1.0", sum)
	}
}

func TestEfficiencyScore_MonotonicInWastedSpend(t *testing.T) {
	// Shift spend from converting to non-converting snapshots and check
	// the efficiency score never rises.
	prev := 101.0
	for wastedDays := 0; wastedDays <= 10; wastedDays++ {
		var snaps []*types.PerformanceSnapshot
		for d := 1; d <= 10; d++ {
			if d <= wastedDays {
				snaps = append(snaps, daySnapshot(d, 100, 0, 0, 0))
			} else {
				snaps = append(snaps, daySnapshot(d, 100, 250, 5, 20))
			}
		}
		got := efficiencyScore(snaps)
		if got > prev {
			t.Fatalf("efficiency rose from %.1f to %.1f as wasted spend grew", prev, got)
		}
		prev = got
	}
	if prev != 0 {
		t.Errorf("fully wasted spend scored %.1f, want 0", prev)
	}
}

func TestScoreAccount_OverallWithinBounds(t *testing.T) {
	var snaps []*types.PerformanceSnapshot
	for d := 1; d <= 30; d++ {
		snaps = append(snaps, daySnapshot(d, 100, 250, 5, 20))
	}
	source := &mockSnapshotSource{snaps: snaps, phases: map[string]types.LearningPhase{
		"adset-1": types.PhaseSuccess,
		"adset-2": types.PhaseLearning,
	}}
	store := &mockScoreStore{}
	s := newTestScorer(source, nil, store, &mockNotifier{})

	score, err := s.ScoreAccount(context.Background(), types.AccountRef{UserID: "user-1", AdAccountID: "act_123"})
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	components := map[string]float64{
		"overall":      score.OverallScore,
		"performance":  score.PerformanceScore,
		"efficiency":   score.EfficiencyScore,
		"pixel_health": score.PixelHealthScore,
		"learning":     score.LearningScore,
		"consistency":  score.ConsistencyScore,
	}
	for name, v := range components {
		if v < 0 || v > 100 {
			t.Errorf("%s score = %.2f, outside [0,100]", name, v)
		}
	}
	if score.LearningScore != 50 {
		t.Errorf("learning score = %.1f, want 50 for 1 of 2 ad sets in SUCCESS", score.LearningScore)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("upserted %d rows, want 1", len(store.upserted))
	}
	if !score.ScoreDate.Equal(scoreNow.Truncate(24 * time.Hour)) {
		t.Errorf("score_date = %v, want start of day", score.ScoreDate)
	}
}

func TestScoreAccount_CredentialErrorPropagates(t *testing.T) {
	source := &mockSnapshotSource{}
	pixels := &mockPixelSource{err: types.NewAppError(types.ErrCodeUpstreamCredential, "token revoked", nil)}
	store := &mockScoreStore{}
	s := newTestScorer(source, pixels, store, &mockNotifier{})

	_, err := s.ScoreAccount(context.Background(), types.AccountRef{UserID: "user-1", AdAccountID: "act_123"})
	if err == nil {
		t.Fatal("expected credential error to propagate")
	}
	if len(store.upserted) != 0 {
		t.Errorf("score persisted despite credential failure")
	}
}

func TestScoreAccount_MissingPixelScoresZero(t *testing.T) {
	var snaps []*types.PerformanceSnapshot
	for d := 1; d <= 10; d++ {
		snaps = append(snaps, daySnapshot(d, 100, 250, 5, 20))
	}
	source := &mockSnapshotSource{snaps: snaps}
	pixels := &mockPixelSource{err: types.NewAppError(types.ErrCodeNotFoundAccount, "no pixel data", nil)}
	store := &mockScoreStore{}
	s := newTestScorer(source, pixels, store, &mockNotifier{})

	score, err := s.ScoreAccount(context.Background(), types.AccountRef{UserID: "user-1", AdAccountID: "act_123"})
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	if score.PixelHealthScore != 0 {
		t.Errorf("pixel score = %.1f, want 0 for missing pixel data", score.PixelHealthScore)
	}
}

func TestScoreAccount_BigDropNotifies(t *testing.T) {
	var snaps []*types.PerformanceSnapshot
	for d := 1; d <= 10; d++ {
		snaps = append(snaps, daySnapshot(d, 100, 0, 0, 0)) // everything wasted
	}
	source := &mockSnapshotSource{snaps: snaps}
	store := &mockScoreStore{prior: &types.AccountScore{OverallScore: 85}}
	notifier := &mockNotifier{}
	s := newTestScorer(source, nil, store, notifier)

	score, err := s.ScoreAccount(context.Background(), types.AccountRef{UserID: "user-1", AdAccountID: "act_123"})
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	if score.ScoreTrend != types.TrendDeclining {
		t.Errorf("trend = %s, want declining", score.ScoreTrend)
	}
	if len(notifier.published) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.published))
	}
	n := notifier.published[0]
	if n.Type != types.NotifScoreChange || n.Priority != types.PriorityHigh {
		t.Errorf("notification = type %s priority %s, want score_change/high", n.Type, n.Priority)
	}
}

func TestScoreAccount_SmallMoveStaysQuiet(t *testing.T) {
	var snaps []*types.PerformanceSnapshot
	for d := 1; d <= 10; d++ {
		snaps = append(snaps, daySnapshot(d, 100, 250, 5, 20))
	}
	source := &mockSnapshotSource{snaps: snaps, phases: map[string]types.LearningPhase{"adset-1": types.PhaseSuccess}}
	store := &mockScoreStore{}
	notifier := &mockNotifier{}
	s := newTestScorer(source, nil, store, notifier)

	first, err := s.ScoreAccount(context.Background(), types.AccountRef{UserID: "user-1", AdAccountID: "act_123"})
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}

	// Prior day within the alert band: stable, silent.
	store.prior = &types.AccountScore{OverallScore: first.OverallScore - 0.5}
	second, err := s.ScoreAccount(context.Background(), types.AccountRef{UserID: "user-1", AdAccountID: "act_123"})
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	if second.ScoreTrend != types.TrendStable {
		t.Errorf("trend = %s, want stable", second.ScoreTrend)
	}
	if len(notifier.published) != 0 {
		t.Errorf("notifications = %d, want 0", len(notifier.published))
	}
}

func TestPerformanceScore_CPATrendAdjusts(t *testing.T) {
	build := func(recentCPA, priorCPA float64) []*types.PerformanceSnapshot {
		var snaps []*types.PerformanceSnapshot
		for d := 1; d <= 6; d++ {
			snaps = append(snaps, daySnapshot(d, 100, 150, 5, recentCPA))
		}
		for d := 8; d <= 13; d++ {
			snaps = append(snaps, daySnapshot(d, 100, 150, 5, priorCPA))
		}
		return snaps
	}

	base, trend := performanceScore(build(100, 100), scoreNow)
	if trend != types.MetricStable {
		t.Errorf("flat CPA classified %s, want stable", trend)
	}

	better, trend := performanceScore(build(80, 100), scoreNow)
	if trend != types.MetricDecreasing {
		t.Errorf("falling CPA classified %s, want decreasing", trend)
	}
	if better <= base {
		t.Errorf("falling CPA scored %.1f, want above the stable %.1f", better, base)
	}

	worse, trend := performanceScore(build(120, 100), scoreNow)
	if trend != types.MetricIncreasing {
		t.Errorf("rising CPA classified %s, want increasing", trend)
	}
	if worse >= base {
		t.Errorf("rising CPA scored %.1f, want below the stable %.1f", worse, base)
	}
}

func TestGradeBoundariesAreConfiguration(t *testing.T) {
	cfg := defaultScoringConfig()
	cases := []struct {
		score float64
		want  string
	}{
		{95, "A"}, {90, "A"}, {89.9, "B"}, {75, "B"}, {74, "C"}, {60, "C"}, {59, "D"}, {40, "D"}, {39, "F"}, {0, "F"},
	}
	for _, tc := range cases {
		if got := gradeFor(cfg, tc.score); got != tc.want {
			t.Errorf("gradeFor(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}

	// Tightened boundaries move the letter without a code change.
	cfg.GradeA = 95
	if got := gradeFor(cfg, 92); got != "B" {
		t.Errorf("gradeFor(92) with GradeA=95 = %s, want B", got)
	}
}

func TestRecommend_FlagsWeakestComponentsFirst(t *testing.T) {
	score := &types.AccountScore{
		PerformanceScore: 80,
		EfficiencyScore:  20,
		PixelHealthScore: 45,
		LearningScore:    90,
		ConsistencyScore: 70,
	}
	recs := recommend(score, types.MetricStable)
	if len(recs) != 2 {
		t.Fatalf("recommendations = %d, want 2 (efficiency, pixel)", len(recs))
	}
	// Weakest first.
	if recs[0] == recs[1] {
		t.Error("duplicate recommendations")
	}
}
