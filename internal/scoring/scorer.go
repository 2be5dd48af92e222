// Package scoring computes the daily composite health score per ad account:
// five 0-100 components combined with fixed weights, graded against
// configurable boundaries, and compared against the prior day's row.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"adpilot/internal/config"
	"adpilot/internal/types"
)

// Component weights. They must sum to 1.0; TestWeightsSumToOne guards the
// invariant.
const (
	weightPerformance = 0.35
	weightEfficiency  = 0.25
	weightPixelHealth = 0.15
	weightLearning    = 0.15
	weightConsistency = 0.10
)

const (
	performanceWindowDays = 30
	learningWindowDays    = 7

	// cpaTrendBand is the week-over-week CPA change (fraction) inside
	// which the trend counts as stable.
	cpaTrendBand = 0.10
	// cpaTrendAdjust is the performance-score bonus/penalty for a
	// decreasing/increasing CPA trend.
	cpaTrendAdjust = 10.0

	// fullMarksROAS is the 30-day mean ROAS that earns a full
	// performance base score.
	fullMarksROAS = 200.0

	// trendStablePoints is the day-over-day movement treated as noise.
	trendStablePoints = 1.0
)

// SnapshotSource abstracts the snapshot reads the scorer needs. Satisfied by
// *db.SnapshotRepository.
type SnapshotSource interface {
	ListForAccount(ctx context.Context, ref types.AccountRef, since time.Time, entityTypes ...types.EntityType) ([]*types.PerformanceSnapshot, error)
	LatestLearningPhases(ctx context.Context, ref types.AccountRef, since time.Time) (map[string]types.LearningPhase, error)
}

// PixelHealthSource abstracts the pixel-health read from the ingestion
// collaborator. Satisfied by *external.PixelClient.
type PixelHealthSource interface {
	LatestPixelHealth(ctx context.Context, ref types.AccountRef) (*types.PixelHealth, error)
}

// ScoreStore abstracts the score reads and writes. Satisfied by
// *db.ScoreRepository.
type ScoreStore interface {
	Upsert(ctx context.Context, s *types.AccountScore) error
	// GetByDate returns (nil, nil) when no row exists for the date.
	GetByDate(ctx context.Context, ref types.AccountRef, date time.Time) (*types.AccountScore, error)
}

// NotificationPublisher abstracts the score-change notification side effect.
// Satisfied by *notify.Publisher.
type NotificationPublisher interface {
	Publish(ctx context.Context, n *types.Notification) error
}

// Scorer computes and persists one AccountScore per account per day.
type Scorer struct {
	snapshots SnapshotSource
	pixels    PixelHealthSource
	scores    ScoreStore
	notifier  NotificationPublisher
	cfg       config.ScoringConfig
	clock     types.Clock
	logger    *slog.Logger
}

// ScorerConfig holds the configuration for creating a Scorer.
type ScorerConfig struct {
	Snapshots SnapshotSource
	Pixels    PixelHealthSource
	Scores    ScoreStore
	Notifier  NotificationPublisher
	Scoring   config.ScoringConfig
	Clock     types.Clock
	Logger    *slog.Logger
}

// NewScorer creates a Scorer with the given configuration.
func NewScorer(cfg ScorerConfig) *Scorer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Scorer{
		snapshots: cfg.Snapshots,
		pixels:    cfg.Pixels,
		scores:    cfg.Scores,
		notifier:  cfg.Notifier,
		cfg:       cfg.Scoring,
		clock:     clock,
		logger:    logger,
	}
}

// ScoreAccount computes, persists, and returns today's score for one
// account. Credential-class errors from the pixel-health source propagate so
// the caller can stop processing the account.
func (s *Scorer) ScoreAccount(ctx context.Context, ref types.AccountRef) (*types.AccountScore, error) {
	now := s.clock.Now()
	scoreDate := now.Truncate(24 * time.Hour)

	snaps, err := s.snapshots.ListForAccount(ctx, ref, now.AddDate(0, 0, -performanceWindowDays))
	if err != nil {
		return nil, fmt.Errorf("scorer: fetch snapshots for %s: %w", ref.AdAccountID, err)
	}

	performance, cpaTrend := performanceScore(snaps, now)
	efficiency := efficiencyScore(snaps)
	consistency := consistencyScore(snaps)

	pixel, err := s.pixelScore(ctx, ref)
	if err != nil {
		return nil, err
	}

	learning, err := s.learningScore(ctx, ref, now)
	if err != nil {
		return nil, err
	}

	score := &types.AccountScore{
		ID:          uuid.NewString(),
		UserID:      ref.UserID,
		AdAccountID: ref.AdAccountID,
		ScoreDate:   scoreDate,

		PerformanceScore: performance,
		EfficiencyScore:  efficiency,
		PixelHealthScore: pixel,
		LearningScore:    learning,
		ConsistencyScore: consistency,

		ScoreTrend: types.TrendStable,
		CreatedAt:  now,
	}
	score.OverallScore = clamp(
		performance*weightPerformance+
			efficiency*weightEfficiency+
			pixel*weightPixelHealth+
			learning*weightLearning+
			consistency*weightConsistency,
		0, 100)
	score.Grade = gradeFor(s.cfg, score.OverallScore)
	score.Recommendations = recommend(score, cpaTrend)

	if err := s.applyTrend(ctx, ref, score, scoreDate); err != nil {
		// Trend is best-effort; a missing prior row must not block today's
		// score.
		s.logger.ErrorContext(ctx, "score trend lookup failed", "ad_account_id", ref.AdAccountID, "error", err)
	}

	if err := s.scores.Upsert(ctx, score); err != nil {
		return nil, fmt.Errorf("scorer: upsert score for %s: %w", ref.AdAccountID, err)
	}
	return score, nil
}

// performanceScore maps the 30-day mean ROAS to a 0-100 base and adjusts it
// by the week-over-week CPA direction.
func performanceScore(snaps []*types.PerformanceSnapshot, now time.Time) (float64, types.MetricTrend) {
	var roasValues []float64
	var cpaRecent, cpaPrior []float64
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	for _, snap := range snaps {
		if snap.HourOfDay != nil || snap.Spend <= 0 {
			continue
		}
		roasValues = append(roasValues, snap.ROAS)
		if snap.CPA <= 0 {
			continue
		}
		switch {
		case !snap.SnapshotDate.Before(weekAgo):
			cpaRecent = append(cpaRecent, snap.CPA)
		case !snap.SnapshotDate.Before(twoWeeksAgo):
			cpaPrior = append(cpaPrior, snap.CPA)
		}
	}

	base := clamp(mean(roasValues)/fullMarksROAS*100, 0, 100)

	trend := types.MetricStable
	if len(cpaRecent) > 0 && len(cpaPrior) > 0 {
		prior := mean(cpaPrior)
		if prior > 0 {
			change := (mean(cpaRecent) - prior) / prior
			switch {
			case change < -cpaTrendBand:
				trend = types.MetricDecreasing
				base = clamp(base+cpaTrendAdjust, 0, 100)
			case change > cpaTrendBand:
				trend = types.MetricIncreasing
				base = clamp(base-cpaTrendAdjust, 0, 100)
			}
		}
	}
	return base, trend
}

// efficiencyScore is 100 x (1 - wasted-spend ratio), where wasted spend is
// spend on snapshots that converted nothing.
func efficiencyScore(snaps []*types.PerformanceSnapshot) float64 {
	var total, wasted float64
	for _, snap := range snaps {
		if snap.HourOfDay != nil || snap.Spend <= 0 {
			continue
		}
		total += snap.Spend
		if snap.Conversions == 0 {
			wasted += snap.Spend
		}
	}
	if total == 0 {
		return 100
	}
	return clamp((1-wasted/total)*100, 0, 100)
}

// consistencyScore rewards stable daily ROAS: 100 x (1 - coefficient of
// variation), floored at 0.
func consistencyScore(snaps []*types.PerformanceSnapshot) float64 {
	type dayTotals struct{ spend, revenue float64 }
	byDay := make(map[string]*dayTotals)
	for _, snap := range snaps {
		if snap.HourOfDay != nil || snap.Spend <= 0 {
			continue
		}
		key := snap.SnapshotDate.Format("2006-01-02")
		d := byDay[key]
		if d == nil {
			d = &dayTotals{}
			byDay[key] = d
		}
		d.spend += snap.Spend
		d.revenue += snap.Revenue
	}
	if len(byDay) < 2 {
		return 50
	}

	daily := make([]float64, 0, len(byDay))
	for _, d := range byDay {
		daily = append(daily, d.revenue/d.spend*100)
	}
	m := mean(daily)
	if m == 0 {
		return 0
	}
	return clamp((1-stddev(daily)/m)*100, 0, 100)
}

// pixelScore reads the account's latest pixel-health snapshot. An absent
// snapshot scores 0; credential errors propagate so the account's processing
// stops.
func (s *Scorer) pixelScore(ctx context.Context, ref types.AccountRef) (float64, error) {
	health, err := s.pixels.LatestPixelHealth(ctx, ref)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundAccount {
			return 0, nil
		}
		return 0, fmt.Errorf("scorer: pixel health for %s: %w", ref.AdAccountID, err)
	}
	return clamp(health.HealthScore, 0, 100), nil
}

// learningScore is the share of ad sets whose most recent learning phase is
// SUCCESS. An account with no recent ad sets scores neutral.
func (s *Scorer) learningScore(ctx context.Context, ref types.AccountRef, now time.Time) (float64, error) {
	phases, err := s.snapshots.LatestLearningPhases(ctx, ref, now.AddDate(0, 0, -learningWindowDays))
	if err != nil {
		return 0, fmt.Errorf("scorer: learning phases for %s: %w", ref.AdAccountID, err)
	}
	if len(phases) == 0 {
		return 50, nil
	}
	succeeded := 0
	for _, phase := range phases {
		if phase == types.PhaseSuccess {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(phases)) * 100, nil
}

// applyTrend compares against the prior day's row and emits a score-change
// notification when the move exceeds the configured alert threshold.
func (s *Scorer) applyTrend(ctx context.Context, ref types.AccountRef, score *types.AccountScore, scoreDate time.Time) error {
	prior, err := s.scores.GetByDate(ctx, ref, scoreDate.AddDate(0, 0, -1))
	if err != nil {
		return err
	}
	if prior == nil {
		return nil
	}

	delta := score.OverallScore - prior.OverallScore
	if prior.OverallScore > 0 {
		score.TrendPercentage = delta / prior.OverallScore * 100
	}
	switch {
	case delta > trendStablePoints:
		score.ScoreTrend = types.TrendImproving
	case delta < -trendStablePoints:
		score.ScoreTrend = types.TrendDeclining
	}

	if math.Abs(delta) > s.cfg.ScoreChangeAlertPoints {
		if err := s.publishScoreChange(ctx, ref, score, delta); err != nil {
			s.logger.ErrorContext(ctx, "score change notification failed", "ad_account_id", ref.AdAccountID, "error", err)
		}
	}
	return nil
}

func (s *Scorer) publishScoreChange(ctx context.Context, ref types.AccountRef, score *types.AccountScore, delta float64) error {
	priority := types.PriorityNormal
	direction := "improved"
	if delta < 0 {
		priority = types.PriorityHigh
		direction = "dropped"
	}
	id := ref.AdAccountID
	return s.notifier.Publish(ctx, &types.Notification{
		ID:       uuid.NewString(),
		UserID:   ref.UserID,
		Type:     types.NotifScoreChange,
		Priority: priority,
		Title:    fmt.Sprintf("Account score %s %.0f points", direction, math.Abs(delta)),
		Message: fmt.Sprintf("Account %s health score is now %.0f (%s), grade %s.",
			ref.AdAccountID, score.OverallScore, score.ScoreTrend, score.Grade),
		EntityID:  &id,
		CreatedAt: s.clock.Now(),
	})
}

// recommend derives the text recommendations from the weakest components.
func recommend(score *types.AccountScore, cpaTrend types.MetricTrend) types.Recommendations {
	type weak struct {
		value float64
		text  string
	}
	candidates := []weak{
		{score.PerformanceScore, "Overall returns are below target. Review top-spending campaigns against your winner profiles."},
		{score.EfficiencyScore, "A large share of spend is converting nothing. Pause or rework zero-conversion ad sets."},
		{score.PixelHealthScore, "Pixel tracking looks unhealthy. Verify the pixel fires on every conversion event."},
		{score.LearningScore, "Most ad sets are stuck in learning. Consolidate budgets so fewer ad sets exit learning faster."},
		{score.ConsistencyScore, "Daily returns swing widely. Smooth budget changes and avoid frequent edits."},
	}

	var weakest []weak
	for _, c := range candidates {
		if c.value < 60 {
			weakest = append(weakest, c)
		}
	}
	sort.Slice(weakest, func(i, j int) bool { return weakest[i].value < weakest[j].value })

	var out types.Recommendations
	for _, c := range weakest {
		out = append(out, c.text)
	}
	if cpaTrend == types.MetricIncreasing {
		out = append(out, "Cost per result rose more than 10% week over week. Check recent creative and audience changes.")
	}
	return out
}

// --- small math helpers ---

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
