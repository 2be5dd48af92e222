// Package learning implements the pattern learner: five independent passes
// that turn raw performance snapshots (and external expert priors) into
// learned statistical patterns.
//
// Each pass is gated by a minimum-sample-size guard and is idempotent:
// patterns are upserted by (pattern_type, pattern_name, scope), so re-running
// a pass on unchanged data updates rows in place. Insufficient data is an
// expected condition: a pass that cannot meet its guard returns a skipped
// result, never an error.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"adpilot/internal/types"
)

// patternValidity is the rolling validity window stamped on every learned
// pattern. Consumers treat patterns past valid_until as stale.
const patternValidity = 7 * 24 * time.Hour

// confidenceCap bounds data-driven confidence so that no learned pattern
// ever claims certainty.
const confidenceCap = 0.95

// SnapshotSource abstracts the snapshot reads the learner needs. Satisfied
// by *db.SnapshotRepository.
type SnapshotSource interface {
	// ListForAccount returns an account's snapshots since the cutoff,
	// ordered by entity then date.
	ListForAccount(ctx context.Context, ref types.AccountRef, since time.Time, entityTypes ...types.EntityType) ([]*types.PerformanceSnapshot, error)
}

// ExpertSource abstracts the expert-prior reads. Satisfied by
// *db.ExpertRepository.
type ExpertSource interface {
	ListVerticals(ctx context.Context) ([]string, error)
	ListByVertical(ctx context.Context, vertical string, ruleTypes ...types.ExpertRuleType) ([]*types.ExpertRule, error)
}

// PatternStore abstracts the pattern writes. Satisfied by
// *db.PatternRepository.
type PatternStore interface {
	Upsert(ctx context.Context, p *types.LearnedPattern) error
}

// PassResult reports the outcome of a single learning pass.
type PassResult struct {
	Pass       string
	Patterns   int
	SampleSize int
	Skipped    bool
	SkipReason string
}

// LearnSummary aggregates the outcomes of one learner invocation for one
// account scope.
type LearnSummary struct {
	Account         types.AccountRef
	PatternsLearned int
	PassesSkipped   int
	Results         []PassResult
}

// Learner runs the five learning passes and upserts the resulting patterns.
type Learner struct {
	snapshots SnapshotSource
	experts   ExpertSource
	patterns  PatternStore
	clock     types.Clock
	logger    *slog.Logger

	// rng seeds k-means centroid initialization. Injectable so tests can
	// make clustering reproducible; production passes nil and gets
	// time-seeded, best-effort non-determinism.
	rng *rand.Rand
}

// LearnerConfig holds the configuration for creating a Learner.
type LearnerConfig struct {
	Snapshots SnapshotSource
	Experts   ExpertSource
	Patterns  PatternStore
	Clock     types.Clock
	Logger    *slog.Logger
	Rand      *rand.Rand
}

// NewLearner creates a Learner with the given configuration.
func NewLearner(cfg LearnerConfig) *Learner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Learner{
		snapshots: cfg.Snapshots,
		experts:   cfg.Experts,
		patterns:  cfg.Patterns,
		clock:     clock,
		logger:    logger,
		rng:       rng,
	}
}

// LearnAccount runs the four data-driven passes for one account scope and
// upserts the resulting patterns. Pass failures are isolated: an error in
// one pass is logged and counted, never aborting the others.
func (l *Learner) LearnAccount(ctx context.Context, ref types.AccountRef) (*LearnSummary, error) {
	now := l.clock.Now()

	// One fetch covers all passes: the 30-day window is a superset of the
	// 7-day windows the profiling and clustering passes use.
	snaps, err := l.snapshots.ListForAccount(ctx, ref, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("learner: fetch snapshots for %s/%s: %w", ref.UserID, ref.AdAccountID, err)
	}

	scope := types.PatternScope{UserID: &ref.UserID, AdAccountID: &ref.AdAccountID}

	passes := []func(now time.Time, snaps []*types.PerformanceSnapshot, scope types.PatternScope) PassResultWithPatterns{
		l.learnTimeOfDay,
		l.learnProfiles,
		l.learnClusters,
		l.learnFatigue,
	}

	summary := &LearnSummary{Account: ref}
	for _, pass := range passes {
		res := pass(now, snaps, scope)
		summary.Results = append(summary.Results, res.PassResult)

		if res.Skipped {
			summary.PassesSkipped++
			l.logger.InfoContext(ctx, "learning pass skipped",
				"pass", res.Pass,
				"reason", res.SkipReason,
				"ad_account_id", ref.AdAccountID,
			)
			continue
		}

		for _, p := range res.patterns {
			if err := l.patterns.Upsert(ctx, p); err != nil {
				l.logger.ErrorContext(ctx, "pattern upsert failed",
					"pass", res.Pass,
					"pattern_type", string(p.PatternType),
					"error", err,
				)
				continue
			}
			summary.PatternsLearned++
		}
	}

	return summary, nil
}

// PassResultWithPatterns pairs a pass outcome with the patterns it produced.
type PassResultWithPatterns struct {
	PassResult
	patterns []*types.LearnedPattern
}

// skipped builds a skipped pass result.
func skipped(pass, reason string, sampleSize int) PassResultWithPatterns {
	return PassResultWithPatterns{
		PassResult: PassResult{
			Pass:       pass,
			SampleSize: sampleSize,
			Skipped:    true,
			SkipReason: reason,
		},
	}
}

// learned builds a successful pass result.
func learned(pass string, sampleSize int, patterns ...*types.LearnedPattern) PassResultWithPatterns {
	return PassResultWithPatterns{
		PassResult: PassResult{
			Pass:       pass,
			Patterns:   len(patterns),
			SampleSize: sampleSize,
		},
		patterns: patterns,
	}
}

// dataConfidence maps a sample size to a confidence score that saturates
// toward 1 as samples accumulate, capped at confidenceCap. With n=100 the
// confidence is 0.5; expert priors (fixed 0.85-0.9) dominate until roughly
// n=600 of organic data backs a pattern.
func dataConfidence(n int) float64 {
	conf := float64(n) / (float64(n) + 100)
	if conf > confidenceCap {
		return confidenceCap
	}
	return conf
}

// newPattern assembles a LearnedPattern with the standard validity window.
func (l *Learner) newPattern(name string, scope types.PatternScope, data types.PatternPayload, confidence float64, sampleSize int) *types.LearnedPattern {
	now := l.clock.Now()
	return &types.LearnedPattern{
		PatternType:     data.PatternType(),
		PatternName:     name,
		Scope:           scope,
		Data:            data,
		ConfidenceScore: confidence,
		SampleSize:      sampleSize,
		ValidFrom:       now,
		ValidUntil:      now.Add(patternValidity),
		LastValidated:   now,
	}
}
