// Package jobs runs the engine's periodic work: hourly rule evaluation,
// daily pattern learning, and daily account scoring. Each job type carries
// its own in-process single-flight guard so a slow run is never started
// twice by the scheduler; different job types may overlap freely because
// each writes only to its own output tables.
//
// The guard is not a distributed lock. Running more than one engine process
// requires replacing it with a job-state record.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"adpilot/internal/config"
	"adpilot/internal/learning"
	"adpilot/internal/rules"
	"adpilot/internal/types"
)

// accountWindowDays bounds which accounts a daily job touches: anything
// without a snapshot in this window is dormant.
const accountWindowDays = 30

// batchParallelism bounds concurrent account processing inside one batch.
const batchParallelism = 5

// expirySweepLimit caps how many pending actions one evaluation cycle sweeps.
const expirySweepLimit = 500

// AccountLister enumerates the accounts observed in recent snapshots.
// Satisfied by *db.SnapshotRepository.
type AccountLister interface {
	ListAccounts(ctx context.Context, since time.Time) ([]types.AccountRef, error)
}

// Learner is the pattern-learning surface the runner drives. Satisfied by
// *learning.Learner.
type Learner interface {
	LearnAccount(ctx context.Context, ref types.AccountRef) (*learning.LearnSummary, error)
	SeedExpertPriors(ctx context.Context) (*learning.LearnSummary, error)
}

// Evaluator is the rule-evaluation surface the runner drives. Satisfied by
// *rules.Evaluator.
type Evaluator interface {
	EvaluateAll(ctx context.Context) (*rules.EvalSummary, error)
}

// Lifecycle is the expiry-sweep surface the runner drives. Satisfied by
// *rules.Lifecycle.
type Lifecycle interface {
	ExpirePending(ctx context.Context, limit int) (int, error)
}

// Scorer is the account-scoring surface the runner drives. Satisfied by
// *scoring.Scorer.
type Scorer interface {
	ScoreAccount(ctx context.Context, ref types.AccountRef) (*types.AccountScore, error)
}

// MetricsRecorder receives job telemetry. Satisfied by *metrics.Collector.
type MetricsRecorder interface {
	RecordJobRun(ctx context.Context, job types.JobType, duration time.Duration, processed, failed int)
	RecordJobFailure(ctx context.Context, job types.JobType)
	RecordEvaluation(ctx context.Context, created, skippedCooldown, notifications int)
	RecordLearning(ctx context.Context, learned, skipped int)
	RecordScoring(ctx context.Context, computed int)
}

// JobSummary reports the outcome of one job run.
type JobSummary struct {
	Job       types.JobType `json:"job"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
}

// Runner owns the single-flight guards and drives the three job types.
type Runner struct {
	accounts  AccountLister
	learner   Learner
	evaluator Evaluator
	lifecycle Lifecycle
	scorer    Scorer
	metrics   MetricsRecorder
	cfg       config.JobsConfig
	clock     types.Clock
	logger    *slog.Logger
	sleepFn   func(time.Duration)

	running map[types.JobType]*atomic.Bool
}

// RunnerConfig holds the configuration for creating a Runner.
type RunnerConfig struct {
	Accounts  AccountLister
	Learner   Learner
	Evaluator Evaluator
	Lifecycle Lifecycle
	Scorer    Scorer
	Metrics   MetricsRecorder
	Jobs      config.JobsConfig
	Clock     types.Clock
	Logger    *slog.Logger
}

// NewRunner creates a Runner with the given configuration.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Runner{
		accounts:  cfg.Accounts,
		learner:   cfg.Learner,
		evaluator: cfg.Evaluator,
		lifecycle: cfg.Lifecycle,
		scorer:    cfg.Scorer,
		metrics:   cfg.Metrics,
		cfg:       cfg.Jobs,
		clock:     clock,
		logger:    logger,
		sleepFn:   time.Sleep,
		running: map[types.JobType]*atomic.Bool{
			types.JobRuleEvaluation:  {},
			types.JobPatternLearning: {},
			types.JobAccountScoring:  {},
		},
	}
}

// Run executes one job of the given type, guarded so the same job type never
// runs twice concurrently in this process.
func (r *Runner) Run(ctx context.Context, job types.JobType) (*JobSummary, error) {
	guard, ok := r.running[job]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJobType,
			fmt.Sprintf("unknown job type %q", job), nil)
	}
	if !guard.CompareAndSwap(false, true) {
		return nil, types.NewAppError(types.ErrCodeJobAlreadyRunning,
			fmt.Sprintf("job %s is already running", job), nil)
	}
	defer guard.Store(false)

	started := r.clock.Now()
	r.logger.InfoContext(ctx, "job started", "job_type", string(job))

	summary := &JobSummary{Job: job, StartedAt: started}
	var err error
	switch job {
	case types.JobRuleEvaluation:
		err = r.runRuleEvaluation(ctx, summary)
	case types.JobPatternLearning:
		err = r.runPatternLearning(ctx, summary)
	case types.JobAccountScoring:
		err = r.runAccountScoring(ctx, summary)
	}

	summary.Duration = r.clock.Now().Sub(started)
	if err != nil {
		r.metrics.RecordJobFailure(ctx, job)
		r.logger.ErrorContext(ctx, "job failed", "job_type", string(job), "error", err)
		return nil, err
	}

	r.metrics.RecordJobRun(ctx, job, summary.Duration, summary.Processed, summary.Failed)
	r.logger.InfoContext(ctx, "job finished",
		"job_type", string(job),
		"duration_ms", summary.Duration.Milliseconds(),
		"processed", summary.Processed,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (r *Runner) runRuleEvaluation(ctx context.Context, summary *JobSummary) error {
	eval, err := r.evaluator.EvaluateAll(ctx)
	if err != nil {
		return err
	}
	summary.Processed = eval.RulesEvaluated
	summary.Failed = eval.RuleErrors
	r.metrics.RecordEvaluation(ctx, eval.ActionsCreated, eval.ActionsSkippedCooldown, eval.NotificationsSent)

	expired, err := r.lifecycle.ExpirePending(ctx, expirySweepLimit)
	if err != nil {
		r.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
	} else if expired > 0 {
		r.logger.InfoContext(ctx, "pending actions expired", "count", expired)
	}
	return nil
}

func (r *Runner) runPatternLearning(ctx context.Context, summary *JobSummary) error {
	var learned, skipped atomic.Int64

	// Expert priors are global; seed them once per run before the
	// account-scoped passes.
	if s, err := r.learner.SeedExpertPriors(ctx); err != nil {
		r.logger.ErrorContext(ctx, "expert prior seeding failed", "error", err)
		summary.Failed++
	} else {
		learned.Add(int64(s.PatternsLearned))
		skipped.Add(int64(s.PassesSkipped))
	}

	err := r.forEachAccount(ctx, summary, func(ctx context.Context, ref types.AccountRef) error {
		s, err := r.learner.LearnAccount(ctx, ref)
		if err != nil {
			return err
		}
		learned.Add(int64(s.PatternsLearned))
		skipped.Add(int64(s.PassesSkipped))
		return nil
	})
	if err != nil {
		return err
	}

	r.metrics.RecordLearning(ctx, int(learned.Load()), int(skipped.Load()))
	return nil
}

func (r *Runner) runAccountScoring(ctx context.Context, summary *JobSummary) error {
	var computed atomic.Int64

	err := r.forEachAccount(ctx, summary, func(ctx context.Context, ref types.AccountRef) error {
		if _, err := r.scorer.ScoreAccount(ctx, ref); err != nil {
			return err
		}
		computed.Add(1)
		return nil
	})
	if err != nil {
		return err
	}

	r.metrics.RecordScoring(ctx, int(computed.Load()))
	return nil
}

// forEachAccount processes all recently active accounts in bounded batches
// with an inter-batch pause. Per-account failures are logged and counted,
// never aborting the batch.
func (r *Runner) forEachAccount(ctx context.Context, summary *JobSummary, fn func(context.Context, types.AccountRef) error) error {
	accounts, err := r.accounts.ListAccounts(ctx, r.clock.Now().AddDate(0, 0, -accountWindowDays))
	if err != nil {
		return fmt.Errorf("jobs: list accounts: %w", err)
	}

	var processed, failed atomic.Int64
	for start := 0; start < len(accounts); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(accounts) {
			end = len(accounts)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchParallelism)
		for _, ref := range accounts[start:end] {
			g.Go(func() error {
				if err := fn(gctx, ref); err != nil {
					failed.Add(1)
					r.logger.ErrorContext(gctx, "account processing failed",
						"job_type", string(summary.Job),
						"ad_account_id", ref.AdAccountID,
						"error", err,
					)
					return nil
				}
				processed.Add(1)
				return nil
			})
		}
		g.Wait()

		if end < len(accounts) && r.cfg.BatchPause > 0 {
			r.sleepFn(r.cfg.BatchPause)
		}
	}

	summary.Processed += int(processed.Load())
	summary.Failed += int(failed.Load())
	return nil
}

// Schedule registers the three job schedules on the given cron instance.
// Overlap protection comes from the single-flight guards, not the scheduler.
func (r *Runner) Schedule(c *cron.Cron) error {
	schedules := []struct {
		expr string
		job  types.JobType
	}{
		{r.cfg.RuleEvalSchedule, types.JobRuleEvaluation},
		{r.cfg.LearningSchedule, types.JobPatternLearning},
		{r.cfg.ScoringSchedule, types.JobAccountScoring},
	}
	for _, s := range schedules {
		job := s.job
		if _, err := c.AddFunc(s.expr, func() {
			if _, err := r.Run(context.Background(), job); err != nil {
				r.logger.Error("scheduled job run failed", "job_type", string(job), "error", err)
			}
		}); err != nil {
			return fmt.Errorf("jobs: register %s schedule %q: %w", job, s.expr, err)
		}
	}
	return nil
}
