// Package main is the entry point for the AdPilot engine worker.
//
// It wires the three periodic jobs (rule evaluation, pattern learning,
// account scoring) onto a cron scheduler and runs until terminated. Overlap
// protection comes from the runner's single-flight guards, so a slow run is
// skipped rather than stacked when the next tick arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"adpilot/internal/config"
	"adpilot/internal/db"
	"adpilot/internal/external"
	"adpilot/internal/jobs"
	"adpilot/internal/learning"
	"adpilot/internal/metrics"
	"adpilot/internal/notify"
	"adpilot/internal/rules"
	"adpilot/internal/scoring"
	"adpilot/internal/types"
)

// stopGrace is how long running jobs get to finish after a termination signal.
const stopGrace = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("adpilot engine starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"rule_eval_schedule", cfg.Jobs.RuleEvalSchedule,
		"learning_schedule", cfg.Jobs.LearningSchedule,
		"scoring_schedule", cfg.Jobs.ScoringSchedule,
	)

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	snapshotRepo := db.NewSnapshotRepository(pool)
	patternRepo := db.NewPatternRepository(pool)
	ruleRepo := db.NewRuleRepository(pool)
	actionRepo := db.NewActionRepository(pool)
	scoreRepo := db.NewScoreRepository(pool)
	expertRepo := db.NewExpertRepository(pool)

	publisher := notify.NewPublisher(sqsClient, cfg.AWS, logger)
	collector := metrics.NewCollector(cwClient, types.NewSlogAdapter(logger))
	pixelClient := external.NewPixelClient(cfg.Ingestion)

	learner := learning.NewLearner(learning.LearnerConfig{
		Snapshots: snapshotRepo,
		Experts:   expertRepo,
		Patterns:  patternRepo,
		Logger:    logger,
	})
	evaluator := rules.NewEvaluator(rules.EvaluatorConfig{
		Rules:      ruleRepo,
		Snapshots:  snapshotRepo,
		Actions:    actionRepo,
		Notifier:   publisher,
		Dispatcher: publisher,
		Logger:     logger,
	})
	lifecycle := rules.NewLifecycle(rules.LifecycleConfig{
		Actions:    actionRepo,
		Notifier:   publisher,
		Dispatcher: publisher,
		Logger:     logger,
	})
	scorer := scoring.NewScorer(scoring.ScorerConfig{
		Snapshots: snapshotRepo,
		Pixels:    pixelClient,
		Scores:    scoreRepo,
		Notifier:  publisher,
		Scoring:   cfg.Scoring,
		Logger:    logger,
	})
	runner := jobs.NewRunner(jobs.RunnerConfig{
		Accounts:  snapshotRepo,
		Learner:   learner,
		Evaluator: evaluator,
		Lifecycle: lifecycle,
		Scorer:    scorer,
		Metrics:   collector,
		Jobs:      cfg.Jobs,
		Logger:    logger,
	})

	scheduler := cron.New()
	if err := runner.Schedule(scheduler); err != nil {
		return fmt.Errorf("registering job schedules: %w", err)
	}
	scheduler.Start()
	logger.Info("scheduler started", "entries", len(scheduler.Entries()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	// Stop dispatching new runs, then wait bounded time for in-flight jobs.
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
		logger.Info("engine shutdown complete")
	case <-time.After(stopGrace):
		logger.Warn("engine shutdown timed out with jobs still running")
	}
	return nil
}

// newPool builds the pgx pool from the database configuration and verifies
// connectivity before handing it out.
func newPool(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(dbCfg.MaxConns)
	poolCfg.MinConns = int32(dbCfg.MinConns)
	poolCfg.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = dbCfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbCfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
