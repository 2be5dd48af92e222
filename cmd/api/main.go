// Package main is the entry point for the AdPilot admin API server.
//
// It loads the configuration, connects the database pool and AWS clients,
// builds the HTTP server with the core chassis (middleware, routing, health
// checks), and starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"adpilot/internal/api/handlers"
	"adpilot/internal/config"
	"adpilot/internal/core"
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

// shutdownGrace is how long in-flight requests get to complete after a
// termination signal.
const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("adpilot API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
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
	// AWS_ENDPOINT_URL overrides the service endpoints for LocalStack and
	// integration environments.
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

	// Repositories.
	snapshotRepo := db.NewSnapshotRepository(pool)
	patternRepo := db.NewPatternRepository(pool)
	ruleRepo := db.NewRuleRepository(pool)
	actionRepo := db.NewActionRepository(pool)
	scoreRepo := db.NewScoreRepository(pool)
	expertRepo := db.NewExpertRepository(pool)

	// Shared collaborators.
	publisher := notify.NewPublisher(sqsClient, cfg.AWS, logger)
	collector := metrics.NewCollector(cwClient, types.NewSlogAdapter(logger))
	pixelClient := external.NewPixelClient(cfg.Ingestion)

	// Engine components backing the admin surface.
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

	// Chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = collector
	srv.HealthProbes = []core.HealthProbe{dbProbe{pool: pool}}

	jobsHandler := handlers.NewJobsHandler(runner, logger)
	patternsHandler := handlers.NewPatternsHandler(patternRepo, nil, logger)
	scoresHandler := handlers.NewScoresHandler(scoreRepo, nil, logger)
	actionsHandler := handlers.NewActionsHandler(actionRepo, lifecycle, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		jobsHandler.RegisterRoutes,
		patternsHandler.RegisterRoutes,
		scoresHandler.RegisterRoutes,
		actionsHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return srv.Shutdown(shutdownCtx)
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

// dbProbe reports database connectivity for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
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
