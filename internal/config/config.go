// Package config defines the global configuration structure for the AdPilot
// engine. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"adpilot/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the AdPilot engine.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"adpilot-engine"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Ingestion IngestionConfig
	Jobs      JobsConfig
	Scoring   ScoringConfig
}

// ServerConfig holds HTTP server configuration for the admin API.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`
	ActionQueue       string `envconfig:"SQS_APPROVED_ACTIONS" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// IngestionConfig holds the connection settings for the ingestion
// collaborator's read APIs (pixel health).
type IngestionConfig struct {
	PixelHealthURL string        `envconfig:"PIXEL_HEALTH_URL" validate:"required,url"`
	APIToken       SecretString  `envconfig:"INGESTION_API_TOKEN" validate:"required"`
	Timeout        time.Duration `envconfig:"INGESTION_TIMEOUT" default:"10s"`
	UserAgent      string        `envconfig:"INGESTION_USER_AGENT" default:"AdPilot-Engine/1.0"`
}

// JobsConfig holds scheduling and batching parameters for the engine's
// periodic jobs. Schedules use standard 5-field cron expressions.
type JobsConfig struct {
	RuleEvalSchedule string `envconfig:"JOB_RULE_EVAL_SCHEDULE" default:"0 * * * *"`
	LearningSchedule string `envconfig:"JOB_LEARNING_SCHEDULE" default:"30 2 * * *"`
	ScoringSchedule  string `envconfig:"JOB_SCORING_SCHEDULE" default:"0 3 * * *"`

	// BatchSize is the number of accounts processed per batch within a job.
	BatchSize int `envconfig:"JOB_BATCH_SIZE" default:"25" validate:"min=1"`
	// BatchPause is the pause between account batches.
	BatchPause time.Duration `envconfig:"JOB_BATCH_PAUSE" default:"2s"`
}

// ScoringConfig holds the configurable cutoffs of the account scorer. Grade
// boundaries are configuration rather than constants: a score earns the grade
// of the highest boundary it meets; anything below GradeD is an F.
type ScoringConfig struct {
	GradeA float64 `envconfig:"SCORE_GRADE_A" default:"90" validate:"gtefield=GradeB"`
	GradeB float64 `envconfig:"SCORE_GRADE_B" default:"75" validate:"gtefield=GradeC"`
	GradeC float64 `envconfig:"SCORE_GRADE_C" default:"60" validate:"gtefield=GradeD"`
	GradeD float64 `envconfig:"SCORE_GRADE_D" default:"40"`

	// ScoreChangeAlertPoints is the day-over-day overall-score movement that
	// triggers a score-change notification.
	ScoreChangeAlertPoints float64 `envconfig:"SCORE_CHANGE_ALERT_POINTS" default:"10"`
}
