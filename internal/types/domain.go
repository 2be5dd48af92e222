package types

import (
	"time"
)

// PerformanceSnapshot is one row of per-entity, per-day performance metrics.
// Snapshots are written by the ingestion collaborator and are read-only to
// this engine; the upsert key is (entity_type, entity_id, snapshot_date,
// hour_of_day).
type PerformanceSnapshot struct {
	ID          string     `json:"id" db:"id"`
	EntityType  EntityType `json:"entity_type" db:"entity_type"`
	EntityID    string     `json:"entity_id" db:"entity_id"`
	EntityName  string     `json:"entity_name,omitempty" db:"entity_name"`
	AdAccountID string     `json:"ad_account_id" db:"ad_account_id"`
	UserID      string     `json:"user_id" db:"user_id"`

	SnapshotDate time.Time `json:"snapshot_date" db:"snapshot_date"`

	// Raw counters
	Spend       float64 `json:"spend" db:"spend"`
	Impressions int64   `json:"impressions" db:"impressions"`
	Clicks      int64   `json:"clicks" db:"clicks"`
	Reach       int64   `json:"reach" db:"reach"`
	Conversions float64 `json:"conversions" db:"conversions"`
	Revenue     float64 `json:"revenue" db:"revenue"`

	// Derived metrics (computed by the ingestion collaborator)
	CPM       float64 `json:"cpm" db:"cpm"`
	CTR       float64 `json:"ctr" db:"ctr"`
	CPC       float64 `json:"cpc" db:"cpc"`
	CPA       float64 `json:"cpa" db:"cpa"`
	ROAS      float64 `json:"roas" db:"roas"`
	Frequency float64 `json:"frequency" db:"frequency"`

	// Context
	LearningPhase     LearningPhase `json:"learning_phase,omitempty" db:"learning_phase"`
	EffectiveStatus   string        `json:"effective_status,omitempty" db:"effective_status"`
	DaysSinceCreation int           `json:"days_since_creation" db:"days_since_creation"`
	HourOfDay         *int          `json:"hour_of_day,omitempty" db:"hour_of_day"`
	DayOfWeek         *int          `json:"day_of_week,omitempty" db:"day_of_week"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Metric returns the named metric value from the snapshot. The boolean is
// false when the name does not map to a known metric.
func (s *PerformanceSnapshot) Metric(name string) (float64, bool) {
	switch name {
	case "spend":
		return s.Spend, true
	case "impressions":
		return float64(s.Impressions), true
	case "clicks":
		return float64(s.Clicks), true
	case "reach":
		return float64(s.Reach), true
	case "conversions":
		return s.Conversions, true
	case "revenue":
		return s.Revenue, true
	case "cpm":
		return s.CPM, true
	case "ctr":
		return s.CTR, true
	case "cpc":
		return s.CPC, true
	case "cpa":
		return s.CPA, true
	case "roas":
		return s.ROAS, true
	case "frequency":
		return s.Frequency, true
	case "days_since_creation":
		return float64(s.DaysSinceCreation), true
	default:
		return 0, false
	}
}

// PatternScope identifies who a learned pattern applies to. Both fields are
// optional; a zero scope means the pattern is global.
type PatternScope struct {
	UserID      *string `json:"user_id,omitempty"`
	AdAccountID *string `json:"ad_account_id,omitempty"`
}

// LearnedPattern is a statistical pattern produced by one of the learning
// passes. Identified by (pattern_type, pattern_name, scope); re-running a
// learner upserts the existing row rather than creating a duplicate.
type LearnedPattern struct {
	ID          string      `json:"id" db:"id"`
	PatternType PatternType `json:"pattern_type" db:"pattern_type"`
	PatternName string      `json:"pattern_name" db:"pattern_name"`
	Scope       PatternScope

	// Data holds the typed payload; its concrete type is determined by
	// PatternType. See DecodePatternData.
	Data PatternPayload `json:"pattern_data"`

	ConfidenceScore float64   `json:"confidence_score" db:"confidence_score"`
	SampleSize      int       `json:"sample_size" db:"sample_size"`
	ValidFrom       time.Time `json:"valid_from" db:"valid_from"`
	ValidUntil      time.Time `json:"valid_until" db:"valid_until"`
	LastValidated   time.Time `json:"last_validated" db:"last_validated"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RuleAction is one action an automation rule proposes when it fires.
type RuleAction struct {
	Type   ActionType `json:"action_type"`
	Params JSONMap    `json:"params,omitempty"`
}

// AutomationRule is a user-owned rule evaluated against the most recent
// snapshot per matching entity.
type AutomationRule struct {
	ID          string `json:"id" db:"id"`
	UserID      string `json:"user_id" db:"user_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`

	Conditions     RuleConditions `json:"conditions" db:"conditions"`
	ConditionLogic ConditionLogic `json:"condition_logic" db:"condition_logic"`
	Actions        RuleActions    `json:"actions" db:"actions"`

	RequiresApproval      bool `json:"requires_approval" db:"requires_approval"`
	CooldownHours         int  `json:"cooldown_hours" db:"cooldown_hours"`
	EvaluationWindowHours int  `json:"evaluation_window_hours" db:"evaluation_window_hours"`

	// Optional scope filters. Nil matches all entity types / accounts.
	EntityType  *EntityType `json:"entity_type,omitempty" db:"entity_type"`
	AdAccountID *string     `json:"ad_account_id,omitempty" db:"ad_account_id"`

	Status          RuleStatus `json:"status" db:"status"`
	TimesTriggered  int        `json:"times_triggered" db:"times_triggered"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ConditionResult records the evaluation of a single rule condition against
// an entity's actual metric value. Stored on actions as trigger_metrics.
type ConditionResult struct {
	Metric    string            `json:"metric"`
	Operator  ConditionOperator `json:"operator"`
	Threshold float64           `json:"threshold"`
	Actual    float64           `json:"actual"`
	Passed    bool              `json:"passed"`
}

// AutomationAction is a proposed optimization created by the rule evaluator.
// The engine never executes actions itself; the execution collaborator picks
// up approved actions and reports back executed/failed.
type AutomationAction struct {
	ID          string  `json:"id" db:"id"`
	RuleID      *string `json:"rule_id,omitempty" db:"rule_id"`
	UserID      string  `json:"user_id" db:"user_id"`
	AdAccountID string  `json:"ad_account_id" db:"ad_account_id"`

	EntityType EntityType `json:"entity_type" db:"entity_type"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	EntityName string     `json:"entity_name,omitempty" db:"entity_name"`

	ActionType   ActionType `json:"action_type" db:"action_type"`
	ActionParams JSONMap    `json:"action_params,omitempty" db:"action_params"`

	State ActionState `json:"state" db:"state"`

	TriggerReason   string         `json:"trigger_reason" db:"trigger_reason"`
	TriggerMetrics  TriggerMetrics `json:"trigger_metrics" db:"trigger_metrics"`
	ModelConfidence *float64       `json:"model_confidence,omitempty" db:"model_confidence"`

	// ExpiresAt is set only when the action requires approval.
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	ApprovedBy     string `json:"approved_by,omitempty" db:"approved_by"`
	RejectedReason string `json:"rejected_reason,omitempty" db:"rejected_reason"`
	FailureMessage string `json:"failure_message,omitempty" db:"failure_message"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// ActionFeedback is a training-feedback record appended on every action
// state transition after creation. It is the hook for future confidence
// calibration; nothing in the engine consumes it yet.
type ActionFeedback struct {
	ID             string         `json:"id" db:"id"`
	ActionID       string         `json:"action_id" db:"action_id"`
	RuleID         *string        `json:"rule_id,omitempty" db:"rule_id"`
	Label          FeedbackLabel  `json:"label" db:"label"`
	TriggerMetrics TriggerMetrics `json:"trigger_metrics" db:"trigger_metrics"`
	Confidence     *float64       `json:"confidence,omitempty" db:"confidence"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// AccountScore is the composite daily health score for one ad account.
// One row per (user_id, ad_account_id, score_date).
type AccountScore struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	AdAccountID string    `json:"ad_account_id" db:"ad_account_id"`
	ScoreDate   time.Time `json:"score_date" db:"score_date"`

	OverallScore     float64 `json:"overall_score" db:"overall_score"`
	PerformanceScore float64 `json:"performance_score" db:"performance_score"`
	EfficiencyScore  float64 `json:"efficiency_score" db:"efficiency_score"`
	PixelHealthScore float64 `json:"pixel_health_score" db:"pixel_health_score"`
	LearningScore    float64 `json:"learning_score" db:"learning_score"`
	ConsistencyScore float64 `json:"consistency_score" db:"consistency_score"`

	Grade           string     `json:"grade" db:"grade"`
	ScoreTrend      ScoreTrend `json:"score_trend" db:"score_trend"`
	TrendPercentage float64    `json:"trend_percentage" db:"trend_percentage"`

	Recommendations Recommendations `json:"recommendations" db:"recommendations"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ExpertRule is a confidence-scored heuristic sourced from expert surveys.
// Consumed read-only by the pattern learner to seed expert_* priors.
type ExpertRule struct {
	ID              string         `json:"id" db:"id"`
	Vertical        string         `json:"vertical" db:"vertical"`
	RuleType        ExpertRuleType `json:"rule_type" db:"rule_type"`
	Conditions      RuleConditions `json:"conditions" db:"conditions"`
	ConfidenceScore float64        `json:"confidence_score" db:"confidence_score"`
	ExpertCount     int            `json:"expert_count" db:"expert_count"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// PixelHealth is the latest pixel-health snapshot for an ad account, read
// from the ingestion collaborator.
type PixelHealth struct {
	AdAccountID   string     `json:"ad_account_id"`
	UserID        string     `json:"user_id"`
	HealthScore   float64    `json:"health_score"`
	EventsTracked int        `json:"events_tracked"`
	LastEventAt   *time.Time `json:"last_event_at,omitempty"`
	CheckedAt     time.Time  `json:"checked_at"`
}

// NotificationAction is an optional button rendered by the notification
// collaborator (e.g. approve/reject deep links).
type NotificationAction struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Notification is the structured record produced to the notification
// collaborator for rule triggers, pending approvals, executions, and
// significant score changes.
type Notification struct {
	ID       string               `json:"id"`
	UserID   string               `json:"user_id"`
	Type     NotificationType     `json:"type"`
	Priority NotificationPriority `json:"priority"`
	Title    string               `json:"title"`
	Message  string               `json:"message"`

	EntityType *EntityType          `json:"entity_type,omitempty"`
	EntityID   *string              `json:"entity_id,omitempty"`
	Actions    []NotificationAction `json:"actions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AccountRef identifies one (user, ad account) pair observed in snapshots.
type AccountRef struct {
	UserID      string `json:"user_id"`
	AdAccountID string `json:"ad_account_id"`
}
