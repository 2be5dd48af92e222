package types

// EntityType identifies the granularity of a performance snapshot or the
// scope of a rule/action target.
type EntityType string

const (
	EntityCampaign  EntityType = "campaign"
	EntityAdSet     EntityType = "adset"
	EntityAd        EntityType = "ad"
	EntityGeo       EntityType = "geo"
	EntityHourly    EntityType = "hourly"
	EntityDevice    EntityType = "device"
	EntityPlacement EntityType = "placement"
	EntityAgeGender EntityType = "age_gender"
)

// PatternType identifies the kind of learned pattern and determines the
// shape of its payload (see patterndata.go).
type PatternType string

const (
	PatternTimeOfDay           PatternType = "time_of_day"
	PatternWinnerProfile       PatternType = "winner_profile"
	PatternLoserProfile        PatternType = "loser_profile"
	PatternPerformanceClusters PatternType = "performance_clusters"
	PatternFatigueThreshold    PatternType = "fatigue_threshold"
	PatternExpertKill          PatternType = "expert_kill_threshold"
	PatternExpertScale         PatternType = "expert_scale_threshold"
	PatternExpertBenchmark     PatternType = "expert_benchmark"
)

// ConditionLogic determines how multiple rule conditions are combined.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "AND"
	LogicOr  ConditionLogic = "OR"
)

// ConditionOperator defines comparison operators for rule condition evaluation.
type ConditionOperator string

const (
	OpGreaterThan   ConditionOperator = ">"
	OpGreaterThanEq ConditionOperator = ">="
	OpLessThan      ConditionOperator = "<"
	OpLessThanEq    ConditionOperator = "<="
	OpEqual         ConditionOperator = "=="
	OpNotEqual      ConditionOperator = "!="
)

// ActionType identifies the optimization an automation rule proposes.
type ActionType string

const (
	ActionPause          ActionType = "pause"
	ActionActivate       ActionType = "activate"
	ActionIncreaseBudget ActionType = "increase_budget"
	ActionDecreaseBudget ActionType = "decrease_budget"
	ActionAdjustBid      ActionType = "adjust_bid"
	ActionNotify         ActionType = "notify"
)

// ActionState represents the lifecycle state of an AutomationAction.
// Legal transitions are enforced by rules.Transition.
type ActionState string

const (
	ActionPendingApproval ActionState = "pending_approval"
	ActionApproved        ActionState = "approved"
	ActionRejected        ActionState = "rejected"
	ActionExecuted        ActionState = "executed"
	ActionFailed          ActionState = "failed"
	ActionExpired         ActionState = "expired"
)

// RuleStatus represents whether an automation rule participates in evaluation.
type RuleStatus string

const (
	RuleActive RuleStatus = "active"
	RulePaused RuleStatus = "paused"
)

// ExpertRuleType categorizes expert prior rules by intent.
type ExpertRuleType string

const (
	ExpertKill      ExpertRuleType = "kill"
	ExpertScale     ExpertRuleType = "scale"
	ExpertBenchmark ExpertRuleType = "benchmark"
	ExpertTargeting ExpertRuleType = "targeting"
	ExpertStructure ExpertRuleType = "structure"
)

// LearningPhase is the platform-reported optimization state of an ad set.
type LearningPhase string

const (
	PhaseLearning        LearningPhase = "LEARNING"
	PhaseLearningLimited LearningPhase = "LEARNING_LIMITED"
	PhaseSuccess         LearningPhase = "SUCCESS"
	PhaseFailure         LearningPhase = "FAILURE"
)

// ScoreTrend classifies the day-over-day movement of an account score.
type ScoreTrend string

const (
	TrendImproving ScoreTrend = "improving"
	TrendDeclining ScoreTrend = "declining"
	TrendStable    ScoreTrend = "stable"
)

// MetricTrend classifies the week-over-week direction of a cost metric.
type MetricTrend string

const (
	MetricDecreasing MetricTrend = "decreasing"
	MetricStable     MetricTrend = "stable"
	MetricIncreasing MetricTrend = "increasing"
)

// HourClass labels an hour bucket in a time-of-day pattern.
type HourClass string

const (
	HourHigh    HourClass = "high"
	HourLow     HourClass = "low"
	HourAverage HourClass = "average"
)

// NotificationType identifies the kind of notification event.
type NotificationType string

const (
	NotifRuleTriggered   NotificationType = "rule_triggered"
	NotifPendingApproval NotificationType = "action_pending_approval"
	NotifActionExecuted  NotificationType = "action_executed"
	NotifActionFailed    NotificationType = "action_failed"
	NotifScoreChange     NotificationType = "score_change"
)

// NotificationPriority orders notifications for downstream delivery.
type NotificationPriority string

const (
	PriorityLow      NotificationPriority = "low"
	PriorityNormal   NotificationPriority = "normal"
	PriorityHigh     NotificationPriority = "high"
	PriorityCritical NotificationPriority = "critical"
)

// FeedbackLabel tags a training-feedback record appended on action
// state transitions. Used for future confidence calibration.
type FeedbackLabel string

const (
	FeedbackApproved FeedbackLabel = "approved"
	FeedbackRejected FeedbackLabel = "rejected"
	FeedbackExecuted FeedbackLabel = "executed"
	FeedbackFailed   FeedbackLabel = "failed"
	FeedbackExpired  FeedbackLabel = "expired"
)

// JobType identifies a scheduled engine job. Each job type has its own
// single-flight guard in the runner.
type JobType string

const (
	JobRuleEvaluation  JobType = "rule_evaluation"
	JobPatternLearning JobType = "pattern_learning"
	JobAccountScoring  JobType = "account_scoring"
)
