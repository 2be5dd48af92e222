package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricJobDuration     = "JobDuration"
	MetricJobFailures     = "JobFailures"
	MetricItemsProcessed  = "ItemsProcessed"
	MetricItemsFailed     = "ItemsFailed"
	MetricActionsCreated  = "ActionsCreated"
	MetricActionsSkipped  = "ActionsSkippedCooldown"
	MetricPatternsLearned = "PatternsLearned"
	MetricPassesSkipped   = "LearningPassesSkipped"
	MetricScoresComputed  = "ScoresComputed"
	MetricNotifsPublished = "NotificationsPublished"
	MetricAPILatency      = "APILatency"
	MetricAPIRequestCount = "APIRequestCount"

	// Dimension Keys
	DimJobType     = "JobType"
	DimPatternType = "PatternType"
	DimActionType  = "ActionType"
	DimEntityType  = "EntityType"
	DimMethod      = "Method"
	DimEndpoint    = "Endpoint"
	DimStatus      = "Status"

	// Metric Namespace
	MetricNamespace = "AdPilot"
)
