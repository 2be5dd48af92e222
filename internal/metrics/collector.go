// Package metrics emits engine telemetry to AWS CloudWatch: job durations
// and failures, items processed, actions created, patterns learned, and
// scores computed. Metric emission is best-effort; a CloudWatch failure is
// logged and never propagated to the caller.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"adpilot/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Collector publishes engine metrics to a CloudWatch namespace.
type Collector struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCollector creates a Collector publishing to the standard namespace.
func NewCollector(client CloudWatchClient, logger types.Logger) *Collector {
	return &Collector{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// RecordJobRun emits the duration, processed and failed item counts for one
// job run, all dimensioned by job type.
func (c *Collector) RecordJobRun(ctx context.Context, job types.JobType, duration time.Duration, processed, failed int) {
	dims := jobDims(job)
	c.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricJobDuration),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricItemsProcessed),
			Value:      aws.Float64(float64(processed)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricItemsFailed),
			Value:      aws.Float64(float64(failed)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	)
}

// RecordJobFailure emits a whole-job failure (as opposed to per-item errors).
func (c *Collector) RecordJobFailure(ctx context.Context, job types.JobType) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricJobFailures),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: jobDims(job),
	})
}

// RecordEvaluation emits the action tallies of one rule-evaluation cycle.
func (c *Collector) RecordEvaluation(ctx context.Context, created, skippedCooldown, notifications int) {
	c.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricActionsCreated),
			Value:      aws.Float64(float64(created)),
			Unit:       cwtypes.StandardUnitCount,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricActionsSkipped),
			Value:      aws.Float64(float64(skippedCooldown)),
			Unit:       cwtypes.StandardUnitCount,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricNotifsPublished),
			Value:      aws.Float64(float64(notifications)),
			Unit:       cwtypes.StandardUnitCount,
		},
	)
}

// RecordLearning emits the pattern and skipped-pass tallies of one learning
// run.
func (c *Collector) RecordLearning(ctx context.Context, learned, skipped int) {
	c.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricPatternsLearned),
			Value:      aws.Float64(float64(learned)),
			Unit:       cwtypes.StandardUnitCount,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricPassesSkipped),
			Value:      aws.Float64(float64(skipped)),
			Unit:       cwtypes.StandardUnitCount,
		},
	)
}

// RecordRequest emits API latency and request count for one handled request.
// Uses context.Background so metric emission is not cut short by the request
// deadline.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}
	c.put(context.Background(),
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	)
}

// RecordScoring emits the number of account scores computed in one run.
func (c *Collector) RecordScoring(ctx context.Context, computed int) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricScoresComputed),
		Value:      aws.Float64(float64(computed)),
		Unit:       cwtypes.StandardUnitCount,
	})
}

func (c *Collector) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	}
	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.Error("failed to publish metrics",
			"error", err.Error(),
			"metrics", len(data),
		)
	}
}

func jobDims(job types.JobType) []cwtypes.Dimension {
	return []cwtypes.Dimension{
		{
			Name:  aws.String(types.DimJobType),
			Value: aws.String(string(job)),
		},
	}
}
