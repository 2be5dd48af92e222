// Package notify publishes structured notifications and approved actions to
// the downstream collaborators' SQS queues.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"adpilot/internal/config"
	"adpilot/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher serializes notifications to the notification collaborator's
// queue and approved actions to the execution collaborator's queue.
type Publisher struct {
	client           SQSSender
	notificationsURL string
	actionsURL       string
	logger           *slog.Logger
}

// NewPublisher creates a Publisher reading queue URLs from the AWSConfig.
func NewPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:           client,
		notificationsURL: awsCfg.NotificationQueue,
		actionsURL:       awsCfg.ActionQueue,
		logger:           logger,
	}
}

// Publish enqueues one notification. The priority rides as a message
// attribute so the consumer can order deliveries without parsing the body.
func (p *Publisher) Publish(ctx context.Context, n *types.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal notification: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.notificationsURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(n.Type)),
			},
			"priority": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(n.Priority)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("notify: send notification to %s: %w", p.notificationsURL, err)
	}

	p.logger.InfoContext(ctx, "notification published",
		"notification_id", n.ID,
		"type", string(n.Type),
		"priority", string(n.Priority),
		"user_id", n.UserID,
	)
	return nil
}

// PublishApprovedAction hands an approved action to the execution
// collaborator. The engine never calls the advertising platform itself.
func (p *Publisher) PublishApprovedAction(ctx context.Context, a *types.AutomationAction) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("notify: marshal action: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.actionsURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"action_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(a.ActionType)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("notify: send action to %s: %w", p.actionsURL, err)
	}

	p.logger.InfoContext(ctx, "approved action published",
		"action_id", a.ID,
		"action_type", string(a.ActionType),
		"entity_id", a.EntityID,
	)
	return nil
}
