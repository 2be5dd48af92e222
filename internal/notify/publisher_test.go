package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"adpilot/internal/config"
	"adpilot/internal/types"
)

// mockSQSSender records SendMessage calls for verification.
type mockSQSSender struct {
	inputs   []*sqs.SendMessageInput
	failNext bool
}

func (m *mockSQSSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.failNext {
		m.failNext = false
		return nil, fmt.Errorf("simulated SQS failure")
	}
	m.inputs = append(m.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func newTestPublisher(client *mockSQSSender) *Publisher {
	return NewPublisher(client, config.AWSConfig{
		NotificationQueue: "https://sqs.test/notifications",
		ActionQueue:       "https://sqs.test/actions",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublish_RoutesToNotificationQueue(t *testing.T) {
	client := &mockSQSSender{}
	p := newTestPublisher(client)

	n := &types.Notification{
		ID:       "notif-1",
		UserID:   "user-1",
		Type:     types.NotifRuleTriggered,
		Priority: types.PriorityHigh,
		Title:    "Rule triggered",
		Message:  "spend > 50",
	}
	if err := p.Publish(context.Background(), n); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("SendMessage calls = %d, want 1", len(client.inputs))
	}

	input := client.inputs[0]
	if *input.QueueUrl != "https://sqs.test/notifications" {
		t.Errorf("queue = %s, want notifications queue", *input.QueueUrl)
	}
	if got := *input.MessageAttributes["priority"].StringValue; got != "high" {
		t.Errorf("priority attribute = %s, want high", got)
	}

	var decoded types.Notification
	if err := json.Unmarshal([]byte(*input.MessageBody), &decoded); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if decoded.ID != n.ID || decoded.Type != n.Type {
		t.Errorf("decoded notification = %+v", decoded)
	}
}

func TestPublishApprovedAction_RoutesToActionQueue(t *testing.T) {
	client := &mockSQSSender{}
	p := newTestPublisher(client)

	a := &types.AutomationAction{
		ID:         "act-1",
		UserID:     "user-1",
		EntityType: types.EntityAdSet,
		EntityID:   "adset-1",
		ActionType: types.ActionPause,
		State:      types.ActionApproved,
	}
	if err := p.PublishApprovedAction(context.Background(), a); err != nil {
		t.Fatalf("PublishApprovedAction: %v", err)
	}

	input := client.inputs[0]
	if *input.QueueUrl != "https://sqs.test/actions" {
		t.Errorf("queue = %s, want actions queue", *input.QueueUrl)
	}
	if got := *input.MessageAttributes["action_type"].StringValue; got != "pause" {
		t.Errorf("action_type attribute = %s, want pause", got)
	}
}

func TestPublish_SQSFailureSurfaces(t *testing.T) {
	client := &mockSQSSender{failNext: true}
	p := newTestPublisher(client)

	err := p.Publish(context.Background(), &types.Notification{ID: "notif-1"})
	if err == nil {
		t.Fatal("expected SQS failure to surface")
	}
}
