package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"adpilot/internal/types"
)

// legalTransitions is the action state machine. Anything not listed here is
// an illegal transition.
var legalTransitions = map[types.ActionState][]types.ActionState{
	types.ActionPendingApproval: {types.ActionApproved, types.ActionRejected, types.ActionExpired},
	types.ActionApproved:        {types.ActionExecuted, types.ActionFailed},
}

// terminalStates mark the action resolved; ResolvedAt is stamped on entry.
var terminalStates = map[types.ActionState]bool{
	types.ActionRejected: true,
	types.ActionExecuted: true,
	types.ActionFailed:   true,
	types.ActionExpired:  true,
}

// feedbackLabels maps each post-creation target state to its training label.
var feedbackLabels = map[types.ActionState]types.FeedbackLabel{
	types.ActionApproved: types.FeedbackApproved,
	types.ActionRejected: types.FeedbackRejected,
	types.ActionExecuted: types.FeedbackExecuted,
	types.ActionFailed:   types.FeedbackFailed,
	types.ActionExpired:  types.FeedbackExpired,
}

// Transition applies a state change to the action in place, enforcing the
// state machine. It is the only way action state moves after creation.
func Transition(a *types.AutomationAction, to types.ActionState, now time.Time) error {
	for _, allowed := range legalTransitions[a.State] {
		if allowed == to {
			a.State = to
			if terminalStates[to] {
				a.ResolvedAt = &now
			}
			return nil
		}
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeActionIllegalTransition,
		fmt.Sprintf("cannot transition action from %s to %s", a.State, to),
		nil,
		map[string]any{"action_id": a.ID, "from": string(a.State), "to": string(to)},
	)
}

// ActionLifecycleStore abstracts the action reads and writes the lifecycle
// service needs. Satisfied by *db.ActionRepository.
type ActionLifecycleStore interface {
	Get(ctx context.Context, id string) (*types.AutomationAction, error)
	ListByState(ctx context.Context, state types.ActionState, limit int) ([]*types.AutomationAction, error)
	UpdateState(ctx context.Context, a *types.AutomationAction, from types.ActionState) error
	AppendFeedback(ctx context.Context, f *types.ActionFeedback) error
}

// Lifecycle owns post-creation action state changes: approvals, rejections,
// execution reports from the execution collaborator, and the expiry sweep.
type Lifecycle struct {
	actions    ActionLifecycleStore
	notifier   NotificationPublisher
	dispatcher ActionPublisher
	clock      types.Clock
	logger     *slog.Logger
}

// LifecycleConfig holds the configuration for creating a Lifecycle.
type LifecycleConfig struct {
	Actions    ActionLifecycleStore
	Notifier   NotificationPublisher
	Dispatcher ActionPublisher
	Clock      types.Clock
	Logger     *slog.Logger
}

// NewLifecycle creates a Lifecycle with the given configuration.
func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Lifecycle{
		actions:    cfg.Actions,
		notifier:   cfg.Notifier,
		dispatcher: cfg.Dispatcher,
		clock:      clock,
		logger:     logger,
	}
}

// Approve moves a pending action to approved, recording who approved it, and
// hands it to the execution collaborator's queue.
func (l *Lifecycle) Approve(ctx context.Context, actionID, approvedBy string) (*types.AutomationAction, error) {
	a, err := l.transition(ctx, actionID, types.ActionApproved, func(a *types.AutomationAction) {
		a.ApprovedBy = approvedBy
	})
	if err != nil {
		return nil, err
	}
	// A dispatch failure leaves the row approved for redelivery.
	if err := l.dispatcher.PublishApprovedAction(ctx, a); err != nil {
		l.logger.ErrorContext(ctx, "action dispatch failed", "action_id", a.ID, "error", err)
	}
	return a, nil
}

// Reject moves a pending action to rejected with the reviewer's reason.
func (l *Lifecycle) Reject(ctx context.Context, actionID, reason string) (*types.AutomationAction, error) {
	return l.transition(ctx, actionID, types.ActionRejected, func(a *types.AutomationAction) {
		a.RejectedReason = reason
	})
}

// MarkExecuted records a successful execution reported by the execution
// collaborator and notifies the owner.
func (l *Lifecycle) MarkExecuted(ctx context.Context, actionID string) (*types.AutomationAction, error) {
	a, err := l.transition(ctx, actionID, types.ActionExecuted, nil)
	if err != nil {
		return nil, err
	}
	if err := l.publishResolved(ctx, a, types.NotifActionExecuted, types.PriorityNormal, "Action executed"); err != nil {
		l.logger.ErrorContext(ctx, "executed notification failed", "action_id", a.ID, "error", err)
	}
	return a, nil
}

// MarkFailed records a failed execution with the collaborator's error
// message and notifies the owner.
func (l *Lifecycle) MarkFailed(ctx context.Context, actionID, message string) (*types.AutomationAction, error) {
	a, err := l.transition(ctx, actionID, types.ActionFailed, func(a *types.AutomationAction) {
		a.FailureMessage = message
	})
	if err != nil {
		return nil, err
	}
	if err := l.publishResolved(ctx, a, types.NotifActionFailed, types.PriorityHigh, "Action failed"); err != nil {
		l.logger.ErrorContext(ctx, "failure notification failed", "action_id", a.ID, "error", err)
	}
	return a, nil
}

// ExpirePending sweeps pending actions whose approval window has lapsed and
// moves them to expired. Returns the number of actions expired. Item
// failures are isolated.
func (l *Lifecycle) ExpirePending(ctx context.Context, limit int) (int, error) {
	now := l.clock.Now()
	pending, err := l.actions.ListByState(ctx, types.ActionPendingApproval, limit)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: list pending actions: %w", err)
	}

	expired := 0
	for _, a := range pending {
		if a.ExpiresAt == nil || a.ExpiresAt.After(now) {
			continue
		}
		if err := l.applyTransition(ctx, a, types.ActionExpired); err != nil {
			l.logger.ErrorContext(ctx, "expiry failed", "action_id", a.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// transition loads the action, applies mutate, and persists the state change
// guarded on the loaded state.
func (l *Lifecycle) transition(ctx context.Context, actionID string, to types.ActionState, mutate func(*types.AutomationAction)) (*types.AutomationAction, error) {
	a, err := l.actions.Get(ctx, actionID)
	if err != nil {
		return nil, err
	}
	from := a.State
	if err := Transition(a, to, l.clock.Now()); err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(a)
	}
	if err := l.persist(ctx, a, from); err != nil {
		return nil, err
	}
	return a, nil
}

// applyTransition is the already-loaded variant used by the expiry sweep.
func (l *Lifecycle) applyTransition(ctx context.Context, a *types.AutomationAction, to types.ActionState) error {
	from := a.State
	if err := Transition(a, to, l.clock.Now()); err != nil {
		return err
	}
	return l.persist(ctx, a, from)
}

func (l *Lifecycle) persist(ctx context.Context, a *types.AutomationAction, from types.ActionState) error {
	if err := l.actions.UpdateState(ctx, a, from); err != nil {
		return err
	}

	// Every post-creation transition leaves a training-feedback record.
	// Feedback failure does not undo the transition.
	fb := &types.ActionFeedback{
		ID:             uuid.NewString(),
		ActionID:       a.ID,
		RuleID:         a.RuleID,
		Label:          feedbackLabels[a.State],
		TriggerMetrics: a.TriggerMetrics,
		Confidence:     a.ModelConfidence,
		CreatedAt:      l.clock.Now(),
	}
	if err := l.actions.AppendFeedback(ctx, fb); err != nil {
		l.logger.ErrorContext(ctx, "feedback append failed",
			"action_id", a.ID,
			"label", string(fb.Label),
			"error", err,
		)
	}
	return nil
}

func (l *Lifecycle) publishResolved(ctx context.Context, a *types.AutomationAction, nt types.NotificationType, priority types.NotificationPriority, title string) error {
	et := a.EntityType
	id := a.EntityID
	msg := fmt.Sprintf("%s %s on %s %s", title, a.ActionType, a.EntityType, a.EntityName)
	if a.FailureMessage != "" {
		msg += ": " + a.FailureMessage
	}
	return l.notifier.Publish(ctx, &types.Notification{
		ID:         uuid.NewString(),
		UserID:     a.UserID,
		Type:       nt,
		Priority:   priority,
		Title:      title,
		Message:    msg,
		EntityType: &et,
		EntityID:   &id,
		CreatedAt:  l.clock.Now(),
	})
}
