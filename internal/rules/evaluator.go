// Package rules implements automation rule evaluation and the action
// lifecycle. The evaluator turns rule matches into proposed actions; it
// never mutates campaigns itself. The lifecycle service owns the action
// state machine.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"adpilot/internal/types"
)

// approvalExpiry is how long a pending action waits for a human before the
// expiry sweep rejects it.
const approvalExpiry = 24 * time.Hour

// defaultEvaluationWindowHours applies when a rule does not set its own
// snapshot freshness window.
const defaultEvaluationWindowHours = 24

// RuleSource abstracts the rule reads the evaluator needs. Satisfied by
// *db.RuleRepository.
type RuleSource interface {
	ListActive(ctx context.Context) ([]*types.AutomationRule, error)
	RecordTrigger(ctx context.Context, ruleID string, triggeredAt time.Time) error
}

// LatestSnapshotSource abstracts the latest-per-entity snapshot read.
// Satisfied by *db.SnapshotRepository.
type LatestSnapshotSource interface {
	LatestPerEntity(ctx context.Context, since time.Time, entityType *types.EntityType, adAccountID *string) ([]*types.PerformanceSnapshot, error)
}

// ActionStore abstracts the action writes the evaluator needs. Satisfied by
// *db.ActionRepository.
type ActionStore interface {
	Create(ctx context.Context, a *types.AutomationAction) error
	ExistsWithinCooldown(ctx context.Context, ruleID, entityID string, cutoff time.Time) (bool, error)
}

// NotificationPublisher abstracts the notification side effects. Satisfied
// by *notify.Publisher.
type NotificationPublisher interface {
	Publish(ctx context.Context, n *types.Notification) error
}

// ActionPublisher hands approved actions to the execution collaborator's
// queue. Satisfied by *notify.Publisher.
type ActionPublisher interface {
	PublishApprovedAction(ctx context.Context, a *types.AutomationAction) error
}

// EvalSummary aggregates the outcome of one evaluation cycle.
type EvalSummary struct {
	RulesEvaluated         int
	RulesTriggered         int
	ActionsCreated         int
	ActionsSkippedCooldown int
	NotificationsSent      int
	RuleErrors             int
}

// Evaluator evaluates active automation rules against the freshest snapshot
// per matching entity.
type Evaluator struct {
	rules      RuleSource
	snapshots  LatestSnapshotSource
	actions    ActionStore
	notifier   NotificationPublisher
	dispatcher ActionPublisher
	clock      types.Clock
	logger     *slog.Logger
}

// EvaluatorConfig holds the configuration for creating an Evaluator.
type EvaluatorConfig struct {
	Rules      RuleSource
	Snapshots  LatestSnapshotSource
	Actions    ActionStore
	Notifier   NotificationPublisher
	Dispatcher ActionPublisher
	Clock      types.Clock
	Logger     *slog.Logger
}

// NewEvaluator creates an Evaluator with the given configuration.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Evaluator{
		rules:      cfg.Rules,
		snapshots:  cfg.Snapshots,
		actions:    cfg.Actions,
		notifier:   cfg.Notifier,
		dispatcher: cfg.Dispatcher,
		clock:      clock,
		logger:     logger,
	}
}

// EvaluateAll runs one evaluation cycle over every active rule. Rule
// failures are isolated: an error in one rule is logged and tallied, never
// aborting the cycle.
func (e *Evaluator) EvaluateAll(ctx context.Context) (*EvalSummary, error) {
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluator: list active rules: %w", err)
	}

	summary := &EvalSummary{}
	for _, rule := range rules {
		summary.RulesEvaluated++
		triggered, err := e.evaluateRule(ctx, rule, summary)
		if err != nil {
			summary.RuleErrors++
			e.logger.ErrorContext(ctx, "rule evaluation failed",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
			continue
		}
		if triggered {
			summary.RulesTriggered++
			if err := e.rules.RecordTrigger(ctx, rule.ID, e.clock.Now()); err != nil {
				e.logger.ErrorContext(ctx, "record trigger failed", "rule_id", rule.ID, "error", err)
			}
		}
	}
	return summary, nil
}

// evaluateRule evaluates one rule against the latest snapshot of every
// matching entity. It returns whether the rule fired for at least one entity.
func (e *Evaluator) evaluateRule(ctx context.Context, rule *types.AutomationRule, summary *EvalSummary) (bool, error) {
	now := e.clock.Now()

	window := rule.EvaluationWindowHours
	if window <= 0 {
		window = defaultEvaluationWindowHours
	}
	since := now.Add(-time.Duration(window) * time.Hour)

	snaps, err := e.snapshots.LatestPerEntity(ctx, since, rule.EntityType, rule.AdAccountID)
	if err != nil {
		return false, fmt.Errorf("latest snapshots: %w", err)
	}

	triggered := false
	for _, snap := range snaps {
		// Rules are user-owned; never act across tenants.
		if snap.UserID != rule.UserID {
			continue
		}

		results, matched := evaluateConditions(rule, snap)
		if !matched {
			continue
		}
		triggered = true

		if err := e.fire(ctx, rule, snap, results, now, summary); err != nil {
			return triggered, err
		}
	}
	return triggered, nil
}

// evaluateConditions runs every rule condition against the snapshot and
// combines them with the rule's AND/OR logic. A condition naming a metric
// the snapshot does not carry fails rather than erroring.
func evaluateConditions(rule *types.AutomationRule, snap *types.PerformanceSnapshot) ([]types.ConditionResult, bool) {
	if len(rule.Conditions) == 0 {
		return nil, false
	}

	results := make([]types.ConditionResult, 0, len(rule.Conditions))
	passedAll, passedAny := true, false
	for _, cond := range rule.Conditions {
		actual, ok := snap.Metric(cond.Metric)
		passed := ok && cond.Evaluate(actual)
		results = append(results, types.ConditionResult{
			Metric:    cond.Metric,
			Operator:  cond.Operator,
			Threshold: cond.Value,
			Actual:    actual,
			Passed:    passed,
		})
		passedAll = passedAll && passed
		passedAny = passedAny || passed
	}

	if rule.ConditionLogic == types.LogicOr {
		return results, passedAny
	}
	return results, passedAll
}

// fire executes the rule's action list for one matched entity.
func (e *Evaluator) fire(ctx context.Context, rule *types.AutomationRule, snap *types.PerformanceSnapshot, results []types.ConditionResult, now time.Time, summary *EvalSummary) error {
	for _, act := range rule.Actions {
		// A bare notify produces a notification, never an action row,
		// and is exempt from cooldown.
		if act.Type == types.ActionNotify {
			if err := e.publishRuleTriggered(ctx, rule, snap, results); err != nil {
				e.logger.ErrorContext(ctx, "rule notification failed", "rule_id", rule.ID, "error", err)
				continue
			}
			summary.NotificationsSent++
			continue
		}

		// Cooldown spans the full action history for this (rule, entity)
		// pair, whatever state those actions ended in.
		if rule.CooldownHours > 0 {
			cutoff := now.Add(-time.Duration(rule.CooldownHours) * time.Hour)
			inCooldown, err := e.actions.ExistsWithinCooldown(ctx, rule.ID, snap.EntityID, cutoff)
			if err != nil {
				return fmt.Errorf("cooldown check for entity %s: %w", snap.EntityID, err)
			}
			if inCooldown {
				summary.ActionsSkippedCooldown++
				continue
			}
		}

		action := e.buildAction(rule, snap, act, results, now)
		if err := e.actions.Create(ctx, action); err != nil {
			return fmt.Errorf("create action for entity %s: %w", snap.EntityID, err)
		}
		summary.ActionsCreated++

		if action.State == types.ActionPendingApproval {
			if err := e.publishPendingApproval(ctx, action); err != nil {
				e.logger.ErrorContext(ctx, "approval notification failed", "action_id", action.ID, "error", err)
				continue
			}
			summary.NotificationsSent++
			continue
		}

		// Auto-approved actions go straight to the execution queue. A
		// dispatch failure leaves the row approved for redelivery.
		if err := e.dispatcher.PublishApprovedAction(ctx, action); err != nil {
			e.logger.ErrorContext(ctx, "action dispatch failed", "action_id", action.ID, "error", err)
		}
	}
	return nil
}

// buildAction assembles the proposed action for one matched entity.
func (e *Evaluator) buildAction(rule *types.AutomationRule, snap *types.PerformanceSnapshot, act types.RuleAction, results []types.ConditionResult, now time.Time) *types.AutomationAction {
	action := &types.AutomationAction{
		ID:             uuid.NewString(),
		RuleID:         &rule.ID,
		UserID:         rule.UserID,
		AdAccountID:    snap.AdAccountID,
		EntityType:     snap.EntityType,
		EntityID:       snap.EntityID,
		EntityName:     snap.EntityName,
		ActionType:     act.Type,
		ActionParams:   act.Params,
		State:          types.ActionApproved,
		TriggerReason:  triggerReason(rule, results),
		TriggerMetrics: results,
	}
	if rule.RequiresApproval {
		action.State = types.ActionPendingApproval
		expires := now.Add(approvalExpiry)
		action.ExpiresAt = &expires
	}
	return action
}

// triggerReason renders a human-readable explanation of why the rule fired.
func triggerReason(rule *types.AutomationRule, results []types.ConditionResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if !r.Passed {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %g (actual %.2f)", r.Metric, r.Operator, r.Threshold, r.Actual))
	}
	joiner := " and "
	if rule.ConditionLogic == types.LogicOr {
		joiner = " or "
	}
	return fmt.Sprintf("rule %q matched: %s", rule.Name, strings.Join(parts, joiner))
}

func (e *Evaluator) publishRuleTriggered(ctx context.Context, rule *types.AutomationRule, snap *types.PerformanceSnapshot, results []types.ConditionResult) error {
	et := snap.EntityType
	id := snap.EntityID
	return e.notifier.Publish(ctx, &types.Notification{
		ID:         uuid.NewString(),
		UserID:     rule.UserID,
		Type:       types.NotifRuleTriggered,
		Priority:   types.PriorityNormal,
		Title:      fmt.Sprintf("Rule %q triggered", rule.Name),
		Message:    triggerReason(rule, results),
		EntityType: &et,
		EntityID:   &id,
		CreatedAt:  e.clock.Now(),
	})
}

func (e *Evaluator) publishPendingApproval(ctx context.Context, action *types.AutomationAction) error {
	et := action.EntityType
	id := action.EntityID
	return e.notifier.Publish(ctx, &types.Notification{
		ID:         uuid.NewString(),
		UserID:     action.UserID,
		Type:       types.NotifPendingApproval,
		Priority:   types.PriorityHigh,
		Title:      fmt.Sprintf("Action awaiting approval: %s %s", action.ActionType, action.EntityName),
		Message:    action.TriggerReason,
		EntityType: &et,
		EntityID:   &id,
		Actions: []types.NotificationAction{
			{Label: "Approve", Value: "approve:" + action.ID},
			{Label: "Reject", Value: "reject:" + action.ID},
		},
		CreatedAt: e.clock.Now(),
	})
}
