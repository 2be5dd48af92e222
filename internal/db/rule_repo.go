package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"adpilot/internal/types"
)

// RuleRepository provides data access for the automation_rules table.
type RuleRepository struct {
	db DBTX
}

// NewRuleRepository creates a new RuleRepository backed by the given database
// connection (pool or transaction).
func NewRuleRepository(db DBTX) *RuleRepository {
	return &RuleRepository{db: db}
}

// ruleColumns defines the standard set of columns selected for rule queries.
const ruleColumns = `r.id, r.user_id, r.name, r.description,
	r.conditions, r.condition_logic, r.actions,
	r.requires_approval, r.cooldown_hours, r.evaluation_window_hours,
	r.entity_type, r.ad_account_id, r.status,
	r.times_triggered, r.last_triggered_at, r.created_at, r.updated_at`

// scanRule scans a single automation rule row.
func scanRule(row pgx.Row) (*types.AutomationRule, error) {
	var r types.AutomationRule
	var (
		description *string
		entityType  *string
	)

	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.Name,
		&description,
		&r.Conditions,
		&r.ConditionLogic,
		&r.Actions,
		&r.RequiresApproval,
		&r.CooldownHours,
		&r.EvaluationWindowHours,
		&entityType,
		&r.AdAccountID,
		&r.Status,
		&r.TimesTriggered,
		&r.LastTriggeredAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description != nil {
		r.Description = *description
	}
	if entityType != nil {
		et := types.EntityType(*entityType)
		r.EntityType = &et
	}

	return &r, nil
}

// ListActive returns all rules with status 'active', oldest first so that
// long-standing rules evaluate before newer ones.
func (r *RuleRepository) ListActive(ctx context.Context) ([]*types.AutomationRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ruleColumns+`
		 FROM automation_rules r
		 WHERE r.status = 'active'
		 ORDER BY r.created_at`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active rules", err)
	}
	defer rows.Close()

	var out []*types.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan rule", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read rules", err)
	}
	return out, nil
}

// Get returns a single rule by ID, or a not-found AppError.
func (r *RuleRepository) Get(ctx context.Context, id string) (*types.AutomationRule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules r WHERE r.id = $1`, id)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRule, "rule not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get rule", err)
	}
	return rule, nil
}

// RecordTrigger increments the rule's times_triggered counter and stamps
// last_triggered_at. Called once per evaluation cycle in which the rule
// matched at least one entity, even when cooldown suppressed the action.
func (r *RuleRepository) RecordTrigger(ctx context.Context, ruleID string, triggeredAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE automation_rules
		 SET times_triggered = times_triggered + 1,
		     last_triggered_at = $2,
		     updated_at = NOW()
		 WHERE id = $1`,
		ruleID, triggeredAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record rule trigger", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "rule not found", nil)
	}
	return nil
}
