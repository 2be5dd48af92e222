package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"adpilot/internal/types"
)

// ActionRepository provides data access for the automation_actions and
// action_feedback tables.
//
// The cooldown check (ExistsWithinCooldown) runs against the FULL action
// history for a (rule, entity) pair, not just pending actions. That is the
// single correctness-critical invariant of the rule evaluator: no two actions
// for the same pair may be created within cooldown_hours of one another.
type ActionRepository struct {
	db DBTX
}

// NewActionRepository creates a new ActionRepository backed by the given
// database connection (pool or transaction).
func NewActionRepository(db DBTX) *ActionRepository {
	return &ActionRepository{db: db}
}

// actionColumns defines the standard set of columns selected for action queries.
const actionColumns = `a.id, a.rule_id, a.user_id, a.ad_account_id,
	a.entity_type, a.entity_id, a.entity_name,
	a.action_type, a.action_params, a.state,
	a.trigger_reason, a.trigger_metrics, a.model_confidence,
	a.expires_at, a.approved_by, a.rejected_reason, a.failure_message,
	a.created_at, a.updated_at, a.resolved_at`

// scanAction scans a single automation action row.
func scanAction(row pgx.Row) (*types.AutomationAction, error) {
	var a types.AutomationAction
	var (
		entityName     *string
		approvedBy     *string
		rejectedReason *string
		failureMessage *string
	)

	err := row.Scan(
		&a.ID,
		&a.RuleID,
		&a.UserID,
		&a.AdAccountID,
		&a.EntityType,
		&a.EntityID,
		&entityName,
		&a.ActionType,
		&a.ActionParams,
		&a.State,
		&a.TriggerReason,
		&a.TriggerMetrics,
		&a.ModelConfidence,
		&a.ExpiresAt,
		&approvedBy,
		&rejectedReason,
		&failureMessage,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if entityName != nil {
		a.EntityName = *entityName
	}
	if approvedBy != nil {
		a.ApprovedBy = *approvedBy
	}
	if rejectedReason != nil {
		a.RejectedReason = *rejectedReason
	}
	if failureMessage != nil {
		a.FailureMessage = *failureMessage
	}

	return &a, nil
}

// Create inserts a new automation action. The caller sets the initial state
// (pending_approval or approved) and expires_at; the repository assigns the
// ID and created_at.
func (r *ActionRepository) Create(ctx context.Context, a *types.AutomationAction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO automation_actions
		 (id, rule_id, user_id, ad_account_id,
		  entity_type, entity_id, entity_name,
		  action_type, action_params, state,
		  trigger_reason, trigger_metrics, model_confidence, expires_at,
		  created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		a.ID,
		a.RuleID,
		a.UserID,
		a.AdAccountID,
		string(a.EntityType),
		a.EntityID,
		nilIfEmpty(a.EntityName),
		string(a.ActionType),
		a.ActionParams,
		string(a.State),
		a.TriggerReason,
		a.TriggerMetrics,
		a.ModelConfidence,
		a.ExpiresAt,
	)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create action", err)
	}
	return nil
}

// ExistsWithinCooldown reports whether any action (in any state) exists for
// the (rule, entity) pair created at or after the cutoff.
func (r *ActionRepository) ExistsWithinCooldown(ctx context.Context, ruleID, entityID string, cutoff time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM automation_actions a
		   WHERE a.rule_id = $1 AND a.entity_id = $2 AND a.created_at >= $3
		 )`,
		ruleID, entityID, cutoff,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check action cooldown", err)
	}
	return exists, nil
}

// Get returns a single action by ID, or a not-found AppError.
func (r *ActionRepository) Get(ctx context.Context, id string) (*types.AutomationAction, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM automation_actions a WHERE a.id = $1`, id)

	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAction, "action not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get action", err)
	}
	return a, nil
}

// ListByState returns actions in the given state, newest first.
func (r *ActionRepository) ListByState(ctx context.Context, state types.ActionState, limit int) ([]*types.AutomationAction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+actionColumns+`
		 FROM automation_actions a
		 WHERE a.state = $1
		 ORDER BY a.created_at DESC
		 LIMIT $2`,
		string(state), limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list actions", err)
	}
	defer rows.Close()

	var out []*types.AutomationAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan action", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read actions", err)
	}
	return out, nil
}

// UpdateState persists a state transition. It guards against lost updates by
// requiring the expected current state in the WHERE clause; zero rows
// affected means the action moved concurrently and the caller should re-read.
func (r *ActionRepository) UpdateState(ctx context.Context, a *types.AutomationAction, from types.ActionState) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE automation_actions
		 SET state = $2,
		     approved_by = NULLIF($3, ''),
		     rejected_reason = NULLIF($4, ''),
		     failure_message = NULLIF($5, ''),
		     resolved_at = $6,
		     updated_at = NOW()
		 WHERE id = $1 AND state = $7`,
		a.ID,
		string(a.State),
		a.ApprovedBy,
		a.RejectedReason,
		a.FailureMessage,
		a.ResolvedAt,
		string(from),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update action state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeActionIllegalTransition,
			"action state changed concurrently", nil)
	}
	return nil
}

// AppendFeedback inserts a training-feedback record for an action transition.
func (r *ActionRepository) AppendFeedback(ctx context.Context, f *types.ActionFeedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO action_feedback
		 (id, action_id, rule_id, label, trigger_metrics, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		f.ID,
		f.ActionID,
		f.RuleID,
		string(f.Label),
		f.TriggerMetrics,
		f.Confidence,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append action feedback", err)
	}
	return nil
}

// nilIfEmpty maps an empty string to a nil pointer for nullable columns.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
