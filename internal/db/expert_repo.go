package db

import (
	"context"

	"adpilot/internal/types"
)

// ExpertRepository provides read-only data access for the expert_rules table.
// The table is populated by the expert-prior collaborator (survey parsing);
// this engine only consumes it to seed expert_* patterns.
type ExpertRepository struct {
	db DBTX
}

// NewExpertRepository creates a new ExpertRepository backed by the given
// database connection (pool or transaction).
func NewExpertRepository(db DBTX) *ExpertRepository {
	return &ExpertRepository{db: db}
}

// ListVerticals returns the distinct verticals that have expert rules.
func (r *ExpertRepository) ListVerticals(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT vertical FROM expert_rules ORDER BY vertical`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expert verticals", err)
	}
	defer rows.Close()

	var verticals []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan vertical", err)
		}
		verticals = append(verticals, v)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read verticals", err)
	}
	return verticals, nil
}

// ListByVertical returns a vertical's expert rules filtered by rule type.
func (r *ExpertRepository) ListByVertical(ctx context.Context, vertical string, ruleTypes ...types.ExpertRuleType) ([]*types.ExpertRule, error) {
	strs := make([]string, len(ruleTypes))
	for i, rt := range ruleTypes {
		strs[i] = string(rt)
	}

	rows, err := r.db.Query(ctx,
		`SELECT e.id, e.vertical, e.rule_type, e.conditions,
		        e.confidence_score, e.expert_count, e.created_at
		 FROM expert_rules e
		 WHERE e.vertical = $1
		   AND (cardinality($2::text[]) = 0 OR e.rule_type = ANY($2))
		 ORDER BY e.confidence_score DESC, e.created_at`,
		vertical, strs,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expert rules", err)
	}
	defer rows.Close()

	var out []*types.ExpertRule
	for rows.Next() {
		var e types.ExpertRule
		if err := rows.Scan(
			&e.ID,
			&e.Vertical,
			&e.RuleType,
			&e.Conditions,
			&e.ConfidenceScore,
			&e.ExpertCount,
			&e.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan expert rule", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read expert rules", err)
	}
	return out, nil
}
