package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"adpilot/internal/types"
)

// PatternRepository provides data access for the learned_patterns table.
//
// The table carries a unique index on
// (pattern_type, pattern_name, COALESCE(user_id, ”), COALESCE(ad_account_id, ”))
// so that re-running a learner updates the existing row rather than creating
// a duplicate. That upsert-by-key behavior is an invariant of the learner,
// not an implementation detail.
type PatternRepository struct {
	db DBTX
}

// NewPatternRepository creates a new PatternRepository backed by the given
// database connection (pool or transaction).
func NewPatternRepository(db DBTX) *PatternRepository {
	return &PatternRepository{db: db}
}

// patternColumns defines the standard set of columns selected for pattern queries.
const patternColumns = `p.id, p.pattern_type, p.pattern_name, p.user_id, p.ad_account_id,
	p.pattern_data, p.confidence_score, p.sample_size,
	p.valid_from, p.valid_until, p.last_validated, p.created_at, p.updated_at`

// scanPattern scans a single pattern row, decoding the pattern_data JSONB
// into the typed payload variant for the row's pattern_type.
func scanPattern(row pgx.Row) (*types.LearnedPattern, error) {
	var p types.LearnedPattern
	var raw []byte

	err := row.Scan(
		&p.ID,
		&p.PatternType,
		&p.PatternName,
		&p.Scope.UserID,
		&p.Scope.AdAccountID,
		&raw,
		&p.ConfidenceScore,
		&p.SampleSize,
		&p.ValidFrom,
		&p.ValidUntil,
		&p.LastValidated,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payload, err := types.DecodePatternData(p.PatternType, raw)
	if err != nil {
		return nil, err
	}
	p.Data = payload

	return &p, nil
}

// Upsert inserts or updates a learned pattern by its
// (pattern_type, pattern_name, scope) key. On conflict the payload,
// confidence, sample size, and validity window are replaced and updated_at
// is bumped; created_at and id are preserved.
func (r *PatternRepository) Upsert(ctx context.Context, p *types.LearnedPattern) error {
	raw, err := types.EncodePatternData(p.Data)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode pattern data", err)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO learned_patterns
		 (id, pattern_type, pattern_name, user_id, ad_account_id,
		  pattern_data, confidence_score, sample_size,
		  valid_from, valid_until, last_validated, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		 ON CONFLICT (pattern_type, pattern_name, COALESCE(user_id, ''), COALESCE(ad_account_id, ''))
		 DO UPDATE SET
		   pattern_data = EXCLUDED.pattern_data,
		   confidence_score = EXCLUDED.confidence_score,
		   sample_size = EXCLUDED.sample_size,
		   valid_from = EXCLUDED.valid_from,
		   valid_until = EXCLUDED.valid_until,
		   last_validated = EXCLUDED.last_validated,
		   updated_at = NOW()`,
		p.ID,
		string(p.PatternType),
		p.PatternName,
		p.Scope.UserID,
		p.Scope.AdAccountID,
		raw,
		p.ConfidenceScore,
		p.SampleSize,
		p.ValidFrom,
		p.ValidUntil,
		p.LastValidated,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert learned pattern", err)
	}
	return nil
}

// ListPatternsParams defines the filtering parameters for listing patterns.
type ListPatternsParams struct {
	PatternType *types.PatternType
	UserID      *string
	AdAccountID *string
	// ValidAt restricts results to patterns whose validity window covers the
	// given instant. Nil returns all rows regardless of validity.
	ValidAt *time.Time
	Limit   int
}

// List returns learned patterns matching the given filters, most recently
// validated first.
func (r *PatternRepository) List(ctx context.Context, params ListPatternsParams) ([]*types.LearnedPattern, error) {
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var pt *string
	if params.PatternType != nil {
		v := string(*params.PatternType)
		pt = &v
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+patternColumns+`
		 FROM learned_patterns p
		 WHERE ($1::text IS NULL OR p.pattern_type = $1)
		   AND ($2::text IS NULL OR p.user_id = $2)
		   AND ($3::text IS NULL OR p.ad_account_id = $3)
		   AND ($4::timestamptz IS NULL OR (p.valid_from <= $4 AND p.valid_until >= $4))
		 ORDER BY p.last_validated DESC
		 LIMIT $5`,
		pt, params.UserID, params.AdAccountID, params.ValidAt, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list patterns", err)
	}
	defer rows.Close()

	var out []*types.LearnedPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan pattern", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read patterns", err)
	}
	return out, nil
}

// Get returns a single pattern by its key, or a not-found AppError.
func (r *PatternRepository) Get(ctx context.Context, pt types.PatternType, name string, scope types.PatternScope) (*types.LearnedPattern, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+patternColumns+`
		 FROM learned_patterns p
		 WHERE p.pattern_type = $1 AND p.pattern_name = $2
		   AND COALESCE(p.user_id, '') = COALESCE($3, '')
		   AND COALESCE(p.ad_account_id, '') = COALESCE($4, '')`,
		string(pt), name, scope.UserID, scope.AdAccountID,
	)

	p, err := scanPattern(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPattern, "pattern not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get pattern", err)
	}
	return p, nil
}
