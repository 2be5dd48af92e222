package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"adpilot/internal/types"
)

// ScoreRepository provides data access for the account_scores table.
// One row per (user_id, ad_account_id, score_date); re-running the scorer for
// the same day replaces that day's row.
type ScoreRepository struct {
	db DBTX
}

// NewScoreRepository creates a new ScoreRepository backed by the given
// database connection (pool or transaction).
func NewScoreRepository(db DBTX) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// scoreColumns defines the standard set of columns selected for score queries.
const scoreColumns = `s.id, s.user_id, s.ad_account_id, s.score_date,
	s.overall_score, s.performance_score, s.efficiency_score,
	s.pixel_health_score, s.learning_score, s.consistency_score,
	s.grade, s.score_trend, s.trend_percentage, s.recommendations, s.created_at`

// scanScore scans a single account score row.
func scanScore(row pgx.Row) (*types.AccountScore, error) {
	var s types.AccountScore
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.AdAccountID,
		&s.ScoreDate,
		&s.OverallScore,
		&s.PerformanceScore,
		&s.EfficiencyScore,
		&s.PixelHealthScore,
		&s.LearningScore,
		&s.ConsistencyScore,
		&s.Grade,
		&s.ScoreTrend,
		&s.TrendPercentage,
		&s.Recommendations,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert inserts or replaces the score row for (user, account, date).
func (r *ScoreRepository) Upsert(ctx context.Context, s *types.AccountScore) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO account_scores
		 (id, user_id, ad_account_id, score_date,
		  overall_score, performance_score, efficiency_score,
		  pixel_health_score, learning_score, consistency_score,
		  grade, score_trend, trend_percentage, recommendations, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		 ON CONFLICT (user_id, ad_account_id, score_date)
		 DO UPDATE SET
		   overall_score = EXCLUDED.overall_score,
		   performance_score = EXCLUDED.performance_score,
		   efficiency_score = EXCLUDED.efficiency_score,
		   pixel_health_score = EXCLUDED.pixel_health_score,
		   learning_score = EXCLUDED.learning_score,
		   consistency_score = EXCLUDED.consistency_score,
		   grade = EXCLUDED.grade,
		   score_trend = EXCLUDED.score_trend,
		   trend_percentage = EXCLUDED.trend_percentage,
		   recommendations = EXCLUDED.recommendations`,
		s.ID,
		s.UserID,
		s.AdAccountID,
		s.ScoreDate,
		s.OverallScore,
		s.PerformanceScore,
		s.EfficiencyScore,
		s.PixelHealthScore,
		s.LearningScore,
		s.ConsistencyScore,
		s.Grade,
		string(s.ScoreTrend),
		s.TrendPercentage,
		s.Recommendations,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert account score", err)
	}
	return nil
}

// GetByDate returns the score row for a specific day, or nil (no error) when
// no row exists. Absence of a prior-day row is an expected condition for
// trend computation, not a failure.
func (r *ScoreRepository) GetByDate(ctx context.Context, ref types.AccountRef, date time.Time) (*types.AccountScore, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+scoreColumns+`
		 FROM account_scores s
		 WHERE s.user_id = $1 AND s.ad_account_id = $2 AND s.score_date = $3`,
		ref.UserID, ref.AdAccountID, date,
	)

	s, err := scanScore(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get account score", err)
	}
	return s, nil
}

// GetLatest returns the most recent score row for an account, or a not-found
// AppError when the account has never been scored.
func (r *ScoreRepository) GetLatest(ctx context.Context, adAccountID string) (*types.AccountScore, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+scoreColumns+`
		 FROM account_scores s
		 WHERE s.ad_account_id = $1
		 ORDER BY s.score_date DESC
		 LIMIT 1`,
		adAccountID,
	)

	s, err := scanScore(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundScore, "no score for account", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get latest score", err)
	}
	return s, nil
}

// ListTrend returns an account's score rows over the given window, oldest
// first. Read-side dashboard concern layered on the core score rows.
func (r *ScoreRepository) ListTrend(ctx context.Context, adAccountID string, since time.Time, limit int) ([]*types.AccountScore, error) {
	if limit <= 0 || limit > 365 {
		limit = 90
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+scoreColumns+`
		 FROM account_scores s
		 WHERE s.ad_account_id = $1 AND s.score_date >= $2
		 ORDER BY s.score_date
		 LIMIT $3`,
		adAccountID, since, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list score trend", err)
	}
	defer rows.Close()

	var out []*types.AccountScore
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan score", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read scores", err)
	}
	return out, nil
}
