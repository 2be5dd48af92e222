package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"adpilot/internal/types"
)

// SnapshotRepository provides read-only data access for the
// performance_snapshots table. The table is owned by the ingestion
// collaborator; this engine never writes to it.
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new SnapshotRepository backed by the given
// database connection (pool or transaction).
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// snapColumns defines the standard set of columns selected for snapshot queries.
const snapColumns = `s.id, s.entity_type, s.entity_id, s.entity_name,
	s.ad_account_id, s.user_id, s.snapshot_date,
	s.spend, s.impressions, s.clicks, s.reach, s.conversions, s.revenue,
	s.cpm, s.ctr, s.cpc, s.cpa, s.roas, s.frequency,
	s.learning_phase, s.effective_status, s.days_since_creation,
	s.hour_of_day, s.day_of_week, s.created_at`

// scanSnapshot scans a single snapshot row. pgx.Rows satisfies pgx.Row, so
// this helper works for both single-row and multi-row queries. The columns
// must match the order defined in snapColumns.
func scanSnapshot(row pgx.Row) (*types.PerformanceSnapshot, error) {
	var s types.PerformanceSnapshot
	var (
		entityName      *string
		learningPhase   *string
		effectiveStatus *string
	)

	err := row.Scan(
		&s.ID,
		&s.EntityType,
		&s.EntityID,
		&entityName,
		&s.AdAccountID,
		&s.UserID,
		&s.SnapshotDate,
		&s.Spend,
		&s.Impressions,
		&s.Clicks,
		&s.Reach,
		&s.Conversions,
		&s.Revenue,
		&s.CPM,
		&s.CTR,
		&s.CPC,
		&s.CPA,
		&s.ROAS,
		&s.Frequency,
		&learningPhase,
		&effectiveStatus,
		&s.DaysSinceCreation,
		&s.HourOfDay,
		&s.DayOfWeek,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entityName != nil {
		s.EntityName = *entityName
	}
	if learningPhase != nil {
		s.LearningPhase = types.LearningPhase(*learningPhase)
	}
	if effectiveStatus != nil {
		s.EffectiveStatus = *effectiveStatus
	}

	return &s, nil
}

// collectSnapshots drains a pgx.Rows result set into a slice.
func collectSnapshots(rows pgx.Rows) ([]*types.PerformanceSnapshot, error) {
	defer rows.Close()

	var out []*types.PerformanceSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAccounts returns the distinct (user_id, ad_account_id) pairs observed
// in snapshots since the cutoff. This drives the per-account batching of the
// learning and scoring jobs.
func (r *SnapshotRepository) ListAccounts(ctx context.Context, since time.Time) ([]types.AccountRef, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT s.user_id, s.ad_account_id
		 FROM performance_snapshots s
		 WHERE s.snapshot_date >= $1
		 ORDER BY s.user_id, s.ad_account_id`,
		since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list snapshot accounts", err)
	}
	defer rows.Close()

	var refs []types.AccountRef
	for rows.Next() {
		var ref types.AccountRef
		if err := rows.Scan(&ref.UserID, &ref.AdAccountID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan account ref", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read account refs", err)
	}
	return refs, nil
}

// ListForAccount returns all snapshots for one account since the cutoff,
// ordered by entity then date. The ordering matters for fatigue detection,
// which scans adjacent-day transitions per entity.
func (r *SnapshotRepository) ListForAccount(ctx context.Context, ref types.AccountRef, since time.Time, entityTypes ...types.EntityType) ([]*types.PerformanceSnapshot, error) {
	query := fmt.Sprintf(
		`SELECT %s
		 FROM performance_snapshots s
		 WHERE s.user_id = $1 AND s.ad_account_id = $2 AND s.snapshot_date >= $3`,
		snapColumns,
	)
	args := []any{ref.UserID, ref.AdAccountID, since}

	if len(entityTypes) > 0 {
		query += ` AND s.entity_type = ANY($4)`
		strs := make([]string, len(entityTypes))
		for i, et := range entityTypes {
			strs[i] = string(et)
		}
		args = append(args, strs)
	}
	query += ` ORDER BY s.entity_id, s.snapshot_date`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list account snapshots", err)
	}
	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan account snapshots", err)
	}
	return snaps, nil
}

// LatestPerEntity returns the most recent snapshot per entity within the
// evaluation window, optionally filtered by entity type and ad account.
// Hourly granularity rows are excluded: rule evaluation operates on the
// per-day entity rollups, not hour buckets.
func (r *SnapshotRepository) LatestPerEntity(ctx context.Context, since time.Time, entityType *types.EntityType, adAccountID *string) ([]*types.PerformanceSnapshot, error) {
	query := fmt.Sprintf(
		`SELECT DISTINCT ON (s.entity_type, s.entity_id) %s
		 FROM performance_snapshots s
		 WHERE s.snapshot_date >= $1
		   AND s.hour_of_day IS NULL
		   AND ($2::text IS NULL OR s.entity_type = $2)
		   AND ($3::text IS NULL OR s.ad_account_id = $3)
		 ORDER BY s.entity_type, s.entity_id, s.snapshot_date DESC, s.created_at DESC`,
		snapColumns,
	)

	var et *string
	if entityType != nil {
		v := string(*entityType)
		et = &v
	}

	rows, err := r.db.Query(ctx, query, since, et, adAccountID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list latest snapshots", err)
	}
	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan latest snapshots", err)
	}
	return snaps, nil
}

// LatestLearningPhases returns, per ad set, the learning_phase of its most
// recent snapshot since the cutoff. Used by the account scorer's
// learning-phase success rate.
func (r *SnapshotRepository) LatestLearningPhases(ctx context.Context, ref types.AccountRef, since time.Time) (map[string]types.LearningPhase, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT ON (s.entity_id) s.entity_id, s.learning_phase
		 FROM performance_snapshots s
		 WHERE s.user_id = $1 AND s.ad_account_id = $2
		   AND s.entity_type = 'adset' AND s.snapshot_date >= $3
		   AND s.learning_phase IS NOT NULL
		 ORDER BY s.entity_id, s.snapshot_date DESC`,
		ref.UserID, ref.AdAccountID, since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list learning phases", err)
	}
	defer rows.Close()

	phases := make(map[string]types.LearningPhase)
	for rows.Next() {
		var entityID string
		var phase types.LearningPhase
		if err := rows.Scan(&entityID, &phase); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan learning phase", err)
		}
		phases[entityID] = phase
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read learning phases", err)
	}
	return phases, nil
}
