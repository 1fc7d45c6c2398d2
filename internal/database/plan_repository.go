package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/irfndi/volume-engine/internal/models"
	"github.com/irfndi/volume-engine/internal/volume"
)

const (
	insertPlanQuery = `
		INSERT INTO volume_plans (
			prediction_id, creator_id, computed_at, input_fingerprint, tier, confidence,
			base_revenue, base_engagement, base_retention, plan
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	latestPlanQuery = `
		SELECT plan
		FROM volume_plans
		WHERE creator_id = $1
		ORDER BY computed_at DESC, created_at DESC
		LIMIT 1`

	planByPredictionQuery = `SELECT plan FROM volume_plans WHERE prediction_id = $1`

	previousPlanQuery = `
		SELECT prediction_id::text, base_revenue, base_engagement, base_retention
		FROM volume_plans
		WHERE creator_id = $1 AND computed_at < $2
		ORDER BY computed_at DESC, created_at DESC
		LIMIT 1`

	captionInventoryQuery = `
		SELECT content_type, fresh_count
		FROM caption_inventory
		WHERE creator_id = $1`

	insertOutcomeQuery = `
		INSERT INTO prediction_outcomes (
			prediction_id, creator_id, revenue_sends, engagement_sends, retention_sends,
			observed_revenue, notes
		)
		SELECT prediction_id, creator_id, $2, $3, $4, $5, $6
		FROM volume_plans
		WHERE prediction_id = $1
		RETURNING id, creator_id, recorded_at`
)

// PlanRepository persists volume plans, caption inventory reads and prediction outcomes.
type PlanRepository struct {
	pool DatabasePool
}

// NewPlanRepository creates a new plan repository.
func NewPlanRepository(pool DatabasePool) *PlanRepository {
	return &PlanRepository{pool: pool}
}

// SavePlan stores a computed plan keyed by its prediction id.
func (r *PlanRepository) SavePlan(ctx context.Context, plan *volume.VolumePlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertPlanQuery,
		plan.PredictionID,
		plan.CreatorID,
		plan.ComputedAt,
		plan.InputFingerprint,
		string(plan.Tier),
		plan.ConfidenceScore,
		plan.BaseTotals.Revenue,
		plan.BaseTotals.Engagement,
		plan.BaseTotals.Retention,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save plan %s: %w", plan.PredictionID, err)
	}
	return nil
}

// LatestPlan returns the most recently computed plan for a creator.
func (r *PlanRepository) LatestPlan(ctx context.Context, creatorID string) (*volume.VolumePlan, error) {
	return r.scanPlan(r.pool.QueryRow(ctx, latestPlanQuery, creatorID), creatorID)
}

// GetPlan returns the plan issued under predictionID.
func (r *PlanRepository) GetPlan(ctx context.Context, predictionID string) (*volume.VolumePlan, error) {
	plan, err := r.scanPlan(r.pool.QueryRow(ctx, planByPredictionQuery, predictionID), predictionID)
	if errors.Is(err, ErrPlanNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPredictionNotFound, predictionID)
	}
	return plan, err
}

func (r *PlanRepository) scanPlan(row pgx.Row, key string) (*volume.VolumePlan, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, key)
		}
		return nil, fmt.Errorf("failed to load plan %s: %w", key, err)
	}

	var plan volume.VolumePlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan %s: %w", key, err)
	}
	return &plan, nil
}

// PreviousPlan returns the elasticity reference computed strictly before asOf,
// or nil when the creator has no earlier plan.
func (r *PlanRepository) PreviousPlan(ctx context.Context, creatorID string, asOf time.Time) (*volume.PreviousPlan, error) {
	var prev volume.PreviousPlan
	err := r.pool.QueryRow(ctx, previousPlanQuery, creatorID, asOf).Scan(
		&prev.PredictionID,
		&prev.BaseTotals.Revenue,
		&prev.BaseTotals.Engagement,
		&prev.BaseTotals.Retention,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load previous plan for %s: %w", creatorID, err)
	}
	return &prev, nil
}

// CaptionInventory returns fresh caption counts by content type. A creator
// with no inventory rows yields nil, which leaves the caption guard disabled.
func (r *PlanRepository) CaptionInventory(ctx context.Context, creatorID string) (volume.CaptionInventory, error) {
	rows, err := r.pool.Query(ctx, captionInventoryQuery, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query caption inventory: %w", err)
	}
	defer rows.Close()

	var inventory volume.CaptionInventory
	for rows.Next() {
		var (
			contentType string
			fresh       int
		)
		if err := rows.Scan(&contentType, &fresh); err != nil {
			return nil, fmt.Errorf("failed to scan caption inventory: %w", err)
		}
		if inventory == nil {
			inventory = volume.CaptionInventory{}
		}
		inventory[contentType] = fresh
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating caption inventory: %w", err)
	}
	return inventory, nil
}

// RecordOutcome stores observed results against an issued prediction. The
// creator is taken from the stored plan.
func (r *PlanRepository) RecordOutcome(ctx context.Context, outcome models.PredictionOutcome) (*models.PredictionOutcome, error) {
	err := r.pool.QueryRow(ctx, insertOutcomeQuery,
		outcome.PredictionID,
		outcome.RevenueSends,
		outcome.EngagementSends,
		outcome.RetentionSends,
		outcome.ObservedRevenue,
		outcome.Notes,
	).Scan(&outcome.ID, &outcome.CreatorID, &outcome.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPredictionNotFound, outcome.PredictionID)
		}
		return nil, fmt.Errorf("failed to record outcome for %s: %w", outcome.PredictionID, err)
	}
	return &outcome, nil
}
