package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/jackc/pgx/v5"

	"github.com/irfndi/volume-engine/internal/volume"
)

const (
	// weekdayLookbackDays covers eight samples per weekday.
	weekdayLookbackDays = 56
	// weekdayEMAPeriod is the smoothing window over same-weekday samples.
	weekdayEMAPeriod = 4
)

const (
	creatorQuery = `SELECT page_type, content_category FROM creators WHERE id = $1`

	horizonSignalsQuery = `
		SELECT DISTINCT ON (horizon) horizon, saturation, opportunity, sample_size, as_of
		FROM creator_horizon_signals
		WHERE creator_id = $1 AND as_of <= $2
		ORDER BY horizon, as_of DESC`

	messageCountQuery = `
		SELECT COALESCE(SUM(messages), 0)
		FROM creator_daily_stats
		WHERE creator_id = $1 AND day <= $2`

	dailyRatesQuery = `
		SELECT day, engagement_rate
		FROM creator_daily_stats
		WHERE creator_id = $1 AND day > $2 AND day <= $3
		ORDER BY day`

	rankingsQuery = `
		SELECT content_type, category, rank
		FROM content_type_rankings
		WHERE creator_id = $1
		ORDER BY category, content_type`
)

// SignalRepository assembles volume.CreatorSignals from Postgres.
type SignalRepository struct {
	pool DatabasePool
}

// NewSignalRepository creates a new signal repository.
func NewSignalRepository(pool DatabasePool) *SignalRepository {
	return &SignalRepository{pool: pool}
}

// GetCreatorSignals loads everything the engine needs for one creator as of asOf.
// Only signals measured at or before asOf are considered, and the newest row per
// horizon wins.
func (r *SignalRepository) GetCreatorSignals(ctx context.Context, creatorID string, asOf time.Time) (volume.CreatorSignals, error) {
	out := volume.CreatorSignals{CreatorID: creatorID, AsOf: asOf}

	var pageType, contentCategory string
	err := r.pool.QueryRow(ctx, creatorQuery, creatorID).Scan(&pageType, &contentCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, fmt.Errorf("%w: %s", ErrCreatorNotFound, creatorID)
		}
		return out, fmt.Errorf("failed to load creator %s: %w", creatorID, err)
	}
	out.PageType = volume.PageType(pageType)
	out.ContentCategory = volume.ContentCategory(contentCategory)

	if out.Signals, err = r.horizonSignals(ctx, creatorID, asOf); err != nil {
		return out, err
	}

	var messages int64
	if err := r.pool.QueryRow(ctx, messageCountQuery, creatorID, asOf).Scan(&messages); err != nil {
		return out, fmt.Errorf("failed to count messages for %s: %w", creatorID, err)
	}
	out.History.MessageCount = int(messages)

	if out.History.DayOfWeekRates, err = r.weekdayRates(ctx, creatorID, asOf); err != nil {
		return out, err
	}

	if out.Rankings, err = r.rankings(ctx, creatorID); err != nil {
		return out, err
	}
	return out, nil
}

func (r *SignalRepository) horizonSignals(ctx context.Context, creatorID string, asOf time.Time) ([]volume.PerformanceSignal, error) {
	rows, err := r.pool.Query(ctx, horizonSignalsQuery, creatorID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query horizon signals: %w", err)
	}
	defer rows.Close()

	var signals []volume.PerformanceSignal
	for rows.Next() {
		var (
			horizon string
			s       volume.PerformanceSignal
		)
		if err := rows.Scan(&horizon, &s.Saturation, &s.Opportunity, &s.SampleSize, &s.AsOf); err != nil {
			return nil, fmt.Errorf("failed to scan horizon signal: %w", err)
		}
		s.Horizon = volume.Horizon(horizon)
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating horizon signals: %w", err)
	}
	return signals, nil
}

func (r *SignalRepository) weekdayRates(ctx context.Context, creatorID string, asOf time.Time) ([volume.DaysPerWeek]float64, error) {
	var result [volume.DaysPerWeek]float64

	from := asOf.AddDate(0, 0, -weekdayLookbackDays)
	rows, err := r.pool.Query(ctx, dailyRatesQuery, creatorID, from, asOf)
	if err != nil {
		return result, fmt.Errorf("failed to query daily engagement: %w", err)
	}
	defer rows.Close()

	var byWeekday [volume.DaysPerWeek][]float64
	for rows.Next() {
		var (
			day  time.Time
			rate float64
		)
		if err := rows.Scan(&day, &rate); err != nil {
			return result, fmt.Errorf("failed to scan daily engagement: %w", err)
		}
		idx := (int(day.Weekday()) + 6) % volume.DaysPerWeek
		byWeekday[idx] = append(byWeekday[idx], rate)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("error iterating daily engagement: %w", err)
	}

	for i, samples := range byWeekday {
		result[i] = smoothRate(samples, weekdayEMAPeriod)
	}
	return result, nil
}

// smoothRate returns the last EMA value over samples (oldest first). Series
// shorter than the period fall back to their mean; an empty series is 0.
func smoothRate(samples []float64, period int) float64 {
	if len(samples) == 0 {
		return 0
	}
	if len(samples) >= period {
		ema := trend.NewEmaWithPeriod[float64](period)
		smoothed := helper.ChanToSlice(ema.Compute(helper.SliceToChan(samples)))
		if len(smoothed) > 0 {
			return smoothed[len(smoothed)-1]
		}
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

func (r *SignalRepository) rankings(ctx context.Context, creatorID string) ([]volume.ContentRanking, error) {
	rows, err := r.pool.Query(ctx, rankingsQuery, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query content rankings: %w", err)
	}
	defer rows.Close()

	var rankings []volume.ContentRanking
	for rows.Next() {
		var contentType, category, rank string
		if err := rows.Scan(&contentType, &category, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan content ranking: %w", err)
		}
		rankings = append(rankings, volume.ContentRanking{
			ContentType: contentType,
			Category:    volume.Category(category),
			Rank:        volume.Rank(rank),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content rankings: %w", err)
	}
	return rankings, nil
}
