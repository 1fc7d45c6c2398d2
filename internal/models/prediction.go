package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/volume-engine/internal/utils"
	"github.com/irfndi/volume-engine/internal/volume"
)

// PredictionOutcome is what actually happened for a plan, reported after the week ran.
type PredictionOutcome struct {
	ID              int64           `json:"id" db:"id"`
	PredictionID    string          `json:"prediction_id" db:"prediction_id"`
	CreatorID       string          `json:"creator_id" db:"creator_id"`
	RevenueSends    int             `json:"revenue_sends" db:"revenue_sends"`
	EngagementSends int             `json:"engagement_sends" db:"engagement_sends"`
	RetentionSends  int             `json:"retention_sends" db:"retention_sends"`
	ObservedRevenue decimal.Decimal `json:"observed_revenue" db:"observed_revenue"`
	Notes           string          `json:"notes,omitempty" db:"notes"`
	RecordedAt      time.Time       `json:"recorded_at" db:"recorded_at"`
}

// Sends returns the observed sends as category totals.
func (o PredictionOutcome) Sends() volume.CategoryTotals {
	return volume.CategoryTotals{
		Revenue:    o.RevenueSends,
		Engagement: o.EngagementSends,
		Retention:  o.RetentionSends,
	}
}

// OutcomeRequest represents the request body for reporting an outcome
type OutcomeRequest struct {
	RevenueSends    int             `json:"revenue_sends"`
	EngagementSends int             `json:"engagement_sends"`
	RetentionSends  int             `json:"retention_sends"`
	ObservedRevenue decimal.Decimal `json:"observed_revenue"`
	Notes           string          `json:"notes"`
}

// Validate rejects negative counts and revenue.
func (r OutcomeRequest) Validate() error {
	switch {
	case r.RevenueSends < 0:
		return utils.NewFieldError("revenue_sends", "must not be negative")
	case r.EngagementSends < 0:
		return utils.NewFieldError("engagement_sends", "must not be negative")
	case r.RetentionSends < 0:
		return utils.NewFieldError("retention_sends", "must not be negative")
	case r.ObservedRevenue.IsNegative():
		return utils.NewFieldError("observed_revenue", "must not be negative")
	}
	return nil
}

// Outcome converts the request into an outcome for predictionID.
func (r OutcomeRequest) Outcome(predictionID string) PredictionOutcome {
	return PredictionOutcome{
		PredictionID:    predictionID,
		RevenueSends:    r.RevenueSends,
		EngagementSends: r.EngagementSends,
		RetentionSends:  r.RetentionSends,
		ObservedRevenue: r.ObservedRevenue.Round(2),
		Notes:           r.Notes,
	}
}

// OutcomeResponse pairs a stored outcome with how far it landed from the plan.
type OutcomeResponse struct {
	Outcome  PredictionOutcome     `json:"outcome"`
	Planned  volume.CategoryTotals `json:"planned"`
	Accuracy decimal.Decimal       `json:"send_accuracy"`
}

// SendAccuracy is 1 minus the relative error of total observed sends against
// total planned sends, floored at 0 and rounded to 4 places.
func SendAccuracy(planned, observed volume.CategoryTotals) decimal.Decimal {
	p := decimal.NewFromInt(int64(planned.Sum()))
	o := decimal.NewFromInt(int64(observed.Sum()))
	denom := decimal.Max(p, decimal.NewFromInt(1))
	acc := decimal.NewFromInt(1).Sub(o.Sub(p).Abs().Div(denom))
	if acc.IsNegative() {
		return decimal.Zero
	}
	return acc.Round(4)
}

// VolumePlanRequest represents optional parameters for computing a plan
type VolumePlanRequest struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

// BatchPlanRequest represents the request body for a batch computation
type BatchPlanRequest struct {
	CreatorIDs []string   `json:"creator_ids" binding:"required,min=1"`
	AsOf       *time.Time `json:"as_of,omitempty"`
}

// BatchPlanResult is one creator's entry in a batch response
type BatchPlanResult struct {
	CreatorID string             `json:"creator_id"`
	Plan      *volume.VolumePlan `json:"plan,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// BatchPlanResponse represents the response for a batch computation
type BatchPlanResponse struct {
	Results   []BatchPlanResult `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Timestamp time.Time         `json:"timestamp"`
}

// PreviewRequest runs the engine on caller-supplied input without persistence
type PreviewRequest struct {
	Signals   volume.CreatorSignals   `json:"signals"`
	Previous  *volume.PreviousPlan    `json:"previous,omitempty"`
	Inventory volume.CaptionInventory `json:"inventory,omitempty"`
	Config    *volume.Config          `json:"config,omitempty"`
}

// UnmarshalJSON decodes a config override on top of volume.DefaultConfig so
// omitted options keep their defaults.
func (r *PreviewRequest) UnmarshalJSON(data []byte) error {
	type plain PreviewRequest
	var raw struct {
		plain
		Config json.RawMessage `json:"config,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = PreviewRequest(raw.plain)
	r.Config = nil
	if len(raw.Config) == 0 || bytes.Equal(bytes.TrimSpace(raw.Config), []byte("null")) {
		return nil
	}
	cfg := volume.DefaultConfig()
	if err := json.Unmarshal(raw.Config, &cfg); err != nil {
		return err
	}
	r.Config = &cfg
	return nil
}
