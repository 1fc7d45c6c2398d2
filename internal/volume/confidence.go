package volume

import (
	"math"
	"time"
)

// Confidence curve constants.
const (
	// confidenceMessageScale is the message count at which the data factor reaches 1-1/e.
	confidenceMessageScale = 150.0
	// divergencePenalty is the share of confidence removed at full divergence.
	divergencePenalty = 0.6
	// staleGraceDays is how old the newest signal may be before decay starts.
	staleGraceDays = 1.0
	// staleHalfLifeDays halves confidence for every two weeks past the grace period.
	staleHalfLifeDays = 14.0
	// maxSignalSwing is the largest fractional move from baseline at full confidence.
	maxSignalSwing = 0.5
)

// ConfidenceInput carries everything the confidence model reads.
type ConfidenceInput struct {
	Divergence   float64
	MessageCount int
	StaleDays    float64
}

// ConfidenceScorer derives a [0,1] confidence score.
type ConfidenceScorer interface {
	Score(in ConfidenceInput) float64
}

// ConfidenceModel is the default ConfidenceScorer.
type ConfidenceModel struct{}

// NewConfidenceModel creates a confidence model.
func NewConfidenceModel() *ConfidenceModel {
	return &ConfidenceModel{}
}

// Score is non-decreasing in message count and non-increasing in divergence and staleness.
func (m *ConfidenceModel) Score(in ConfidenceInput) float64 {
	messages := math.Max(0, float64(in.MessageCount))
	data := 1 - math.Exp(-messages/confidenceMessageScale)
	agreement := 1 - divergencePenalty*clamp(in.Divergence, 0, 1)

	stale := math.Max(0, in.StaleDays-staleGraceDays)
	recency := math.Pow(0.5, stale/staleHalfLifeDays)

	return clamp(data*agreement*recency, 0, 1)
}

// StaleDays returns the age of the newest signal relative to asOf. A zero asOf
// means the computation is anchored on the newest signal itself.
func StaleDays(signals []PerformanceSignal, asOf time.Time) float64 {
	if asOf.IsZero() || len(signals) == 0 {
		return 0
	}
	newest := signals[0].AsOf
	for _, s := range signals[1:] {
		if s.AsOf.After(newest) {
			newest = s.AsOf
		}
	}
	if newest.IsZero() || !asOf.After(newest) {
		return 0
	}
	return asOf.Sub(newest).Hours() / 24
}

// ProposeTotals moves baseline totals toward the fused signal, damped by confidence.
// High opportunity over saturation grows volume; the reverse shrinks it.
func ProposeTotals(baseline CategoryTotals, fused FusedSignal, confidence float64) CategoryTotals {
	factor := 1 + clamp(confidence, 0, 1)*((fused.Opportunity-fused.Saturation)/100)*maxSignalSwing
	var out CategoryTotals
	for _, cat := range Categories {
		v := int(math.Round(float64(baseline.Get(cat)) * factor))
		if v < 0 {
			v = 0
		}
		out.Set(cat, v)
	}
	return out
}
