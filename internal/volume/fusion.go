package volume

import (
	"fmt"
	"math"
	"sort"
)

// minSamplesPerDay is the sample density at which a horizon counts as fully sampled.
const minSamplesPerDay = 1.0

// horizonLengthWeight favours longer horizons when they are well sampled.
var horizonLengthWeight = map[Horizon]float64{
	Horizon7d:  1.0,
	Horizon14d: 1.1,
	Horizon30d: 1.2,
}

// HorizonFuser combines per-horizon signals.
type HorizonFuser interface {
	Fuse(signals []PerformanceSignal) (FusedSignal, error)
}

// HorizonFusionEngine is the default HorizonFuser.
type HorizonFusionEngine struct{}

// NewHorizonFusionEngine creates a fusion engine.
func NewHorizonFusionEngine() *HorizonFusionEngine {
	return &HorizonFusionEngine{}
}

// Fuse computes sample-weighted saturation and opportunity and the
// normalised disagreement between horizons.
func (f *HorizonFusionEngine) Fuse(signals []PerformanceSignal) (FusedSignal, error) {
	if err := ValidateSignals(signals); err != nil {
		return FusedSignal{}, err
	}
	deduped := dedupeHorizons(signals)
	if len(deduped) == 0 {
		return FusedSignal{}, ErrAllHorizonsMissing
	}

	weights := make([]float64, len(deduped))
	total := 0.0
	for i, s := range deduped {
		weights[i] = horizonLengthWeight[s.Horizon] * sufficiency(s)
		total += weights[i]
	}
	if total == 0 {
		for i, s := range deduped {
			weights[i] = horizonLengthWeight[s.Horizon]
			total += weights[i]
		}
	}

	var sat, opp float64
	for i, s := range deduped {
		sat += weights[i] * s.Saturation
		opp += weights[i] * s.Opportunity
	}
	sat /= total
	opp /= total

	return FusedSignal{
		Saturation:   sat,
		Opportunity:  opp,
		Divergence:   divergence(deduped, sat),
		HorizonsUsed: len(deduped),
	}, nil
}

// ValidateSignals rejects unknown horizons and out-of-range values.
func ValidateSignals(signals []PerformanceSignal) error {
	for i, s := range signals {
		switch {
		case !s.Horizon.Valid():
			return fmt.Errorf("%w: signal %d has unknown horizon %q", ErrInvalidSignal, i, s.Horizon)
		case math.IsNaN(s.Saturation) || s.Saturation < 0 || s.Saturation > 100:
			return fmt.Errorf("%w: %s saturation %v outside [0,100]", ErrInvalidSignal, s.Horizon, s.Saturation)
		case math.IsNaN(s.Opportunity) || s.Opportunity < 0 || s.Opportunity > 100:
			return fmt.Errorf("%w: %s opportunity %v outside [0,100]", ErrInvalidSignal, s.Horizon, s.Opportunity)
		case s.SampleSize < 0:
			return fmt.Errorf("%w: %s sample size %d is negative", ErrInvalidSignal, s.Horizon, s.SampleSize)
		}
	}
	return nil
}

func sufficiency(s PerformanceSignal) float64 {
	expected := float64(s.Horizon.Days()) * minSamplesPerDay
	return math.Min(1, float64(s.SampleSize)/expected)
}

// dedupeHorizons keeps the newest signal per horizon, ordered shortest first.
func dedupeHorizons(signals []PerformanceSignal) []PerformanceSignal {
	latest := make(map[Horizon]PerformanceSignal, len(signals))
	for _, s := range signals {
		if cur, ok := latest[s.Horizon]; !ok || s.AsOf.After(cur.AsOf) {
			latest[s.Horizon] = s
		}
	}
	out := make([]PerformanceSignal, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Horizon.Days() < out[j].Horizon.Days()
	})
	return out
}

func divergence(signals []PerformanceSignal, fusedSaturation float64) float64 {
	if len(signals) < 2 {
		return 0
	}
	mean := 0.0
	for _, s := range signals {
		mean += s.Saturation
	}
	mean /= float64(len(signals))

	variance := 0.0
	for _, s := range signals {
		d := s.Saturation - mean
		variance += d * d
	}
	variance /= float64(len(signals))

	return clamp(math.Sqrt(variance)/math.Max(fusedSaturation, 1), 0, 1)
}
