package volume

import (
	"fmt"
	"math"

	"github.com/irfndi/volume-engine/internal/utils"
)

// Config holds the recognised engine options.
type Config struct {
	ElasticityBound     float64 `json:"elasticity_bound"`
	FollowupRatio       float64 `json:"followup_ratio"`
	FollowupDailyCap    int     `json:"followup_daily_cap"`
	MinDataMessages     int     `json:"min_data_messages"`
	BumpMultiplierMin   float64 `json:"bump_multiplier_min"`
	BumpMultiplierMax   float64 `json:"bump_multiplier_max"`
	DivergenceThreshold float64 `json:"divergence_threshold"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ElasticityBound:     0.30,
		FollowupRatio:       0.80,
		FollowupDailyCap:    5,
		MinDataMessages:     20,
		BumpMultiplierMin:   1.0,
		BumpMultiplierMax:   2.67,
		DivergenceThreshold: 0.25,
	}
}

// Validate rejects out-of-range options. The returned error wraps both
// ErrInvalidConfig and a *utils.ValidationError naming the field.
func (c Config) Validate() error {
	var err error
	switch {
	case !unitInterval(c.ElasticityBound):
		err = utils.NewFieldError("elasticity_bound", "must be within [0,1], got %v", c.ElasticityBound)
	case !unitInterval(c.FollowupRatio):
		err = utils.NewFieldError("followup_ratio", "must be within [0,1], got %v", c.FollowupRatio)
	case !unitInterval(c.DivergenceThreshold):
		err = utils.NewFieldError("divergence_threshold", "must be within [0,1], got %v", c.DivergenceThreshold)
	case c.FollowupDailyCap < 0:
		err = utils.NewFieldError("followup_daily_cap", "must not be negative, got %d", c.FollowupDailyCap)
	case c.MinDataMessages < 0:
		err = utils.NewFieldError("min_data_messages", "must not be negative, got %d", c.MinDataMessages)
	case math.IsNaN(c.BumpMultiplierMin) || c.BumpMultiplierMin < 1:
		err = utils.NewFieldError("bump_multiplier_min", "must be >= 1, got %v", c.BumpMultiplierMin)
	case math.IsNaN(c.BumpMultiplierMax) || c.BumpMultiplierMax < c.BumpMultiplierMin:
		err = utils.NewFieldError("bump_multiplier_max", "must be >= bump_multiplier_min (%v), got %v", c.BumpMultiplierMin, c.BumpMultiplierMax)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func unitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
