package volume

import (
	"fmt"
	"math"
)

// DerivedResult carries the secondary send counts.
type DerivedResult struct {
	FollowupPerDay   DailySeries
	EngagementPerDay DailySeries
	BumpMultiplier   float64
	Adjustments      []Adjustment
}

// DerivedCalculator computes followups and bump scaling from the primary allocation.
type DerivedCalculator interface {
	Derive(revenuePerDay, engagementPerDay DailySeries, category ContentCategory) DerivedResult
}

// DerivedVolumeCalculator is the default DerivedCalculator.
type DerivedVolumeCalculator struct {
	FollowupRatio     float64
	FollowupDailyCap  int
	BumpMultiplierMin float64
	BumpMultiplierMax float64
}

// NewDerivedVolumeCalculator creates a calculator from engine config.
func NewDerivedVolumeCalculator(cfg Config) *DerivedVolumeCalculator {
	return &DerivedVolumeCalculator{
		FollowupRatio:     cfg.FollowupRatio,
		FollowupDailyCap:  cfg.FollowupDailyCap,
		BumpMultiplierMin: cfg.BumpMultiplierMin,
		BumpMultiplierMax: cfg.BumpMultiplierMax,
	}
}

// Derive never produces more followups than same-day PPV unlocks.
func (c *DerivedVolumeCalculator) Derive(revenuePerDay, engagementPerDay DailySeries, category ContentCategory) DerivedResult {
	result := DerivedResult{
		BumpMultiplier: clamp(category.BumpMultiplier(), c.BumpMultiplierMin, c.BumpMultiplierMax),
	}

	for d, ppv := range revenuePerDay {
		f := int(math.Round(c.FollowupRatio * float64(ppv)))
		f = min(f, c.FollowupDailyCap, ppv)
		if f < 0 {
			f = 0
		}
		result.FollowupPerDay[d] = f
	}

	for d, n := range engagementPerDay {
		result.EngagementPerDay[d] = int(math.Round(float64(n) * result.BumpMultiplier))
	}

	before, after := engagementPerDay.Sum(), result.EngagementPerDay.Sum()
	if after != before {
		result.Adjustments = append(result.Adjustments, Adjustment{
			Stage:  "derived",
			Reason: "bump_multiplier",
			Delta:  float64(after - before),
			Detail: fmt.Sprintf("engagement scaled by %.2f for %s content", result.BumpMultiplier, category),
		})
	}
	return result
}
