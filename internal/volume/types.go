package volume

import (
	"fmt"
	"time"
)

// DaysPerWeek is the length of every per-day sequence in a plan. Index 0 is Monday.
const DaysPerWeek = 7

// Horizon is a historical lookback window.
type Horizon string

const (
	Horizon7d  Horizon = "7d"
	Horizon14d Horizon = "14d"
	Horizon30d Horizon = "30d"
)

// Days returns the window length in days, or 0 for an unknown horizon.
func (h Horizon) Days() int {
	switch h {
	case Horizon7d:
		return 7
	case Horizon14d:
		return 14
	case Horizon30d:
		return 30
	default:
		return 0
	}
}

// Valid reports whether h is one of the known horizons.
func (h Horizon) Valid() bool {
	return h.Days() > 0
}

// PerformanceSignal is one horizon's saturation/opportunity measurement.
type PerformanceSignal struct {
	Horizon     Horizon   `json:"horizon"`
	Saturation  float64   `json:"saturation"`  // 0 to 100
	Opportunity float64   `json:"opportunity"` // 0 to 100
	SampleSize  int       `json:"sample_size"`
	AsOf        time.Time `json:"as_of"`
}

// FusedSignal is the cross-horizon combination of performance signals.
type FusedSignal struct {
	Saturation   float64 `json:"saturation"`
	Opportunity  float64 `json:"opportunity"`
	Divergence   float64 `json:"divergence"` // 0.0 to 1.0
	HorizonsUsed int     `json:"horizons_used"`
}

// Tier is the discrete performance tier of a creator.
type Tier string

const (
	TierNew  Tier = "new"
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
	TierTop  Tier = "top"
)

// Level returns the baseline volume level (1-5) associated with the tier.
func (t Tier) Level() int {
	switch t {
	case TierLow:
		return 2
	case TierMid:
		return 3
	case TierHigh:
		return 4
	case TierTop:
		return 5
	default:
		return 1
	}
}

// Category is a send category.
type Category string

const (
	CategoryRevenue    Category = "revenue"
	CategoryEngagement Category = "engagement"
	CategoryRetention  Category = "retention"
)

// Categories lists every category in pipeline processing order.
var Categories = []Category{CategoryRevenue, CategoryEngagement, CategoryRetention}

// Rank is the performance label of a content type within a category.
type Rank string

const (
	RankTop   Rank = "top"
	RankMid   Rank = "mid"
	RankLow   Rank = "low"
	RankAvoid Rank = "avoid"
)

// Weight returns the allocation weight of the rank; avoid and unknown ranks weigh 0.
func (r Rank) Weight() float64 {
	switch r {
	case RankTop:
		return 3
	case RankMid:
		return 2
	case RankLow:
		return 1
	default:
		return 0
	}
}

// ContentRanking is a content type's rank within one category.
type ContentRanking struct {
	ContentType string   `json:"content_type"`
	Category    Category `json:"category"`
	Rank        Rank     `json:"rank"`
}

// PageType controls retention eligibility.
type PageType string

const (
	PageTypePaid PageType = "paid"
	PageTypeFree PageType = "free"
)

// AllowsRetention reports whether retention sends may be scheduled.
func (p PageType) AllowsRetention() bool {
	return p == PageTypePaid
}

// ContentCategory selects the bump multiplier.
type ContentCategory string

const (
	ContentCategoryLifestyle ContentCategory = "lifestyle"
	ContentCategorySoftcore  ContentCategory = "softcore"
	ContentCategoryAmateur   ContentCategory = "amateur"
	ContentCategoryExplicit  ContentCategory = "explicit"
)

// BumpMultiplier returns the unclamped bump multiplier for the content category.
func (c ContentCategory) BumpMultiplier() float64 {
	switch c {
	case ContentCategorySoftcore:
		return 1.5
	case ContentCategoryAmateur:
		return 2.0
	case ContentCategoryExplicit:
		return 2.67
	default:
		return 1.0
	}
}

// AggregateHistory summarises a creator's history beyond the horizon signals.
type AggregateHistory struct {
	MessageCount int `json:"message_count"`
	// DayOfWeekRates are historical engagement rates, Monday first.
	DayOfWeekRates [DaysPerWeek]float64 `json:"day_of_week_rates"`
}

// CreatorSignals is everything known about one creator at computation time.
type CreatorSignals struct {
	CreatorID       string              `json:"creator_id"`
	Signals         []PerformanceSignal `json:"signals"`
	History         AggregateHistory    `json:"history"`
	PageType        PageType            `json:"page_type"`
	ContentCategory ContentCategory     `json:"content_category"`
	Rankings        []ContentRanking    `json:"rankings"`
	// AsOf is the reference time for staleness; zero means "as of the newest signal".
	AsOf time.Time `json:"as_of"`
}

// CaptionInventory maps content type to available fresh captions.
type CaptionInventory map[string]int

// CategoryTotals holds weekly send totals per category.
type CategoryTotals struct {
	Revenue    int `json:"revenue"`
	Engagement int `json:"engagement"`
	Retention  int `json:"retention"`
}

// Get returns the total for a category.
func (c CategoryTotals) Get(cat Category) int {
	switch cat {
	case CategoryRevenue:
		return c.Revenue
	case CategoryEngagement:
		return c.Engagement
	case CategoryRetention:
		return c.Retention
	default:
		return 0
	}
}

// Set replaces the total for a category.
func (c *CategoryTotals) Set(cat Category, v int) {
	switch cat {
	case CategoryRevenue:
		c.Revenue = v
	case CategoryEngagement:
		c.Engagement = v
	case CategoryRetention:
		c.Retention = v
	}
}

// Sum returns the total across all categories.
func (c CategoryTotals) Sum() int {
	return c.Revenue + c.Engagement + c.Retention
}

// PreviousPlan is the reference point for elasticity.
type PreviousPlan struct {
	PredictionID string         `json:"prediction_id"`
	BaseTotals   CategoryTotals `json:"base_totals"`
}

// Adjustment records one mutation applied by a pipeline stage.
type Adjustment struct {
	Stage  string  `json:"stage"`
	Reason string  `json:"reason"`
	Delta  float64 `json:"delta"`
	Detail string  `json:"detail,omitempty"`
}

// Condition is a non-fatal condition raised during a computation.
type Condition string

const (
	ConditionInsufficientData Condition = "insufficient_data"
	ConditionCaptionShortfall Condition = "caption_shortfall"
	ConditionElasticityClamp  Condition = "elasticity_clamp"
)

// ContentAllocation is the weekly count for one content type within a category.
type ContentAllocation struct {
	Category    Category `json:"category"`
	ContentType string   `json:"content_type"`
	Rank        Rank     `json:"rank"`
	Count       int      `json:"count"`
}

// DailySeries is a per-day sequence, Monday first.
type DailySeries [DaysPerWeek]int

// Sum returns the total over the week.
func (s DailySeries) Sum() int {
	total := 0
	for _, v := range s {
		total += v
	}
	return total
}

// VolumePlan is the engine's output.
type VolumePlan struct {
	CreatorID     string `json:"creator_id"`
	Tier          Tier   `json:"tier"`
	BaselineLevel int    `json:"baseline_level"`

	WeeklyTotals CategoryTotals `json:"weekly_totals"`
	BaseTotals   CategoryTotals `json:"base_totals"`

	RevenuePerDay    DailySeries `json:"revenue_per_day"`
	EngagementPerDay DailySeries `json:"engagement_per_day"`
	RetentionPerDay  DailySeries `json:"retention_per_day"`
	FollowupPerDay   DailySeries `json:"followup_per_day"`
	DailyTotals      DailySeries `json:"daily_totals"`

	VolumeLevel int `json:"volume_level"`
	PpvPerDay   int `json:"ppv_per_day"`
	BumpPerDay  int `json:"bump_per_day"`

	ContentAllocations map[string]int      `json:"content_allocations"`
	Allocations        []ContentAllocation `json:"allocations"`
	DowMultipliersUsed [DaysPerWeek]float64 `json:"dow_multipliers_used"`

	ElasticityCapped bool        `json:"elasticity_capped"`
	CaptionWarnings  []string    `json:"caption_warnings"`
	Conditions       []Condition `json:"conditions"`

	ConfidenceScore    float64 `json:"confidence_score"`
	FusedSaturation    float64 `json:"fused_saturation"`
	FusedOpportunity   float64 `json:"fused_opportunity"`
	Divergence         float64 `json:"divergence"`
	DivergenceDetected bool    `json:"divergence_detected"`
	BumpMultiplier     float64 `json:"bump_multiplier"`

	PredictionID       string       `json:"prediction_id"`
	InputFingerprint   string       `json:"input_fingerprint"`
	MessageCount       int          `json:"message_count"`
	AdjustmentsApplied []Adjustment `json:"adjustments_applied"`
	ComputedAt         time.Time    `json:"computed_at"`
}

// HasCondition reports whether the plan raised the given condition.
func (p *VolumePlan) HasCondition(c Condition) bool {
	for _, existing := range p.Conditions {
		if existing == c {
			return true
		}
	}
	return false
}

// AsPrevious returns the elasticity reference for the next computation.
func (p *VolumePlan) AsPrevious() *PreviousPlan {
	return &PreviousPlan{PredictionID: p.PredictionID, BaseTotals: p.BaseTotals}
}

// String implements fmt.Stringer for log lines.
func (p *VolumePlan) String() string {
	return fmt.Sprintf("plan[%s tier=%s revenue=%d engagement=%d retention=%d confidence=%.2f]",
		p.CreatorID, p.Tier, p.WeeklyTotals.Revenue, p.WeeklyTotals.Engagement, p.WeeklyTotals.Retention, p.ConfidenceScore)
}
