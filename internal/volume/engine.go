package volume

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// neutralScore is the saturation/opportunity prior used when a creator has no data.
const neutralScore = 50.0

// PlanInput is the complete input of one computation. All of it is fetched by
// the caller before the engine runs.
type PlanInput struct {
	Signals   CreatorSignals   `json:"signals"`
	Previous  *PreviousPlan    `json:"previous,omitempty"`
	Inventory CaptionInventory `json:"inventory,omitempty"`
}

// Engine runs the volume optimization pipeline. It holds no per-creator state
// and is safe for concurrent use.
type Engine struct {
	cfg    Config
	logger *logrus.Logger

	tiers      TierClassifier
	fuser      HorizonFuser
	confidence ConfidenceScorer
	days       DayDistributor
	bounder    ChangeBounder
	allocator  Allocator
	guard      CaptionGuard
	derived    DerivedCalculator
	tracker    Tracker
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracker replaces the prediction tracker.
func WithTracker(t Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithCaptionGuard replaces the caption pool guard.
func WithCaptionGuard(g CaptionGuard) Option {
	return func(e *Engine) { e.guard = g }
}

// WithConfidenceScorer replaces the confidence model.
func WithConfidenceScorer(s ConfidenceScorer) Option {
	return func(e *Engine) { e.confidence = s }
}

// NewEngine validates cfg and wires the default stages.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:        cfg,
		logger:     logrus.StandardLogger(),
		tiers:      NewBaseTierClassifier(cfg.MinDataMessages),
		fuser:      NewHorizonFusionEngine(),
		confidence: NewConfidenceModel(),
		days:       NewDowDistributor(),
		bounder:    NewElasticityBounder(cfg.ElasticityBound),
		allocator:  NewContentAllocator(),
		guard:      NewCaptionPoolGuard(),
		derived:    NewDerivedVolumeCalculator(cfg),
		tracker:    NewPredictionTracker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ComputeVolumePlan runs a single computation with a freshly built engine.
func ComputeVolumePlan(signals CreatorSignals, previous *PreviousPlan, inventory CaptionInventory, cfg Config) (*VolumePlan, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return engine.Compute(PlanInput{Signals: signals, Previous: previous, Inventory: inventory})
}

// Compute runs every stage in fixed order and returns the plan. Fatal input
// errors return no plan; everything else is recorded on the plan.
func (e *Engine) Compute(in PlanInput) (*VolumePlan, error) {
	sig := in.Signals
	if err := ValidateSignals(sig.Signals); err != nil {
		return nil, err
	}
	if len(sig.Signals) == 0 && sig.History.MessageCount > 0 {
		return nil, fmt.Errorf("%w: creator %q reports %d messages but no horizon signals",
			ErrAllHorizonsMissing, sig.CreatorID, sig.History.MessageCount)
	}

	var (
		stages     []StageRecord
		conditions = []Condition{}
	)

	// Tier classification.
	tier := e.tiers.Classify(sig.Signals, sig.History.MessageCount)
	tierStage := StageRecord{Stage: "tier"}
	if tier.NoData {
		conditions = append(conditions, ConditionInsufficientData)
		tierStage.Adjustments = append(tierStage.Adjustments, Adjustment{
			Stage:  "tier",
			Reason: "insufficient_data",
			Detail: "no signals or messages; using the new tier baseline",
		})
	}
	if tier.Sparse {
		tierStage.Adjustments = append(tierStage.Adjustments, Adjustment{
			Stage:  "tier",
			Reason: "below_min_messages",
			Detail: fmt.Sprintf("%d messages below minimum %d", sig.History.MessageCount, e.cfg.MinDataMessages),
		})
	}
	stages = append(stages, tierStage)

	// Horizon fusion.
	signals := sig.Signals
	if tier.NoData {
		signals = []PerformanceSignal{{Horizon: Horizon7d, Saturation: neutralScore, Opportunity: neutralScore, AsOf: sig.AsOf}}
	}
	fused, err := e.fuser.Fuse(signals)
	if err != nil {
		return nil, err
	}

	// Confidence and the damped proposal.
	confidence := e.confidence.Score(ConfidenceInput{
		Divergence:   fused.Divergence,
		MessageCount: sig.History.MessageCount,
		StaleDays:    StaleDays(sig.Signals, sig.AsOf),
	})
	baseline := BaselineTotals(tier.BaselineLevel, sig.PageType)
	proposed := ProposeTotals(baseline, fused, confidence)
	confidenceStage := StageRecord{Stage: "confidence"}
	if proposed != baseline {
		confidenceStage.Adjustments = append(confidenceStage.Adjustments, Adjustment{
			Stage:  "confidence",
			Reason: "signal_adjustment",
			Delta:  float64(proposed.Sum() - baseline.Sum()),
			Detail: fmt.Sprintf("baseline %d/%d/%d moved to %d/%d/%d at confidence %.2f",
				baseline.Revenue, baseline.Engagement, baseline.Retention,
				proposed.Revenue, proposed.Engagement, proposed.Retention, confidence),
		})
	}
	stages = append(stages, confidenceStage)

	// Day-of-week multipliers; spreading happens once totals are final.
	multipliers := e.days.Multipliers(sig.History.DayOfWeekRates)

	// Elasticity.
	bounded := e.bounder.Bound(proposed, in.Previous, sig.PageType)
	if bounded.Capped {
		conditions = append(conditions, ConditionElasticityClamp)
	}
	stages = append(stages, StageRecord{Stage: "elasticity", Adjustments: bounded.Adjustments})

	// Content allocation.
	allocated := e.allocator.Allocate(bounded.Totals, sig.Rankings, confidence)
	stages = append(stages, StageRecord{Stage: "allocation", Adjustments: allocated.Adjustments})

	// Caption inventory.
	guarded := e.guard.Guard(allocated.Allocations, bounded.Totals, in.Inventory)
	if guarded.Shortfall {
		conditions = append(conditions, ConditionCaptionShortfall)
	}
	stages = append(stages, StageRecord{Stage: "caption_guard", Adjustments: guarded.Adjustments})

	revenue := e.days.Distribute(guarded.Totals.Revenue, multipliers)
	engagement := e.days.Distribute(guarded.Totals.Engagement, multipliers)
	var retention DailySeries
	if sig.PageType.AllowsRetention() {
		retention = e.days.Distribute(guarded.Totals.Retention, multipliers)
	}

	// Followups and bump scaling.
	derived := e.derived.Derive(revenue, engagement, sig.ContentCategory)
	stages = append(stages, StageRecord{Stage: "derived", Adjustments: derived.Adjustments})

	tracking := e.tracker.Track(TrackInput{
		Input:        in,
		MessageCount: sig.History.MessageCount,
		Stages:       stages,
	})

	plan := &VolumePlan{
		CreatorID:     sig.CreatorID,
		Tier:          tier.Tier,
		BaselineLevel: tier.BaselineLevel,
		BaseTotals:    bounded.Totals,

		RevenuePerDay:    revenue,
		EngagementPerDay: derived.EngagementPerDay,
		RetentionPerDay:  retention,
		FollowupPerDay:   derived.FollowupPerDay,

		Allocations:        guarded.Allocations,
		ContentAllocations: summarizeAllocations(guarded.Allocations),
		DowMultipliersUsed: multipliers,

		ElasticityCapped: bounded.Capped,
		CaptionWarnings:  append([]string{}, guarded.Warnings...),
		Conditions:       conditions,

		ConfidenceScore:    confidence,
		FusedSaturation:    fused.Saturation,
		FusedOpportunity:   fused.Opportunity,
		Divergence:         fused.Divergence,
		DivergenceDetected: fused.HorizonsUsed > 1 && fused.Divergence >= e.cfg.DivergenceThreshold,
		BumpMultiplier:     derived.BumpMultiplier,

		PredictionID:       tracking.PredictionID,
		InputFingerprint:   tracking.InputFingerprint,
		MessageCount:       tracking.MessageCount,
		AdjustmentsApplied: tracking.Adjustments,
		ComputedAt:         computedAt(sig),
	}
	if plan.Allocations == nil {
		plan.Allocations = []ContentAllocation{}
	}
	plan.WeeklyTotals = CategoryTotals{
		Revenue:    plan.RevenuePerDay.Sum(),
		Engagement: plan.EngagementPerDay.Sum(),
		Retention:  plan.RetentionPerDay.Sum(),
	}
	for d := 0; d < DaysPerWeek; d++ {
		plan.DailyTotals[d] = plan.RevenuePerDay[d] + plan.EngagementPerDay[d] + plan.RetentionPerDay[d]
	}
	plan.PpvPerDay = dailyAverage(plan.WeeklyTotals.Revenue)
	plan.BumpPerDay = dailyAverage(plan.WeeklyTotals.Engagement)
	plan.VolumeLevel = levelForRevenue(plan.PpvPerDay)

	e.logger.WithFields(logrus.Fields{
		"creator_id":    plan.CreatorID,
		"prediction_id": plan.PredictionID,
		"tier":          plan.Tier,
		"confidence":    plan.ConfidenceScore,
		"capped":        plan.ElasticityCapped,
		"warnings":      len(plan.CaptionWarnings),
	}).Debug("Volume plan computed")

	return plan, nil
}

func summarizeAllocations(allocations []ContentAllocation) map[string]int {
	out := make(map[string]int)
	for _, a := range allocations {
		if a.Count > 0 {
			out[a.ContentType] += a.Count
		}
	}
	return out
}

func dailyAverage(weekly int) int {
	return int(decimal.NewFromInt(int64(weekly)).Div(decimal.NewFromInt(DaysPerWeek)).Round(0).IntPart())
}

func computedAt(sig CreatorSignals) time.Time {
	if !sig.AsOf.IsZero() {
		return sig.AsOf
	}
	var newest time.Time
	for _, s := range sig.Signals {
		if s.AsOf.After(newest) {
			newest = s.AsOf
		}
	}
	return newest
}
