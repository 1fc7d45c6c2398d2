package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/irfndi/volume-engine/internal/database"
	"github.com/irfndi/volume-engine/internal/logging"
	"github.com/irfndi/volume-engine/internal/metrics"
	"github.com/irfndi/volume-engine/internal/models"
	"github.com/irfndi/volume-engine/internal/telemetry"
	"github.com/irfndi/volume-engine/internal/utils"
	"github.com/irfndi/volume-engine/internal/volume"
)

const defaultFetchTimeout = 5 * time.Second

// SignalStore loads engine inputs for a creator.
type SignalStore interface {
	GetCreatorSignals(ctx context.Context, creatorID string, asOf time.Time) (volume.CreatorSignals, error)
}

// PlanStore persists plans and outcomes.
type PlanStore interface {
	SavePlan(ctx context.Context, plan *volume.VolumePlan) error
	LatestPlan(ctx context.Context, creatorID string) (*volume.VolumePlan, error)
	GetPlan(ctx context.Context, predictionID string) (*volume.VolumePlan, error)
	PreviousPlan(ctx context.Context, creatorID string, asOf time.Time) (*volume.PreviousPlan, error)
	CaptionInventory(ctx context.Context, creatorID string) (volume.CaptionInventory, error)
	RecordOutcome(ctx context.Context, outcome models.PredictionOutcome) (*models.PredictionOutcome, error)
}

// PlanCache is the read-through cache in front of PlanStore.
type PlanCache interface {
	GetPrevious(ctx context.Context, creatorID string, asOf time.Time) (*volume.PreviousPlan, bool)
	SetPrevious(ctx context.Context, creatorID string, prev *volume.PreviousPlan, computedAt time.Time) error
	GetInventory(ctx context.Context, creatorID string) (volume.CaptionInventory, bool)
	SetInventory(ctx context.Context, creatorID string, inventory volume.CaptionInventory) error
}

// Notifier is told about plans that were cut by the caption guard.
type Notifier interface {
	NotifyShortfall(ctx context.Context, plan *volume.VolumePlan) error
}

// VolumePlanner fetches inputs, runs the engine and stores the result.
type VolumePlanner struct {
	engine    *volume.Engine
	signals   SignalStore
	plans     PlanStore
	cache     PlanCache
	notifier  Notifier
	optimizer *ResourceOptimizer
	metrics   *metrics.MetricsCollector
	logger    logging.Logger
	tracer    *telemetry.BusinessTracer

	fetchTimeout time.Duration
	maxWorkers   int
	now          func() time.Time
}

// PlannerOption customises a VolumePlanner.
type PlannerOption func(*VolumePlanner)

// WithPlanCache puts a cache in front of previous plan and inventory reads.
func WithPlanCache(c PlanCache) PlannerOption {
	return func(p *VolumePlanner) { p.cache = c }
}

// WithNotifier sets the caption shortfall notifier.
func WithNotifier(n Notifier) PlannerOption {
	return func(p *VolumePlanner) { p.notifier = n }
}

// WithResourceOptimizer sizes batch workers from host resources.
func WithResourceOptimizer(ro *ResourceOptimizer) PlannerOption {
	return func(p *VolumePlanner) { p.optimizer = ro }
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc *metrics.MetricsCollector) PlannerOption {
	return func(p *VolumePlanner) { p.metrics = mc }
}

// WithPlannerLogger sets the structured logger.
func WithPlannerLogger(l logging.Logger) PlannerOption {
	return func(p *VolumePlanner) { p.logger = l }
}

// WithBusinessTracer sets the tracer used for plan spans.
func WithBusinessTracer(bt *telemetry.BusinessTracer) PlannerOption {
	return func(p *VolumePlanner) { p.tracer = bt }
}

// WithFetchTimeout bounds the input fetch for one creator.
func WithFetchTimeout(d time.Duration) PlannerOption {
	return func(p *VolumePlanner) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

// WithMaxWorkers caps batch concurrency when no optimizer is set.
func WithMaxWorkers(n int) PlannerOption {
	return func(p *VolumePlanner) {
		if n > 0 {
			p.maxWorkers = n
		}
	}
}

// WithClock replaces time.Now for the default as-of time.
func WithClock(now func() time.Time) PlannerOption {
	return func(p *VolumePlanner) { p.now = now }
}

// NewVolumePlanner creates a planner. engine, signals and plans are required.
func NewVolumePlanner(engine *volume.Engine, signals SignalStore, plans PlanStore, opts ...PlannerOption) *VolumePlanner {
	p := &VolumePlanner{
		engine:       engine,
		signals:      signals,
		plans:        plans,
		logger:       logging.NewStandardLogger("info", ""),
		tracer:       telemetry.NewBusinessTracer(),
		fetchTimeout: defaultFetchTimeout,
		maxWorkers:   4,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Engine returns the engine used by the planner.
func (p *VolumePlanner) Engine() *volume.Engine {
	return p.engine
}

// Plan computes, stores and returns a plan for one creator. A zero asOf means now.
func (p *VolumePlanner) Plan(ctx context.Context, creatorID string, asOf time.Time) (*volume.VolumePlan, error) {
	return p.plan(ctx, creatorID, asOf, nil)
}

// plan is Plan with an optional limit on concurrent SavePlan calls.
func (p *VolumePlanner) plan(ctx context.Context, creatorID string, asOf time.Time, writes *semaphore.Weighted) (*volume.VolumePlan, error) {
	if creatorID == "" {
		return nil, utils.NewFieldError("creator_id", "is required")
	}
	if asOf.IsZero() {
		asOf = p.now().UTC()
	}

	start := time.Now()
	ctx, span := p.tracer.TracePlanComputation(ctx, creatorID)
	defer span.End()

	in, err := p.fetchInput(ctx, creatorID, asOf)
	if err != nil {
		return nil, p.fail(span, "fetch", creatorID, err)
	}

	plan, err := p.engine.Compute(in)
	if err != nil {
		return nil, p.fail(span, "compute", creatorID, fmt.Errorf("creator %s: %w", creatorID, err))
	}

	if writes != nil {
		if err := writes.Acquire(ctx, 1); err != nil {
			return nil, p.fail(span, "persist", creatorID, err)
		}
	}
	err = p.plans.SavePlan(ctx, plan)
	if writes != nil {
		writes.Release(1)
	}
	if err != nil {
		return nil, p.fail(span, "persist", creatorID, err)
	}

	if p.cache != nil {
		if err := p.cache.SetPrevious(ctx, creatorID, plan.AsPrevious(), plan.ComputedAt); err != nil {
			p.logger.WithCreator(creatorID).Warn("Failed to refresh plan cache", "error", err)
		}
	}
	p.notify(ctx, plan)

	duration := time.Since(start)
	p.tracer.RecordPlanResult(span, planSummary(plan))
	p.logger.LogPlanComputed(logging.PlanEvent{
		CreatorID:    plan.CreatorID,
		PredictionID: plan.PredictionID,
		Tier:         string(plan.Tier),
		Revenue:      plan.WeeklyTotals.Revenue,
		Engagement:   plan.WeeklyTotals.Engagement,
		Retention:    plan.WeeklyTotals.Retention,
		Confidence:   plan.ConfidenceScore,
		Capped:       plan.ElasticityCapped,
		Warnings:     len(plan.CaptionWarnings),
		DurationMs:   duration.Milliseconds(),
	})
	if p.metrics != nil {
		p.metrics.RecordPlanMetrics(plan, duration)
	}
	return plan, nil
}

func (p *VolumePlanner) fail(span trace.Span, stage, creatorID string, err error) error {
	telemetry.RecordError(span, err)
	span.SetAttributes(attribute.String("plan.failed_stage", stage))
	if p.metrics != nil {
		p.metrics.RecordPlanFailure(stage)
	}
	p.logger.WithCreator(creatorID).Error("Volume plan failed", "stage", stage, "error", err)
	return err
}

// fetchInput loads signals, the elasticity reference and caption inventory
// concurrently. Previous plan and inventory go through the cache when set.
func (p *VolumePlanner) fetchInput(ctx context.Context, creatorID string, asOf time.Time) (volume.PlanInput, error) {
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	var in volume.PlanInput
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		signals, err := p.signals.GetCreatorSignals(gctx, creatorID, asOf)
		if err != nil {
			return err
		}
		if signals.AsOf.IsZero() {
			signals.AsOf = asOf
		}
		in.Signals = signals
		return nil
	})

	g.Go(func() error {
		prev, err := p.previousPlan(gctx, creatorID, asOf)
		if err != nil {
			return err
		}
		in.Previous = prev
		return nil
	})

	g.Go(func() error {
		inv, err := p.captionInventory(gctx, creatorID)
		if err != nil {
			return err
		}
		in.Inventory = inv
		return nil
	})

	if err := g.Wait(); err != nil {
		return volume.PlanInput{}, err
	}
	return in, nil
}

func (p *VolumePlanner) previousPlan(ctx context.Context, creatorID string, asOf time.Time) (*volume.PreviousPlan, error) {
	if p.cache != nil {
		if prev, ok := p.cache.GetPrevious(ctx, creatorID, asOf); ok {
			return prev, nil
		}
	}
	prev, err := p.plans.PreviousPlan(ctx, creatorID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous plan: %w", err)
	}
	return prev, nil
}

func (p *VolumePlanner) captionInventory(ctx context.Context, creatorID string) (volume.CaptionInventory, error) {
	if p.cache != nil {
		if inv, ok := p.cache.GetInventory(ctx, creatorID); ok {
			return inv, nil
		}
	}
	inv, err := p.plans.CaptionInventory(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load caption inventory: %w", err)
	}
	if p.cache != nil {
		if err := p.cache.SetInventory(ctx, creatorID, inv); err != nil {
			p.logger.WithCreator(creatorID).Warn("Failed to cache caption inventory", "error", err)
		}
	}
	return inv, nil
}

func (p *VolumePlanner) notify(ctx context.Context, plan *volume.VolumePlan) {
	if p.notifier == nil || !plan.HasCondition(volume.ConditionCaptionShortfall) {
		return
	}
	err := p.notifier.NotifyShortfall(ctx, plan)
	if err != nil {
		p.logger.WithCreator(plan.CreatorID).Warn("Failed to send caption shortfall notification", "error", err)
	}
	if p.metrics != nil {
		p.metrics.RecordNotificationMetrics(string(volume.ConditionCaptionShortfall), err == nil)
	}
}

// batchError is the client-facing text for one failed creator. Input,
// validation and not-found errors keep their message; the rest are opaque.
func batchError(err error) string {
	switch {
	case volume.IsInputError(err), utils.IsValidationError(err), database.IsNotFound(err):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "upstream timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal error"
	}
}

// PlanBatch computes plans for many creators. Duplicate ids are planned once
// and a failure for one creator does not stop the others.
func (p *VolumePlanner) PlanBatch(ctx context.Context, creatorIDs []string, asOf time.Time) (*models.BatchPlanResponse, error) {
	ids := dedupe(creatorIDs)
	if len(ids) == 0 {
		return nil, utils.NewFieldError("creator_ids", "must contain at least one creator")
	}
	if asOf.IsZero() {
		asOf = p.now().UTC()
	}

	start := time.Now()
	ctx, span := p.tracer.TraceBatch(ctx, len(ids))
	defer span.End()

	workers := p.workerLimit(len(ids))
	results := make([]models.BatchPlanResult, len(ids))
	var writes *semaphore.Weighted
	if p.optimizer != nil {
		writes = semaphore.NewWeighted(int64(p.optimizer.WriteLimit(workers)))
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = models.BatchPlanResult{CreatorID: id}
			if err := ctx.Err(); err != nil {
				results[i].Error = batchError(err)
				return nil
			}
			plan, err := p.plan(ctx, id, asOf, writes)
			if err != nil {
				results[i].Error = batchError(err)
				return nil
			}
			results[i].Plan = plan
			return nil
		})
	}
	_ = g.Wait()

	resp := &models.BatchPlanResponse{Results: results, Timestamp: p.now().UTC()}
	for _, r := range results {
		if r.Error != "" {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}

	duration := time.Since(start)
	p.tracer.RecordBatchResult(span, telemetry.BatchSpanSummary{
		Requested: len(ids),
		Succeeded: resp.Succeeded,
		Failed:    resp.Failed,
		Workers:   workers,
	})
	if p.optimizer != nil {
		p.optimizer.RecordBatch(len(ids), resp.Failed, duration)
		p.optimizer.OptimizeIfNeeded()
	}
	if p.metrics != nil {
		p.metrics.RecordBatchMetrics(len(ids), resp.Failed, workers, duration)
	}
	p.logger.LogBusinessEvent("plan_batch_completed", map[string]interface{}{
		"requested":   len(ids),
		"succeeded":   resp.Succeeded,
		"failed":      resp.Failed,
		"workers":     workers,
		"duration_ms": duration.Milliseconds(),
	})

	if err := ctx.Err(); err != nil && resp.Succeeded == 0 {
		return resp, err
	}
	return resp, nil
}

func (p *VolumePlanner) workerLimit(n int) int {
	if p.optimizer != nil {
		return p.optimizer.WorkerLimit(n)
	}
	if n < p.maxWorkers {
		return n
	}
	return p.maxWorkers
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// LatestPlan returns the most recently stored plan for a creator.
func (p *VolumePlanner) LatestPlan(ctx context.Context, creatorID string) (*volume.VolumePlan, error) {
	if creatorID == "" {
		return nil, utils.NewFieldError("creator_id", "is required")
	}
	return p.plans.LatestPlan(ctx, creatorID)
}

// RecordOutcome stores what actually happened for a prediction and scores it
// against the plan.
func (p *VolumePlanner) RecordOutcome(ctx context.Context, predictionID string, req models.OutcomeRequest) (*models.OutcomeResponse, error) {
	if predictionID == "" {
		return nil, utils.NewFieldError("prediction_id", "is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := p.tracer.TraceOutcome(ctx, predictionID)
	defer span.End()

	plan, err := p.plans.GetPlan(ctx, predictionID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	stored, err := p.plans.RecordOutcome(ctx, req.Outcome(predictionID))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	accuracy := models.SendAccuracy(plan.WeeklyTotals, stored.Sends())
	acc, _ := accuracy.Float64()
	span.SetAttributes(
		attribute.String("creator.id", stored.CreatorID),
		attribute.Float64("outcome.send_accuracy", acc),
	)
	if p.metrics != nil {
		p.metrics.RecordOutcomeMetrics(plan.Tier, acc)
	}
	p.logger.WithPrediction(predictionID).Info("Prediction outcome recorded",
		"creator_id", stored.CreatorID,
		"send_accuracy", accuracy.String())

	return &models.OutcomeResponse{
		Outcome:  *stored,
		Planned:  plan.WeeklyTotals,
		Accuracy: accuracy,
	}, nil
}

// Preview runs the engine on caller-supplied input. Nothing is read or stored.
// A config override builds a one-off engine.
func (p *VolumePlanner) Preview(ctx context.Context, req models.PreviewRequest) (*volume.VolumePlan, error) {
	engine := p.engine
	if req.Config != nil {
		e, err := volume.NewEngine(*req.Config)
		if err != nil {
			return nil, err
		}
		engine = e
	}

	_, span := p.tracer.TracePlanComputation(ctx, req.Signals.CreatorID)
	defer span.End()
	span.SetAttributes(attribute.Bool("plan.preview", true))

	plan, err := engine.Compute(volume.PlanInput{
		Signals:   req.Signals,
		Previous:  req.Previous,
		Inventory: req.Inventory,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	p.tracer.RecordPlanResult(span, planSummary(plan))
	return plan, nil
}

func planSummary(plan *volume.VolumePlan) telemetry.PlanSpanSummary {
	conditions := make([]string, len(plan.Conditions))
	for i, c := range plan.Conditions {
		conditions[i] = string(c)
	}
	return telemetry.PlanSpanSummary{
		PredictionID: plan.PredictionID,
		Tier:         string(plan.Tier),
		Revenue:      plan.WeeklyTotals.Revenue,
		Engagement:   plan.WeeklyTotals.Engagement,
		Retention:    plan.WeeklyTotals.Retention,
		Confidence:   plan.ConfidenceScore,
		Divergence:   plan.Divergence,
		Capped:       plan.ElasticityCapped,
		Warnings:     len(plan.CaptionWarnings),
		Conditions:   conditions,
	}
}
