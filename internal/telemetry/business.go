package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BusinessTracer traces volume planning operations.
type BusinessTracer struct {
	tracer trace.Tracer
}

// PlanSpanSummary is what a finished plan contributes to its span.
type PlanSpanSummary struct {
	PredictionID string
	Tier         string
	Revenue      int
	Engagement   int
	Retention    int
	Confidence   float64
	Divergence   float64
	Capped       bool
	Warnings     int
	Conditions   []string
}

// BatchSpanSummary is what a finished batch contributes to its span.
type BatchSpanSummary struct {
	Requested int
	Succeeded int
	Failed    int
	Workers   int
}

// NewBusinessTracer creates a tracer on the global provider.
func NewBusinessTracer() *BusinessTracer {
	return &BusinessTracer{tracer: GetBusinessTracer()}
}

// NewBusinessTracerWithTracer creates a tracer on an explicit trace.Tracer.
func NewBusinessTracerWithTracer(tracer trace.Tracer) *BusinessTracer {
	return &BusinessTracer{tracer: tracer}
}

// TracePlanComputation starts the span covering one creator's plan.
func (bt *BusinessTracer) TracePlanComputation(ctx context.Context, creatorID string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "volume.plan",
		trace.WithAttributes(attribute.String("creator.id", creatorID)))
}

// RecordPlanResult annotates a plan span with the plan outcome.
func (bt *BusinessTracer) RecordPlanResult(span trace.Span, summary PlanSpanSummary) {
	span.SetAttributes(
		attribute.String("plan.prediction_id", summary.PredictionID),
		attribute.String("plan.tier", summary.Tier),
		attribute.Int("plan.revenue", summary.Revenue),
		attribute.Int("plan.engagement", summary.Engagement),
		attribute.Int("plan.retention", summary.Retention),
		attribute.Float64("plan.confidence", summary.Confidence),
		attribute.Float64("plan.divergence", summary.Divergence),
		attribute.Bool("plan.elasticity_capped", summary.Capped),
		attribute.Int("plan.caption_warnings", summary.Warnings),
		attribute.StringSlice("plan.conditions", summary.Conditions),
	)
}

// TraceBatch starts the span covering a batch of creators.
func (bt *BusinessTracer) TraceBatch(ctx context.Context, size int) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "volume.plan_batch",
		trace.WithAttributes(attribute.Int("batch.size", size)))
}

// RecordBatchResult annotates a batch span.
func (bt *BusinessTracer) RecordBatchResult(span trace.Span, summary BatchSpanSummary) {
	span.SetAttributes(
		attribute.Int("batch.requested", summary.Requested),
		attribute.Int("batch.succeeded", summary.Succeeded),
		attribute.Int("batch.failed", summary.Failed),
		attribute.Int("batch.workers", summary.Workers),
	)
}

// TraceOutcome starts the span covering an outcome report.
func (bt *BusinessTracer) TraceOutcome(ctx context.Context, predictionID string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "volume.record_outcome",
		trace.WithAttributes(attribute.String("plan.prediction_id", predictionID)))
}

// TraceNotification starts a span for an outbound notification.
func (bt *BusinessTracer) TraceNotification(ctx context.Context, notificationType string, channel string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "notification",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("notification.type", notificationType),
			attribute.String("notification.channel", channel),
		))
}
