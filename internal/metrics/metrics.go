// Package metrics records counters, gauges and timings as structured log events.
package metrics

import (
	"strconv"
	"time"

	"github.com/irfndi/volume-engine/internal/logging"
	"github.com/irfndi/volume-engine/internal/volume"
)

// MetricType represents the type of metric being recorded.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
	MetricTypeTiming    MetricType = "timing"
)

// Metric represents a standardized metric structure.
type Metric struct {
	Name      string                 `json:"name"`
	Type      MetricType             `json:"type"`
	Value     float64                `json:"value"`
	Unit      string                 `json:"unit"`
	Timestamp time.Time              `json:"timestamp"`
	Tags      map[string]string      `json:"tags,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// MetricsCollector provides standardized metrics collection.
type MetricsCollector struct {
	logger      logging.Logger
	serviceName string
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(logger logging.Logger, serviceName string) *MetricsCollector {
	return &MetricsCollector{
		logger:      logger,
		serviceName: serviceName,
	}
}

// RecordCounter records a counter metric.
func (mc *MetricsCollector) RecordCounter(name string, value float64, tags map[string]string) {
	mc.record(Metric{Name: name, Type: MetricTypeCounter, Value: value, Unit: "count", Tags: tags})
}

// RecordGauge records a gauge metric.
func (mc *MetricsCollector) RecordGauge(name string, value float64, unit string, tags map[string]string) {
	mc.record(Metric{Name: name, Type: MetricTypeGauge, Value: value, Unit: unit, Tags: tags})
}

// RecordTiming records a timing metric in milliseconds.
func (mc *MetricsCollector) RecordTiming(name string, duration time.Duration, tags map[string]string) {
	mc.record(Metric{Name: name, Type: MetricTypeTiming, Value: float64(duration.Milliseconds()), Unit: "ms", Tags: tags})
}

// RecordHistogram records a histogram metric.
func (mc *MetricsCollector) RecordHistogram(name string, value float64, unit string, tags map[string]string) {
	mc.record(Metric{Name: name, Type: MetricTypeHistogram, Value: value, Unit: unit, Tags: tags})
}

// RecordBusinessMetric records a business-specific metric with additional fields.
func (mc *MetricsCollector) RecordBusinessMetric(name string, value float64, unit string, tags map[string]string, fields map[string]interface{}) {
	mc.record(Metric{Name: name, Type: MetricTypeGauge, Value: value, Unit: unit, Tags: tags, Fields: fields})
}

func (mc *MetricsCollector) record(metric Metric) {
	metric.Timestamp = time.Now()
	metric.Tags = mc.addServiceTag(metric.Tags)
	mc.logMetric(metric)
}

// addServiceTag adds the service name to a copy of tags
func (mc *MetricsCollector) addServiceTag(tags map[string]string) map[string]string {
	result := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		result[k] = v
	}
	result["service"] = mc.serviceName
	return result
}

func (mc *MetricsCollector) logMetric(metric Metric) {
	if mc.logger == nil {
		return
	}
	mc.logger.Logger().Debug("Metric recorded",
		"event", "metric",
		"metric", metric,
	)
}

// RecordPlanMetrics records the outcome of one plan computation.
func (mc *MetricsCollector) RecordPlanMetrics(plan *volume.VolumePlan, duration time.Duration) {
	tags := map[string]string{"tier": string(plan.Tier)}

	mc.RecordCounter("volume_plans_total", 1, tags)
	mc.RecordTiming("volume_plan_duration", duration, tags)
	mc.RecordGauge("volume_plan_confidence", plan.ConfidenceScore, "ratio", tags)
	mc.RecordGauge("volume_plan_weekly_sends", float64(plan.WeeklyTotals.Sum()), "sends", tags)
	for _, cond := range plan.Conditions {
		mc.RecordCounter("volume_plan_conditions_total", 1, map[string]string{"condition": string(cond)})
	}
}

// RecordPlanFailure records a plan computation that produced no plan.
func (mc *MetricsCollector) RecordPlanFailure(stage string) {
	mc.RecordCounter("volume_plan_failures_total", 1, map[string]string{"stage": stage})
}

// RecordBatchMetrics records a batch run.
func (mc *MetricsCollector) RecordBatchMetrics(requested, failed, workers int, duration time.Duration) {
	tags := map[string]string{"workers": strconv.Itoa(workers)}

	mc.RecordCounter("volume_batches_total", 1, tags)
	mc.RecordGauge("volume_batch_size", float64(requested), "creators", tags)
	mc.RecordGauge("volume_batch_failed", float64(failed), "creators", tags)
	mc.RecordTiming("volume_batch_duration", duration, tags)
}

// RecordOutcomeMetrics records how close an outcome landed to its plan.
func (mc *MetricsCollector) RecordOutcomeMetrics(tier volume.Tier, accuracy float64) {
	tags := map[string]string{"tier": string(tier)}

	mc.RecordCounter("prediction_outcomes_total", 1, tags)
	mc.RecordGauge("prediction_send_accuracy", accuracy, "ratio", tags)
}

// RecordAPIRequestMetrics records standardized API request metrics.
func (mc *MetricsCollector) RecordAPIRequestMetrics(method, endpoint string, statusCode int, duration time.Duration, subject string) {
	tags := map[string]string{
		"method":      method,
		"endpoint":    endpoint,
		"status_code": strconv.Itoa(statusCode),
	}
	if subject != "" {
		tags["subject"] = subject
	}

	mc.RecordCounter("api_requests_total", 1, tags)
	mc.RecordTiming("api_request_duration", duration, tags)
}

// RecordCacheMetrics records standardized cache operation metrics.
func (mc *MetricsCollector) RecordCacheMetrics(operation string, hit bool, duration time.Duration) {
	tags := map[string]string{
		"operation": operation,
		"hit":       strconv.FormatBool(hit),
	}

	mc.RecordCounter("cache_operations_total", 1, tags)
	mc.RecordTiming("cache_operation_duration", duration, tags)
}

// RecordSystemMetrics records standardized system resource metrics.
func (mc *MetricsCollector) RecordSystemMetrics(memoryMB, goroutines int, cpuPercent float64) {
	mc.RecordGauge("system_memory_usage", float64(memoryMB), "MB", nil)
	mc.RecordGauge("system_goroutines", float64(goroutines), "count", nil)
	mc.RecordGauge("system_cpu_usage", cpuPercent, "percent", nil)
}

// RecordNotificationMetrics records standardized notification metrics.
func (mc *MetricsCollector) RecordNotificationMetrics(notificationType string, success bool) {
	mc.RecordCounter("notifications_sent_total", 1, map[string]string{
		"type":    notificationType,
		"success": strconv.FormatBool(success),
	})
}
