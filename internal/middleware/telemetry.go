package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/volume-engine/internal/logging"
	"github.com/irfndi/volume-engine/internal/metrics"
)

// RequestTelemetry logs each request, records API metrics and annotates the
// server span opened by otelgin. logger and mc may be nil.
func RequestTelemetry(logger logging.Logger, mc *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		subject := Subject(c)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			span.SetAttributes(
				attribute.Int64("http.response.time_ms", duration.Milliseconds()),
				attribute.Int64("http.response.size_bytes", int64(c.Writer.Size())),
			)
			if subject != "" {
				span.SetAttributes(attribute.String("enduser.id", subject))
			}
		}

		if logger != nil {
			logger.LogAPIRequest(c.Request.Method, route, status, duration.Milliseconds(), subject)
		}
		if mc != nil {
			mc.RecordAPIRequestMetrics(c.Request.Method, route, status, duration, subject)
		}
	}
}

// RecordError records an error on the current span
func RecordError(c *gin.Context, err error, description string) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, description)
	}
}

// AddSpanAttribute adds an attribute to the current span
func AddSpanAttribute(c *gin.Context, key string, value interface{}) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
	}
}
