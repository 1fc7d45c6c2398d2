package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
)

func setupTestLogger(level string) (*StandardLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewStandardLoggerWithWriter(&buf, level, "test"), &buf
}

// lastEntry decodes the last JSON line written to buf.
func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestNewStandardLogger_Basic(t *testing.T) {
	logger := NewStandardLogger("info", "development")

	assert.NotNil(t, logger)
	assert.NotNil(t, logger.Logger())
}

func TestGetSlogLevel(t *testing.T) {
	tests := []struct {
		levelStr string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.levelStr, func(t *testing.T) {
			assert.Equal(t, tt.expected, getSlogLevel(tt.levelStr))
		})
	}
}

func TestStandardLogger_ContextHelpers(t *testing.T) {
	logger, buf := setupTestLogger("info")

	tests := []struct {
		name  string
		log   *slog.Logger
		key   string
		value string
	}{
		{"service", logger.WithService("planner"), "service", "planner"},
		{"component", logger.WithComponent("signal_repository"), "component", "signal_repository"},
		{"operation", logger.WithOperation("plan_batch"), "operation", "plan_batch"},
		{"request", logger.WithRequestID("req-1"), "request_id", "req-1"},
		{"creator", logger.WithCreator("creator-9"), "creator_id", "creator-9"},
		{"prediction", logger.WithPrediction("pred-3"), "prediction_id", "pred-3"},
		{"error", logger.WithError(errors.New("boom")), "error", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.log.Info("test message")

			entry := lastEntry(t, buf)
			assert.Equal(t, tt.value, entry[tt.key])
			assert.Equal(t, "test message", entry["msg"])
			assert.Equal(t, "test", entry["environment"])
		})
	}
}

func TestStandardLogger_WithNilError(t *testing.T) {
	logger, buf := setupTestLogger("info")

	logger.WithError(nil).Info("no error")

	assert.NotContains(t, lastEntry(t, buf), "error")
}

func TestStandardLogger_LevelFiltering(t *testing.T) {
	logger, buf := setupTestLogger("warn")

	logger.Logger().Info("hidden")
	logger.Logger().Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestStandardLogger_LogPlanComputed(t *testing.T) {
	logger, buf := setupTestLogger("info")

	logger.LogPlanComputed(PlanEvent{
		CreatorID:    "creator-1",
		PredictionID: "pred-1",
		Tier:         "high",
		Revenue:      41,
		Engagement:   41,
		Retention:    16,
		Confidence:   0.91,
		Capped:       true,
		Warnings:     2,
		DurationMs:   12,
	})

	entry := lastEntry(t, buf)
	assert.Equal(t, "Volume plan computed", entry["msg"])
	assert.Equal(t, "plan_computed", entry["event"])
	assert.Equal(t, "creator-1", entry["creator_id"])
	assert.Equal(t, "pred-1", entry["prediction_id"])
	assert.Equal(t, float64(41), entry["revenue"])
	assert.Equal(t, true, entry["elasticity_capped"])
	assert.Equal(t, float64(2), entry["caption_warnings"])
}

func TestStandardLogger_EventHelpers(t *testing.T) {
	logger, buf := setupTestLogger("debug")

	logger.LogStartup("volume-engine", "1.0.0", 8080)
	assert.Equal(t, "startup", lastEntry(t, buf)["event"])

	logger.LogShutdown("volume-engine", "signal")
	assert.Equal(t, "signal", lastEntry(t, buf)["reason"])

	logger.LogResourceStats("planner", map[string]interface{}{"workers": 4})
	assert.Equal(t, "resource", lastEntry(t, buf)["event"])

	logger.LogCacheOperation("get", "volume:plan:c1", true, 2)
	assert.Equal(t, true, lastEntry(t, buf)["hit"])

	logger.LogDatabaseOperation("insert", "volume_plans", 5, 1)
	assert.Equal(t, "volume_plans", lastEntry(t, buf)["table"])

	logger.LogAPIRequest("POST", "/api/v1/creators/c1/volume-plan", 200, 15, "ops")
	assert.Equal(t, float64(200), lastEntry(t, buf)["status"])

	logger.LogBusinessEvent("caption_shortfall", map[string]interface{}{"creator_id": "c1"})
	assert.Equal(t, "caption_shortfall", lastEntry(t, buf)["event_type"])
}

func TestStandardLogger_SetLogger(t *testing.T) {
	logger := NewStandardLogger("info", "development")
	var buf bytes.Buffer
	replacement := &slogLogger{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	logger.SetLogger(replacement)
	logger.WithService("swapped").Info("after swap")

	assert.Contains(t, buf.String(), "swapped")
}

func TestParseLogrusLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogrusLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLogrusLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLogrusLevel("ERROR"))
	assert.Equal(t, logrus.InfoLevel, ParseLogrusLevel(""))
}

func TestNewLogrusLogger(t *testing.T) {
	logger := NewLogrusLogger("debug")

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestNewOTLPLogger_Disabled(t *testing.T) {
	logger, err := NewOTLPLogger(OTLPConfig{Enabled: false, ServiceName: "test-service"})
	require.NoError(t, err)
	assert.NotNil(t, logger.Logger())

	assert.NoError(t, logger.Shutdown(context.Background()))
}

func TestNewOTLPLogger_Enabled(t *testing.T) {
	logger, err := NewOTLPLogger(OTLPConfig{
		Enabled:        true,
		Endpoint:       "localhost:4318",
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		LogLevel:       "info",
	})
	if err != nil {
		assert.ErrorContains(t, err, "failed to create OTLP log exporter")
		return
	}
	assert.NotNil(t, logger.Logger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = logger.Shutdown(ctx)
}

func TestNewStandardOTLPLogger_Disabled(t *testing.T) {
	logger, otlp := NewStandardOTLPLogger(OTLPConfig{Enabled: false, ServiceName: "test-service"})

	assert.NotNil(t, logger)
	assert.NotNil(t, otlp)
	assert.NotNil(t, logger.WithCreator("c1"))
}

func TestConvertSlogLevelToSeverity(t *testing.T) {
	assert.Equal(t, otellog.SeverityDebug, convertSlogLevelToSeverity(slog.LevelDebug))
	assert.Equal(t, otellog.SeverityInfo, convertSlogLevelToSeverity(slog.LevelInfo))
	assert.Equal(t, otellog.SeverityWarn, convertSlogLevelToSeverity(slog.LevelWarn))
	assert.Equal(t, otellog.SeverityError, convertSlogLevelToSeverity(slog.LevelError))
	assert.Equal(t, otellog.SeverityError, convertSlogLevelToSeverity(slog.Level(12)))
}

// recordingOTLPLogger captures emitted records.
type recordingOTLPLogger struct {
	otellog.Logger
	records []otellog.Record
}

func (r *recordingOTLPLogger) Enabled(context.Context, otellog.EnabledParameters) bool {
	return true
}

func (r *recordingOTLPLogger) Emit(_ context.Context, record otellog.Record) {
	r.records = append(r.records, record)
}

func recordAttrs(record otellog.Record) map[string]otellog.Value {
	out := make(map[string]otellog.Value)
	record.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value
		return true
	})
	return out
}

func TestOTLPHandler_Enabled(t *testing.T) {
	handler := NewOTLPHandler(&recordingOTLPLogger{}, slog.LevelInfo)
	ctx := context.Background()

	assert.False(t, handler.Enabled(ctx, slog.LevelDebug))
	assert.True(t, handler.Enabled(ctx, slog.LevelInfo))
	assert.True(t, handler.Enabled(ctx, slog.LevelError))
}

func TestOTLPHandler_Handle(t *testing.T) {
	rec := &recordingOTLPLogger{}
	logger := slog.New(NewOTLPHandler(rec, slog.LevelDebug))

	logger.With("component", "planner").WithGroup("plan").Info("Volume plan computed",
		"revenue", 41, "confidence", 0.9, "capped", true)

	require.Len(t, rec.records, 1)
	record := rec.records[0]
	assert.Equal(t, "Volume plan computed", record.Body().AsString())
	assert.Equal(t, otellog.SeverityInfo, record.Severity())

	attrs := recordAttrs(record)
	assert.Equal(t, "planner", attrs["component"].AsString())
	assert.Equal(t, int64(41), attrs["plan.revenue"].AsInt64())
	assert.Equal(t, 0.9, attrs["plan.confidence"].AsFloat64())
	assert.True(t, attrs["plan.capped"].AsBool())
}

func TestOTLPHandler_WithAttrsDoesNotMutateParent(t *testing.T) {
	rec := &recordingOTLPLogger{}
	parent := NewOTLPHandler(rec, slog.LevelInfo)

	child := parent.WithAttrs([]slog.Attr{slog.String("creator_id", "c1")})

	assert.Empty(t, parent.attrs)
	assert.Len(t, child.(*OTLPHandler).attrs, 1)
	assert.Same(t, parent, parent.WithGroup(""))
}

func TestOTLPHandler_FlattensGroupsAndDurations(t *testing.T) {
	rec := &recordingOTLPLogger{}
	logger := slog.New(NewOTLPHandler(rec, slog.LevelDebug))

	computedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	logger.Info("Plan batch finished",
		slog.Group("batch", slog.Int("requested", 12), slog.Group("workers", slog.Int("limit", 4))),
		slog.Duration("elapsed", 1500*time.Millisecond),
		slog.Time("as_of", computedAt),
		slog.Uint64("bytes", 2048),
	)

	require.Len(t, rec.records, 1)
	attrs := recordAttrs(rec.records[0])
	assert.Equal(t, int64(12), attrs["batch.requested"].AsInt64())
	assert.Equal(t, int64(4), attrs["batch.workers.limit"].AsInt64())
	assert.Equal(t, int64(1500), attrs["elapsed_ms"].AsInt64())
	assert.Equal(t, "2026-03-02T09:00:00Z", attrs["as_of"].AsString())
	assert.Equal(t, int64(2048), attrs["bytes"].AsInt64())
	assert.NotContains(t, attrs, "batch")
}
