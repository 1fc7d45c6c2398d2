package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/irfndi/volume-engine/internal/logging"
	"github.com/irfndi/volume-engine/internal/metrics"
)

// spanMiddleware stands in for otelgin so tests can inspect the server span.
func spanMiddleware(tp *sdktrace.TracerProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tp.Tracer("test").Start(c.Request.Context(), "HTTP "+c.Request.Method)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestRequestTelemetry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var buf bytes.Buffer
	logger := logging.NewStandardLoggerWithWriter(&buf, "debug", "test")

	am := NewAuthMiddleware(testSecret)
	token, err := am.GenerateToken("scheduler", []string{ScopeRead}, time.Hour)
	require.NoError(t, err)

	router := gin.New()
	router.Use(spanMiddleware(tp), RequestTelemetry(logger, metrics.NewMetricsCollector(logger, "volume-engine")))
	router.GET("/api/v1/creators/:creator_id/volume-plan", am.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/creators/c-1/volume-plan", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var api map[string]interface{}
	var metricSeen bool
	for _, entry := range logLines(t, &buf) {
		switch entry["event"] {
		case "api":
			api = entry
		case "metric":
			metricSeen = true
		}
	}
	require.NotNil(t, api)
	assert.Equal(t, "/api/v1/creators/:creator_id/volume-plan", api["path"])
	assert.Equal(t, "scheduler", api["subject"])
	assert.EqualValues(t, 200, api["status"])
	assert.True(t, metricSeen)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spans[0].Attributes()
	assert.Contains(t, attrs, attribute.String("enduser.id", "scheduler"))
}

func TestRequestTelemetry_UnmatchedRouteAndNilSinks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestTelemetry(nil, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx, span := tp.Tracer("test").Start(c.Request.Context(), "test_span")
	c.Request = c.Request.WithContext(ctx)

	RecordError(c, errors.New("boom"), "plan failed")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "plan failed", ended[0].Status().Description)

	// No span on the context is a no-op.
	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	assert.NotPanics(t, func() { RecordError(c2, errors.New("boom"), "x") })
}

func TestAddSpanAttribute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx, span := tp.Tracer("test").Start(c.Request.Context(), "test_span")
	c.Request = c.Request.WithContext(ctx)

	AddSpanAttribute(c, "creator.id", "c-1")
	AddSpanAttribute(c, "batch.size", 3)
	AddSpanAttribute(c, "batch.bytes", int64(512))
	AddSpanAttribute(c, "plan.confidence", 0.5)
	AddSpanAttribute(c, "plan.capped", true)
	AddSpanAttribute(c, "plan.tier", struct{ Name string }{"high"})
	span.End()

	attrs := recorder.Ended()[0].Attributes()
	assert.Contains(t, attrs, attribute.String("creator.id", "c-1"))
	assert.Contains(t, attrs, attribute.Int("batch.size", 3))
	assert.Contains(t, attrs, attribute.Int64("batch.bytes", 512))
	assert.Contains(t, attrs, attribute.Float64("plan.confidence", 0.5))
	assert.Contains(t, attrs, attribute.Bool("plan.capped", true))
	assert.Contains(t, attrs, attribute.String("plan.tier", "{high}"))
}
