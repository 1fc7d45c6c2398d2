package database

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/volume-engine/internal/logging"
	"github.com/irfndi/volume-engine/internal/telemetry"
)

// TracedPool wraps a DatabasePool with a span and a debug log per statement.
type TracedPool struct {
	pool   DatabasePool
	tracer trace.Tracer
	logger logging.Logger
}

// NewTracedPool wraps pool. A nil logger disables statement logging.
func NewTracedPool(pool DatabasePool, logger logging.Logger) *TracedPool {
	return &TracedPool{
		pool:   pool,
		tracer: telemetry.GetDatabaseTracer(),
		logger: logger,
	}
}

// WithTracer replaces the tracer, mainly for tests.
func (p *TracedPool) WithTracer(tracer trace.Tracer) *TracedPool {
	p.tracer = tracer
	return p
}

func (p *TracedPool) start(ctx context.Context, kind, sql string) (context.Context, trace.Span) {
	op := statementVerb(sql)
	return p.tracer.Start(ctx, "db."+kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.sql.table", statementTable(sql)),
		))
}

func (p *TracedPool) finish(span trace.Span, sql string, start time.Time, rows int64, err error) {
	telemetry.RecordError(span, err)
	span.End()
	if p.logger != nil {
		p.logger.LogDatabaseOperation(statementVerb(sql), statementTable(sql), time.Since(start).Milliseconds(), rows)
	}
}

// Query executes a query that returns rows.
func (p *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	start := time.Now()
	ctx, span := p.start(ctx, "query", sql)
	rows, err := p.pool.Query(ctx, sql, args...)
	p.finish(span, sql, start, -1, err)
	return rows, err
}

// QueryRow executes a query that returns at most one row. Scan errors
// surface on the returned row and are not recorded on the span.
func (p *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	start := time.Now()
	ctx, span := p.start(ctx, "query_row", sql)
	row := p.pool.QueryRow(ctx, sql, args...)
	p.finish(span, sql, start, -1, nil)
	return row
}

// Exec executes a statement without returning rows.
func (p *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	start := time.Now()
	ctx, span := p.start(ctx, "exec", sql)
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	p.finish(span, sql, start, tag.RowsAffected(), err)
	return tag, err
}

// statementVerb returns the leading SQL keyword, upper-cased.
func statementVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// statementTable returns the first table named after FROM, INTO or UPDATE.
func statementTable(sql string) string {
	fields := strings.Fields(sql)
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "FROM", "INTO", "UPDATE":
			return strings.Trim(fields[i+1], "(;")
		}
	}
	return ""
}
