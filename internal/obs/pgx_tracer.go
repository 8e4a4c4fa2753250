package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ctxSpanKey struct{}

// PGXTracer hooks pgx's QueryTracer so every statement shows up as a child
// span of the request that issued it.
type PGXTracer struct{}

// TraceQueryStart opens the span and tags it with the statement.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, span := otel.Tracer("db.pgx").Start(ctx, "pgx.query")
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", truncateSQL(data.SQL)),
	}
	if op := sqlOperation(data.SQL); op != "" {
		attrs = append(attrs, attribute.String("db.operation", op))
	}
	span.SetAttributes(attrs...)
	return context.WithValue(ctx, ctxSpanKey{}, span)
}

// sqlOperation extracts the leading verb (SELECT, INSERT, ...) for the span.
func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// TraceQueryEnd closes the span, recording the error if the statement failed.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	if span, ok := ctx.Value(ctxSpanKey{}).(trace.Span); ok {
		if data.Err != nil {
			span.RecordError(data.Err)
		}
		span.End()
	}
}

// truncateSQL keeps span attributes bounded; 300 chars identifies any of our
// statements without shipping whole invoice payloads to the collector.
func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > 300 {
		return trimmed[:300] + "..."
	}
	return trimmed
}
