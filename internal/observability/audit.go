package observability

import (
	"context"
	"log/slog"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

// Audit writes one audit record for a state-changing auth operation.
func Audit(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	if id := chimiddleware.GetReqID(ctx); id != "" {
		base = append(base, "request_id", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		base = append(base, "trace_id", sc.TraceID().String())
	}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}
