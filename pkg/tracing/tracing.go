package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// tracer is set once at startup by InitOTLP. Until then spans are no-ops,
// which keeps repositories and the pipeline traceable in tests without an
// exporter.
var tracer trace.Tracer = noop.NewTracerProvider().Tracer("")

// SetTracer installs the service tracer
func SetTracer(t trace.Tracer) {
	if t != nil {
		tracer = t
	}
}

// StartSpan opens a span named after the call site, "package.Type.Method".
// Callers defer span.End() immediately.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, spanName)
}

// GetTraceID returns the current trace ID, or "" outside a recorded trace.
// The error middleware attaches it to responses so a failed import can be
// chased through the collector.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
