// Package telemetry provides tracing plumbing for collective dispatch.
// This package is internal and should not be imported by external projects.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/BaSui01/commflow"

// Tracer returns the library tracer from the global provider. Exporter
// wiring is the host application's concern.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartCollective opens a dispatch span for one collective.
func StartCollective(ctx context.Context, tracer trace.Tracer, op, backend string, rank, size int) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = Tracer()
	}
	return tracer.Start(ctx, "commflow."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("commflow.backend", backend),
			attribute.Int("commflow.rank", rank),
			attribute.Int("commflow.size", size),
		))
}
