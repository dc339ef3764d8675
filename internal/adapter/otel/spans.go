package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "echochamber"

// StartCycleSpan starts a span for one think cycle.
func StartCycleSpan(ctx context.Context, instanceID, reason string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "cycle",
		trace.WithAttributes(
			attribute.String("instance.id", instanceID),
			attribute.String("cycle.reason", reason),
		),
	)
}

// StartToolCallSpan starts a span for a tool call within a cycle.
func StartToolCallSpan(ctx context.Context, callID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.id", callID),
			attribute.String("toolcall.tool", tool),
		),
	)
}
