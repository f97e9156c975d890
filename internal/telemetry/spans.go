package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "steward"

// StartTurnSpan starts a span for one conversational turn.
func StartTurnSpan(ctx context.Context, tenantID, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "turn",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("session.id", sessionID),
		),
	)
}

// StartToolCallSpan starts a span for a tool call within a turn.
func StartToolCallSpan(ctx context.Context, toolName, tier string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.tool", toolName),
			attribute.String("toolcall.tier", tier),
		),
	)
}

// StartReasonerSpan starts a span for the external reasoner call.
func StartReasonerSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "reasoner",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
		),
	)
}
