package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartRun opens the root span of a scan run.
func StartRun(ctx context.Context, tracer trace.Tracer, runID, target, goalID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "recon.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("scan.target", target),
			attribute.String("goal.id", goalID),
		),
	)
}

// StartTurn opens a child span for one decision turn.
func StartTurn(ctx context.Context, tracer trace.Tracer, turn int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "recon.turn", trace.WithAttributes(attribute.Int("turn", turn)))
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
