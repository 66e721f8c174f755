package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName is the tracer and meter scope name.
const instrumentationName = "eventgate"

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartDrainSpan starts a span covering delivery of stored events.
	StartDrainSpan(ctx context.Context, lifecycleID, tag string, pending int) (context.Context, trace.Span)

	// StartDetachSpan starts a span covering an owner instance going away.
	StartDetachSpan(ctx context.Context, ownerID string, finishing bool) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager that uses the global OTel tracer
// provider. Configure the provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return NewSpanManagerWithProvider(otel.GetTracerProvider())
}

// NewSpanManagerWithProvider returns a SpanManager bound to an explicit
// tracer provider.
func NewSpanManagerWithProvider(provider trace.TracerProvider) SpanManager {
	return &otelSpanManager{tracer: provider.Tracer(instrumentationName)}
}

// StartDrainSpan starts a span for a pending-queue drain.
func (m *otelSpanManager) StartDrainSpan(ctx context.Context, lifecycleID, tag string, pending int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "eventgate.drain",
		trace.WithAttributes(
			attribute.String("lifecycle.id", lifecycleID),
			attribute.String("dispatcher.tag", tag),
			attribute.Int("pending", pending),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartDetachSpan starts a span for an owner detach.
func (m *otelSpanManager) StartDetachSpan(ctx context.Context, ownerID string, finishing bool) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "eventgate.owner.detach",
		trace.WithAttributes(
			attribute.String("owner.id", ownerID),
			attribute.Bool("finishing", finishing),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
