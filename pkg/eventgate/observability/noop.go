package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordPosted does nothing.
func (NoopMetrics) RecordPosted(_ context.Context, _ string) {}

// RecordDelivered does nothing.
func (NoopMetrics) RecordDelivered(_ context.Context, _ string) {}

// RecordQueued does nothing.
func (NoopMetrics) RecordQueued(_ context.Context, _ string, _ int) {}

// RecordDropped does nothing.
func (NoopMetrics) RecordDropped(_ context.Context, _, _ string, _ int) {}

// RecordDrain does nothing.
func (NoopMetrics) RecordDrain(_ context.Context, _ string, _ int) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartDrainSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDrainSpan(ctx context.Context, _, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartDetachSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDetachSpan(ctx context.Context, _ string, _ bool) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}
