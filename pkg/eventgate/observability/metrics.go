package observability

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records dispatch metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPosted records an event handed to a receiver by a producer.
	RecordPosted(ctx context.Context, tag string)

	// RecordDelivered records an event handed to a listener.
	RecordDelivered(ctx context.Context, tag string)

	// RecordQueued records an event stored for later delivery and the
	// resulting queue depth.
	RecordQueued(ctx context.Context, tag string, depth int)

	// RecordDropped records discarded events with the reason.
	RecordDropped(ctx context.Context, tag, reason string, count int)

	// RecordDrain records how many stored events one drain pass delivered.
	RecordDrain(ctx context.Context, tag string, delivered int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	posted     metric.Int64Counter
	delivered  metric.Int64Counter
	queued     metric.Int64Counter
	dropped    metric.Int64Counter
	queueDepth metric.Int64Histogram
	drainSize  metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the metrics instance bound to the global meter
// provider, initializing it on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(provider metric.MeterProvider) (*otelMetrics, error) {
	meter := provider.Meter(instrumentationName)

	posted, err := meter.Int64Counter("eventgate.events.posted",
		metric.WithDescription("Number of events posted to receivers"),
	)
	if err != nil {
		return nil, err
	}

	delivered, err := meter.Int64Counter("eventgate.events.delivered",
		metric.WithDescription("Number of events delivered to listeners"),
	)
	if err != nil {
		return nil, err
	}

	queued, err := meter.Int64Counter("eventgate.events.queued",
		metric.WithDescription("Number of events stored while the lifecycle was not ready"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("eventgate.events.dropped",
		metric.WithDescription("Number of events discarded"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Histogram("eventgate.pending.depth",
		metric.WithDescription("Pending queue depth after storing an event"),
	)
	if err != nil {
		return nil, err
	}

	drainSize, err := meter.Int64Histogram("eventgate.drain.size",
		metric.WithDescription("Stored events delivered per drain pass"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		posted:     posted,
		delivered:  delivered,
		queued:     queued,
		dropped:    dropped,
		queueDepth: queueDepth,
		drainSize:  drainSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithProvider returns a MetricsRecorder bound to an
// explicit meter provider instead of the global one.
func NewMetricsRecorderWithProvider(provider metric.MeterProvider) (MetricsRecorder, error) {
	m, err := newOtelMetrics(provider)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func tagAttrs(tag string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("tag", tag))
}

// RecordPosted records a posted event.
func (m *otelMetrics) RecordPosted(ctx context.Context, tag string) {
	m.posted.Add(ctx, 1, tagAttrs(tag))
}

// RecordDelivered records a delivered event.
func (m *otelMetrics) RecordDelivered(ctx context.Context, tag string) {
	m.delivered.Add(ctx, 1, tagAttrs(tag))
}

// RecordQueued records a stored event.
func (m *otelMetrics) RecordQueued(ctx context.Context, tag string, depth int) {
	attrs := tagAttrs(tag)
	m.queued.Add(ctx, 1, attrs)
	m.queueDepth.Record(ctx, int64(depth), attrs)
}

// RecordDropped records discarded events.
func (m *otelMetrics) RecordDropped(ctx context.Context, tag, reason string, count int) {
	if count <= 0 {
		return
	}
	m.dropped.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("tag", tag),
		attribute.String("reason", reason),
	))
}

// RecordDrain records a drain pass.
func (m *otelMetrics) RecordDrain(ctx context.Context, tag string, delivered int) {
	m.drainSize.Record(ctx, int64(delivered), tagAttrs(tag))
}
