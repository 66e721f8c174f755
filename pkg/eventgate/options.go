package eventgate

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
)

// lifecycleConfig holds lifecycle construction settings shared with the
// dispatchers the lifecycle creates.
type lifecycleConfig struct {
	id           string
	logger       *slog.Logger
	metrics      observability.MetricsRecorder
	spans        observability.SpanManager
	pendingLimit int
}

func defaultLifecycleConfig() lifecycleConfig {
	return lifecycleConfig{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures a Lifecycle.
type Option func(*lifecycleConfig)

// WithID sets the lifecycle identifier used in logs and spans.
// Default: a random UUID.
func WithID(id string) Option {
	return func(c *lifecycleConfig) {
		if id != "" {
			c.id = id
		}
	}
}

// WithLogger sets the logger. Nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *lifecycleConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
// Default: observability.NoopMetrics{}.
//
// Example:
//
//	lc, err := eventgate.NewLifecycle(l, eventgate.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *lifecycleConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpanManager sets the span manager used for pending-queue drains.
// Default: observability.NoopSpanManager{}.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *lifecycleConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithPendingLimit caps every dispatcher's pending queue at n events.
// When the cap is reached the oldest pending event is discarded.
// Default: 0 (unbounded).
func WithPendingLimit(n int) Option {
	return func(c *lifecycleConfig) {
		if n >= 0 {
			c.pendingLimit = n
		}
	}
}

func newLifecycleID() string {
	return uuid.NewString()
}
