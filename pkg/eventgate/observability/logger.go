// Package observability provides logging, metrics, and tracing for eventgate.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every logging helper accepts a nil logger.
package observability

import (
	"context"
	"log/slog"
)

// Drop reasons reported by the dispatch layer.
const (
	// ReasonInactive means the event arrived while the dispatcher was not
	// ready and it does not store events.
	ReasonInactive = "inactive"

	// ReasonDestroyed means the owning lifecycle was already destroyed, or
	// was destroyed while the event was still pending.
	ReasonDestroyed = "destroyed"

	// ReasonOverflow means the pending queue hit its limit and the oldest
	// event was discarded.
	ReasonOverflow = "overflow"
)

// EnrichLogger adds lifecycle and tag context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "owner-1", "results")
//	enriched.Debug("queued") // includes lifecycle_id and tag
func EnrichLogger(logger *slog.Logger, lifecycleID, tag string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("lifecycle_id", lifecycleID),
		slog.String("tag", tag),
	)
}

// LogEventQueued logs an event stored for later delivery.
func LogEventQueued(logger *slog.Logger, pending int) {
	if logger == nil {
		return
	}
	logger.Debug("lifecycle not ready, storing event for later dispatch",
		slog.Int("pending", pending),
	)
}

// LogEventDropped logs discarded events.
// Overflow drops are logged at warn level, everything else at debug.
func LogEventDropped(logger *slog.Logger, reason string, count int) {
	if logger == nil || count == 0 {
		return
	}
	level := slog.LevelDebug
	if reason == ReasonOverflow {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "discarding event",
		slog.String("reason", reason),
		slog.Int("count", count),
	)
}

// LogDrain logs delivery of previously stored events.
func LogDrain(logger *slog.Logger, delivered, remaining int) {
	if logger == nil || delivered == 0 {
		return
	}
	logger.Debug("dispatched pending events",
		slog.Int("delivered", delivered),
		slog.Int("remaining", remaining),
	)
}

// LogActiveChange logs a lifecycle active flip.
func LogActiveChange(logger *slog.Logger, lifecycleID string, active bool) {
	if logger == nil {
		return
	}
	logger.Debug("lifecycle active changed",
		slog.String("lifecycle_id", lifecycleID),
		slog.Bool("active", active),
	)
}

// LogLifecycleDestroyed logs lifecycle destruction.
func LogLifecycleDestroyed(logger *slog.Logger, lifecycleID string, dispatchers int) {
	if logger == nil {
		return
	}
	logger.Debug("lifecycle destroyed",
		slog.String("lifecycle_id", lifecycleID),
		slog.Int("dispatchers", dispatchers),
	)
}

// LogOwnerAttached logs an owner being created or restored in a registry.
func LogOwnerAttached(logger *slog.Logger, ownerID string, restored bool) {
	if logger == nil {
		return
	}
	logger.Info("owner attached",
		slog.String("owner_id", ownerID),
		slog.Bool("restored", restored),
	)
}

// LogOwnerDetached logs an owner instance going away.
func LogOwnerDetached(logger *slog.Logger, ownerID string, finishing bool) {
	if logger == nil {
		return
	}
	logger.Info("owner detached",
		slog.String("owner_id", ownerID),
		slog.Bool("finishing", finishing),
	)
}

// LogStoreError logs a failed owner store operation (non-fatal).
func LogStoreError(logger *slog.Logger, ownerID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("owner store failed",
		slog.String("owner_id", ownerID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogPanic logs a panic recovered on the dispatch goroutine.
func LogPanic(logger *slog.Logger, value any, stack string) {
	if logger == nil {
		return
	}
	logger.Error("panic on dispatch loop",
		slog.Any("value", value),
		slog.String("stack", stack),
	)
}

// LogQueueBacklog logs a dispatch loop whose hand-off queue grew past the
// configured warning threshold.
func LogQueueBacklog(logger *slog.Logger, depth, threshold int) {
	if logger == nil {
		return
	}
	logger.Warn("dispatch loop backlog",
		slog.Int("depth", depth),
		slog.Int("threshold", threshold),
	)
}
