package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &testHandler{
		buf:   h.buf,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *testHandler) records(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestEnrichLogger(t *testing.T) {
	h := newTestHandler()
	logger := EnrichLogger(slog.New(h), "lc-7", "results")

	LogEventQueued(logger, 2)

	recs := h.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "lc-7", recs[0]["lifecycle_id"])
	assert.Equal(t, "results", recs[0]["tag"])
	assert.Equal(t, float64(2), recs[0]["pending"])
	assert.Equal(t, "DEBUG", recs[0]["level"])
}

func TestLogEventDropped_Levels(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogEventDropped(logger, ReasonInactive, 1)
	LogEventDropped(logger, ReasonOverflow, 1)
	LogEventDropped(logger, ReasonDestroyed, 0) // nothing to report

	recs := h.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, "DEBUG", recs[0]["level"])
	assert.Equal(t, ReasonInactive, recs[0]["reason"])
	assert.Equal(t, "WARN", recs[1]["level"])
	assert.Equal(t, ReasonOverflow, recs[1]["reason"])
}

func TestOwnerLogs(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogOwnerAttached(logger, "owner-1", true)
	LogOwnerDetached(logger, "owner-1", false)
	LogStoreError(logger, "owner-1", "save", errors.New("disk full"))

	recs := h.records(t)
	require.Len(t, recs, 3)
	assert.Equal(t, "owner attached", recs[0]["msg"])
	assert.Equal(t, true, recs[0]["restored"])
	assert.Equal(t, "owner detached", recs[1]["msg"])
	assert.Equal(t, false, recs[1]["finishing"])
	assert.Equal(t, "WARN", recs[2]["level"])
	assert.Equal(t, "disk full", recs[2]["error"])
}

func TestLoggers_NilSafe(t *testing.T) {
	assert.Nil(t, EnrichLogger(nil, "lc", "tag"))
	assert.NotPanics(t, func() {
		LogEventQueued(nil, 1)
		LogEventDropped(nil, ReasonInactive, 1)
		LogDrain(nil, 1, 0)
		LogActiveChange(nil, "lc", true)
		LogLifecycleDestroyed(nil, "lc", 1)
		LogOwnerAttached(nil, "o", false)
		LogOwnerDetached(nil, "o", true)
		LogStoreError(nil, "o", "save", errors.New("x"))
		LogPanic(nil, "boom", "stack")
		LogQueueBacklog(nil, 10, 5)
	})
}
