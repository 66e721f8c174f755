package eventgate_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/loop"
)

// newLifecycle creates a lifecycle confined to the calling goroutine.
func newLifecycle(t *testing.T, opts ...eventgate.Option) *eventgate.Lifecycle {
	t.Helper()
	lc, err := eventgate.NewLifecycle(loop.Inline{}, opts...)
	require.NoError(t, err)
	return lc
}

// register is RegisterListener that fails the test on error.
func register[T any](t *testing.T, lc *eventgate.Lifecycle, tag string, store bool, l eventgate.Listener[T]) *eventgate.Dispatcher[T] {
	t.Helper()
	d, err := eventgate.RegisterListener(lc, tag, store, l)
	require.NoError(t, err)
	return d
}

// recorder collects delivered events.
type recorder[T any] struct {
	mu     sync.Mutex
	events []T
}

func (r *recorder[T]) OnEvent(e T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder[T]) got() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.events))
	copy(out, r.events)
	return out
}

type activeRecorder struct {
	changes []bool
}

func (a *activeRecorder) OnActiveChange(active bool) {
	a.changes = append(a.changes, active)
}

type destroyCounter struct {
	calls int
	hook  func()
}

func (d *destroyCounter) OnDestroy() {
	d.calls++
	if d.hook != nil {
		d.hook()
	}
}

type receiverDestroyCounter[T any] struct {
	mu    sync.Mutex
	calls int
	last  eventgate.Receiver[T]
}

func (c *receiverDestroyCounter[T]) OnReceiverDestroyed(r eventgate.Receiver[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.last = r
}

func (c *receiverDestroyCounter[T]) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
