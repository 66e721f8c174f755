package eventgate

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
)

var _ Receiver[int] = (*Dispatcher[int])(nil)

// Dispatcher is the per (lifecycle, tag) binding between producers and the
// current listener. It implements Receiver[T] for producers.
//
// A dispatcher is ready when its lifecycle is active, a listener is bound,
// and it is not destroyed. Events posted while not ready are queued when
// the dispatcher stores events while inactive, and dropped otherwise.
type Dispatcher[T any] struct {
	tag         string
	store       bool
	lifecycleID string
	exec        Executor

	// Confined to the dispatch context.
	lifecycle  *Lifecycle
	listener   Listener[T]
	pending    []T
	delivering bool
	hooks      *dispatcherHooks[T]

	destroyed atomic.Bool

	mu               sync.Mutex
	destroyListeners observers[ReceiverDestroyListener[T]]

	logger       *slog.Logger
	metrics      observability.MetricsRecorder
	spans        observability.SpanManager
	pendingLimit int
}

// dispatcherHooks subscribes a dispatcher to its lifecycle without putting
// the lifecycle callbacks on the dispatcher's public method set.
type dispatcherHooks[T any] struct {
	d *Dispatcher[T]
}

func (h *dispatcherHooks[T]) OnActiveChange(active bool) {
	if active {
		h.d.drainPending("activate")
	}
}

func (h *dispatcherHooks[T]) OnDestroy() {
	h.d.onDestroy()
}

// RegisterListener binds listener to the dispatcher for tag on l, creating
// the dispatcher on first use. Registering an existing tag rebinds its
// listener in place, so events queued for a previous listener go to the
// new one. storeWhileInactive only takes effect when the dispatcher is
// created; later registrations keep the original behavior.
//
// A nil listener leaves the tag unbound. Must be called on l's dispatch
// context.
func RegisterListener[T any](l *Lifecycle, tag string, storeWhileInactive bool, listener Listener[T]) (*Dispatcher[T], error) {
	if l == nil {
		return nil, &TagError{Tag: tag, Op: "register", Err: ErrNilLifecycle}
	}
	if tag == "" {
		return nil, &TagError{Tag: tag, Op: "register", Err: ErrEmptyTag}
	}
	if l.IsDestroyed() {
		return nil, &TagError{Tag: tag, Op: "register", Err: ErrLifecycleDestroyed}
	}

	if existing, ok := l.lookup(tag); ok {
		d, ok := existing.(*Dispatcher[T])
		if !ok {
			return nil, &TagError{
				Tag: tag,
				Op:  "register",
				Err: fmt.Errorf("%w: have %s, want %s", ErrTagTypeMismatch, existing.eventType(), typeName[T]()),
			}
		}
		d.SetListener(listener)
		return d, nil
	}

	d := newDispatcher[T](l, tag, storeWhileInactive)
	l.bind(d)
	l.AddActiveChangeListener(d.hooks)
	l.AddOnDestroyListener(d.hooks)
	d.SetListener(listener)
	return d, nil
}

func newDispatcher[T any](l *Lifecycle, tag string, store bool) *Dispatcher[T] {
	d := &Dispatcher[T]{
		tag:          tag,
		store:        store,
		lifecycleID:  l.ID(),
		exec:         l.exec,
		lifecycle:    l,
		logger:       observability.EnrichLogger(l.cfg.logger, l.ID(), tag),
		metrics:      l.cfg.metrics,
		spans:        l.cfg.spans,
		pendingLimit: l.cfg.pendingLimit,
	}
	d.hooks = &dispatcherHooks[T]{d: d}
	return d
}

// Tag returns the dispatcher's tag.
func (d *Dispatcher[T]) Tag() string {
	return d.tag
}

// StoresWhileInactive reports whether events posted while not ready are
// kept for later delivery.
func (d *Dispatcher[T]) StoresWhileInactive() bool {
	return d.store
}

// Pending returns the number of queued events.
// Must be called on the dispatch context.
func (d *Dispatcher[T]) Pending() int {
	return len(d.pending)
}

// IsDestroyed reports whether the owning lifecycle has been destroyed.
// Safe to call from any goroutine.
func (d *Dispatcher[T]) IsDestroyed() bool {
	return d.destroyed.Load()
}

// PostEvent hands event to the dispatch context, where it is delivered,
// queued or dropped. Safe to call from any goroutine.
func (d *Dispatcher[T]) PostEvent(event T) {
	if d.destroyed.Load() {
		return
	}
	d.metrics.RecordPosted(context.Background(), d.tag)
	d.exec.Execute(func() {
		d.post(event)
	})
}

// SetListener replaces the listener and delivers pending events if the
// dispatcher is now ready. A nil listener unbinds the tag. Must be called
// on the dispatch context.
func (d *Dispatcher[T]) SetListener(listener Listener[T]) {
	if d.gone() {
		return
	}
	d.listener = listener
	d.drainPending("rebind")
}

// AddOnDestroyListener registers l to be told once when the dispatcher is
// destroyed. Safe to call from any goroutine.
func (d *Dispatcher[T]) AddOnDestroyListener(l ReceiverDestroyListener[T]) {
	if l == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed.Load() {
		return
	}
	d.destroyListeners.add(l)
}

// RemoveOnDestroyListener unregisters l. Safe to call from any goroutine.
func (d *Dispatcher[T]) RemoveOnDestroyListener(l ReceiverDestroyListener[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyListeners.remove(l)
}

func (d *Dispatcher[T]) ready() bool {
	return !d.gone() &&
		d.lifecycle.IsActive() &&
		d.listener != nil
}

// gone reports whether the dispatcher or its lifecycle is destroyed. The
// lifecycle is destroyed before its destroy listeners run, so this is true
// for the whole destroy notification.
func (d *Dispatcher[T]) gone() bool {
	return d.destroyed.Load() || d.lifecycle == nil || d.lifecycle.IsDestroyed()
}

// post runs on the dispatch context.
func (d *Dispatcher[T]) post(event T) {
	switch {
	case d.gone():
		d.drop(observability.ReasonDestroyed, 1)
	case d.ready():
		// While a drain is running this only appends; the running drain
		// picks the event up after the current delivery returns.
		d.pending = append(d.pending, event)
		d.drain()
	case d.store:
		d.enqueue(event)
	default:
		d.drop(observability.ReasonInactive, 1)
	}
}

func (d *Dispatcher[T]) enqueue(event T) {
	if d.pendingLimit > 0 && len(d.pending) >= d.pendingLimit {
		overflow := len(d.pending) - d.pendingLimit + 1
		clear(d.pending[:overflow])
		d.pending = d.pending[overflow:]
		d.drop(observability.ReasonOverflow, overflow)
	}
	d.pending = append(d.pending, event)
	d.metrics.RecordQueued(context.Background(), d.tag, len(d.pending))
	observability.LogEventQueued(d.logger, len(d.pending))
}

func (d *Dispatcher[T]) drop(reason string, count int) {
	if count <= 0 {
		return
	}
	d.metrics.RecordDropped(context.Background(), d.tag, reason, count)
	observability.LogEventDropped(d.logger, reason, count)
}

// drainPending delivers queued events after the dispatcher became ready.
func (d *Dispatcher[T]) drainPending(trigger string) {
	if d.delivering || len(d.pending) == 0 || !d.ready() {
		return
	}

	ctx, span := d.spans.StartDrainSpan(context.Background(), d.lifecycleID, d.tag, len(d.pending))
	defer d.spans.EndSpanWithError(span, nil)

	delivered := d.drain()
	d.metrics.RecordDrain(ctx, d.tag, delivered)
	if d.logger != nil {
		observability.LogDrain(d.logger.With(slog.String("trigger", trigger)), delivered, len(d.pending))
	}
}

// drain pops and delivers queued events in FIFO order while the dispatcher
// stays ready. Re-entrant calls return immediately; events they appended
// are delivered by the outer loop.
func (d *Dispatcher[T]) drain() int {
	if d.delivering {
		return 0
	}
	d.delivering = true
	defer func() { d.delivering = false }()

	delivered := 0
	for len(d.pending) > 0 && d.ready() {
		event := d.pending[0]
		var zero T
		d.pending[0] = zero
		d.pending = d.pending[1:]

		d.deliver(event)
		delivered++
	}
	if len(d.pending) == 0 {
		d.pending = nil
	} else if !d.store {
		// The listener went away mid-drain and this tag does not keep
		// events for later.
		dropped := len(d.pending)
		d.pending = nil
		d.drop(observability.ReasonInactive, dropped)
	}
	return delivered
}

func (d *Dispatcher[T]) deliver(event T) {
	if d.listener == nil {
		panic(&InvariantError{
			Op:     "deliver",
			Detail: fmt.Sprintf("dispatcher %q has no listener bound", d.tag),
		})
	}
	d.listener.OnEvent(event)
	d.metrics.RecordDelivered(context.Background(), d.tag)
}

func (d *Dispatcher[T]) invalidate() {
	d.listener = nil
}

func (d *Dispatcher[T]) eventType() string {
	return typeName[T]()
}

// onDestroy runs on the dispatch context when the lifecycle is destroyed.
func (d *Dispatcher[T]) onDestroy() {
	if !d.destroyed.CompareAndSwap(false, true) {
		return
	}

	d.mu.Lock()
	listeners := d.destroyListeners.snapshot()
	d.mu.Unlock()

	for _, l := range listeners {
		d.mu.Lock()
		registered := d.destroyListeners.contains(l)
		d.mu.Unlock()
		if registered {
			l.OnReceiverDestroyed(d)
		}
	}

	d.mu.Lock()
	d.destroyListeners.clear()
	d.mu.Unlock()

	dropped := len(d.pending)
	d.pending = nil
	d.listener = nil
	d.lifecycle = nil
	d.hooks = nil
	d.drop(observability.ReasonDestroyed, dropped)
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
