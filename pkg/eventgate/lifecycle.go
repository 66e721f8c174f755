package eventgate

import (
	"sync/atomic"

	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
)

// tagDispatcher is the type-erased view of a Dispatcher[T] the lifecycle
// keeps in its tag table.
type tagDispatcher interface {
	Tag() string
	invalidate()
	eventType() string
}

// Lifecycle is the active/destroyed state of one owner, plus the table of
// dispatchers registered against it.
//
// A Lifecycle starts inactive. SetActive moves it between active and
// inactive any number of times; Destroy is terminal. All methods except
// ID, IsDestroyed and Executor must be called on the lifecycle's dispatch
// context.
type Lifecycle struct {
	cfg  lifecycleConfig
	exec Executor

	active    bool
	destroyed atomic.Bool

	isNew    bool
	restored bool

	activeListeners  observers[ActiveChangeListener]
	destroyListeners observers[DestroyListener]

	dispatchers map[string]tagDispatcher
	tags        []string
}

// NewLifecycle creates an inactive lifecycle bound to a dispatch context.
func NewLifecycle(exec Executor, opts ...Option) (*Lifecycle, error) {
	if exec == nil {
		return nil, ErrNilExecutor
	}

	cfg := defaultLifecycleConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = newLifecycleID()
	}

	return &Lifecycle{
		cfg:         cfg,
		exec:        exec,
		isNew:       true,
		dispatchers: make(map[string]tagDispatcher),
	}, nil
}

// ID returns the lifecycle identifier.
func (l *Lifecycle) ID() string {
	return l.cfg.id
}

// Executor returns the dispatch context the lifecycle is confined to.
func (l *Lifecycle) Executor() Executor {
	return l.exec
}

// IsActive reports whether the owner is currently eligible for delivery.
func (l *Lifecycle) IsActive() bool {
	return l.active
}

// IsDestroyed reports whether the lifecycle has been destroyed.
// Safe to call from any goroutine.
func (l *Lifecycle) IsDestroyed() bool {
	return l.destroyed.Load()
}

// IsNew reports whether the lifecycle was created for the current owner
// instance rather than carried over from a previous one.
func (l *Lifecycle) IsNew() bool {
	return l.isNew
}

// IsRestored reports whether the lifecycle was recreated after the process
// lost it. Events posted to the lost lifecycle are gone.
func (l *Lifecycle) IsRestored() bool {
	return l.restored
}

// IsNewOrRestored reports whether callbacks registered by a previous owner
// instance may have been lost, either because there was no previous
// instance or because its lifecycle did not survive.
func (l *Lifecycle) IsNewOrRestored() bool {
	return l.isNew || l.restored
}

// Tags returns the registered dispatcher tags in registration order.
func (l *Lifecycle) Tags() []string {
	out := make([]string, len(l.tags))
	copy(out, l.tags)
	return out
}

// AddActiveChangeListener registers a listener called on every active flip.
// Ignored once the lifecycle is destroyed.
func (l *Lifecycle) AddActiveChangeListener(listener ActiveChangeListener) {
	if listener == nil || l.IsDestroyed() {
		return
	}
	l.activeListeners.add(listener)
}

// RemoveActiveChangeListener unregisters a listener.
func (l *Lifecycle) RemoveActiveChangeListener(listener ActiveChangeListener) {
	l.activeListeners.remove(listener)
}

// AddOnDestroyListener registers a listener called once on Destroy.
// Ignored once the lifecycle is destroyed.
func (l *Lifecycle) AddOnDestroyListener(listener DestroyListener) {
	if listener == nil || l.IsDestroyed() {
		return
	}
	l.destroyListeners.add(listener)
}

// RemoveOnDestroyListener unregisters a listener.
func (l *Lifecycle) RemoveOnDestroyListener(listener DestroyListener) {
	l.destroyListeners.remove(listener)
}

// SetActive marks the owner eligible or ineligible for delivery. Listeners
// are notified in registration order, and only when the value changes.
// Dispatchers are among those listeners and deliver their pending events
// when the lifecycle turns active.
func (l *Lifecycle) SetActive(active bool) {
	if l.IsDestroyed() || l.active == active {
		return
	}
	l.active = active
	observability.LogActiveChange(l.cfg.logger, l.cfg.id, active)

	for _, listener := range l.activeListeners.snapshot() {
		if l.activeListeners.contains(listener) {
			listener.OnActiveChange(active)
		}
	}
}

// InvalidateListeners unbinds the listener of every dispatcher while
// keeping their pending queues. Call it when the owner instance is torn
// down but a new instance with the same identity will register again.
func (l *Lifecycle) InvalidateListeners() {
	for _, tag := range l.tags {
		if d, ok := l.dispatchers[tag]; ok {
			d.invalidate()
		}
	}
}

// Destroy ends the lifecycle. It marks the lifecycle inactive, unbinds
// every listener, notifies destroy listeners once in registration order
// (dispatchers among them, which then drop their queues and notify their
// own destroy listeners), and releases every internal collection. Calling
// Destroy again is a no-op.
func (l *Lifecycle) Destroy() {
	if !l.destroyed.CompareAndSwap(false, true) {
		return
	}

	l.active = false
	l.InvalidateListeners()
	for _, listener := range l.destroyListeners.snapshot() {
		if l.destroyListeners.contains(listener) {
			listener.OnDestroy()
		}
	}

	observability.LogLifecycleDestroyed(l.cfg.logger, l.cfg.id, len(l.dispatchers))

	l.activeListeners.clear()
	l.destroyListeners.clear()
	l.dispatchers = nil
	l.tags = nil
}

// lookup returns the dispatcher registered for tag.
func (l *Lifecycle) lookup(tag string) (tagDispatcher, bool) {
	d, ok := l.dispatchers[tag]
	return d, ok
}

// bind records a newly created dispatcher.
func (l *Lifecycle) bind(d tagDispatcher) {
	l.dispatchers[d.Tag()] = d
	l.tags = append(l.tags, d.Tag())
}
