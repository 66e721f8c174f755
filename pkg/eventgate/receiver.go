package eventgate

// Executor is the dispatch context. Execute runs fn on the context's
// goroutine, either immediately or after handing it off. Implementations
// must run functions in the order they were submitted by each goroutine.
type Executor interface {
	Execute(fn func())
}

// Listener consumes events of type T on the dispatch context.
type Listener[T any] interface {
	OnEvent(event T)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc[T any] func(event T)

// OnEvent calls f(event).
func (f ListenerFunc[T]) OnEvent(event T) {
	f(event)
}

// Receiver is the capability handed to producers.
type Receiver[T any] interface {
	// PostEvent hands an event to the receiver. Safe from any goroutine and
	// never blocks waiting for delivery.
	PostEvent(event T)

	// IsDestroyed reports whether events posted now are discarded for good.
	IsDestroyed() bool

	// AddOnDestroyListener registers l to be told once when the receiver is
	// destroyed. Adding to an already destroyed receiver is a no-op.
	AddOnDestroyListener(l ReceiverDestroyListener[T])

	// RemoveOnDestroyListener unregisters l.
	RemoveOnDestroyListener(l ReceiverDestroyListener[T])
}

// ReceiverDestroyListener is notified when a receiver is destroyed.
// Implementations are compared by identity, so use pointer receivers.
type ReceiverDestroyListener[T any] interface {
	OnReceiverDestroyed(r Receiver[T])
}

// ActiveChangeListener is notified every time a lifecycle flips between
// active and inactive.
type ActiveChangeListener interface {
	OnActiveChange(active bool)
}

// DestroyListener is notified once when a lifecycle is destroyed.
type DestroyListener interface {
	OnDestroy()
}

// observers is an ordered set of listeners compared by identity.
// Notification iterates a snapshot and skips observers removed since it
// was taken, so listeners may add or remove observers while being
// notified.
type observers[L comparable] struct {
	items []L
}

func (o *observers[L]) add(l L) {
	for _, existing := range o.items {
		if existing == l {
			return
		}
	}
	o.items = append(o.items, l)
}

func (o *observers[L]) remove(l L) {
	for i, existing := range o.items {
		if existing == l {
			o.items = append(o.items[:i], o.items[i+1:]...)
			return
		}
	}
}

func (o *observers[L]) contains(l L) bool {
	for _, existing := range o.items {
		if existing == l {
			return true
		}
	}
	return false
}

func (o *observers[L]) snapshot() []L {
	if len(o.items) == 0 {
		return nil
	}
	out := make([]L, len(o.items))
	copy(out, o.items)
	return out
}

func (o *observers[L]) len() int {
	return len(o.items)
}

func (o *observers[L]) clear() {
	o.items = nil
}
