package eventgate

import (
	"sync"
	"sync/atomic"
)

var _ Receiver[int] = (*UnmanagedReceiver[int])(nil)

// UnmanagedReceiver is a Receiver with thread confinement but no lifecycle.
// Every event posted before Destroy is handed to the listener on the
// dispatch context. There is no queueing and no readiness gate.
type UnmanagedReceiver[T any] struct {
	exec     Executor
	listener Listener[T]

	destroyed atomic.Bool

	mu               sync.Mutex
	destroyListeners observers[ReceiverDestroyListener[T]]
}

// NewUnmanagedReceiver creates a receiver delivering to listener on exec.
func NewUnmanagedReceiver[T any](exec Executor, listener Listener[T]) (*UnmanagedReceiver[T], error) {
	if exec == nil {
		return nil, ErrNilExecutor
	}
	if listener == nil {
		return nil, ErrNilListener
	}
	return &UnmanagedReceiver[T]{exec: exec, listener: listener}, nil
}

// PostEvent hands event to the dispatch context. Events still in flight
// when Destroy runs are dropped.
func (r *UnmanagedReceiver[T]) PostEvent(event T) {
	if r.destroyed.Load() {
		return
	}
	r.exec.Execute(func() {
		if r.destroyed.Load() {
			return
		}
		r.listener.OnEvent(event)
	})
}

// IsDestroyed reports whether Destroy has been called.
func (r *UnmanagedReceiver[T]) IsDestroyed() bool {
	return r.destroyed.Load()
}

// AddOnDestroyListener registers l to be told once when the receiver is
// destroyed.
func (r *UnmanagedReceiver[T]) AddOnDestroyListener(l ReceiverDestroyListener[T]) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed.Load() {
		return
	}
	r.destroyListeners.add(l)
}

// RemoveOnDestroyListener unregisters l.
func (r *UnmanagedReceiver[T]) RemoveOnDestroyListener(l ReceiverDestroyListener[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyListeners.remove(l)
}

// Destroy stops delivery and notifies destroy listeners on the dispatch
// context. Safe to call from any goroutine; later calls are no-ops.
func (r *UnmanagedReceiver[T]) Destroy() {
	if !r.destroyed.CompareAndSwap(false, true) {
		return
	}

	r.mu.Lock()
	listeners := r.destroyListeners.snapshot()
	r.mu.Unlock()

	if len(listeners) == 0 {
		return
	}
	r.exec.Execute(func() {
		for _, l := range listeners {
			r.mu.Lock()
			registered := r.destroyListeners.contains(l)
			r.mu.Unlock()
			if registered {
				l.OnReceiverDestroyed(r)
			}
		}
		r.mu.Lock()
		r.destroyListeners.clear()
		r.mu.Unlock()
	})
}
