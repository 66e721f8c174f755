// Package loop provides dispatch contexts that confine event delivery and
// lifecycle state to a single goroutine.
//
// A Loop owns one goroutine (the one calling Run) and an unbounded FIFO of
// tasks. Execute never blocks the caller: producers on any goroutine hand
// work off to the loop and return immediately. Tasks submitted from the
// same goroutine run in submission order; tasks from different goroutines
// run in the order their hand-off completed.
//
//	l := loop.New(loop.WithLogger(logger))
//	go l.Run(ctx)
//	defer l.Close()
//
//	l.Execute(func() { /* runs on the loop goroutine */ })
//
// Inline is the degenerate dispatch context for hosts that are already
// single-threaded: it runs every task immediately on the caller.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
)

// Sentinel errors.
var (
	// ErrClosed indicates the loop no longer accepts tasks.
	ErrClosed = errors.New("dispatch loop closed")

	// ErrAlreadyRunning indicates Run was called on a loop that is running.
	ErrAlreadyRunning = errors.New("dispatch loop already running")
)

// PanicError captures a panic raised by a task on the loop goroutine.
type PanicError struct {
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("dispatch task panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// PanicHandler receives panics recovered on the loop goroutine.
// The default handler re-panics so faults are never swallowed.
type PanicHandler func(*PanicError)

func defaultPanicHandler(perr *PanicError) {
	panic(perr)
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for panics and backlog warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithPanicHandler replaces the default re-panicking handler.
func WithPanicHandler(h PanicHandler) Option {
	return func(l *Loop) {
		if h != nil {
			l.onPanic = h
		}
	}
}

// WithBacklogWarning logs a warning whenever the task queue grows to n
// entries. Zero disables the warning.
func WithBacklogWarning(n int) Option {
	return func(l *Loop) {
		if n >= 0 {
			l.warnAt = n
		}
	}
}

// Loop is a single-goroutine dispatch context.
type Loop struct {
	logger  *slog.Logger
	onPanic PanicHandler
	warnAt  int

	mu     sync.Mutex
	queue  []func()
	closed bool
	warned bool

	wake    chan struct{}
	done    chan struct{}
	running atomic.Bool
}

// New creates a Loop. Call Run to start processing.
func New(opts ...Option) *Loop {
	l := &Loop{
		onPanic: defaultPanicHandler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute hands fn to the loop goroutine and returns immediately.
// Tasks submitted after Close are discarded.
func (l *Loop) Execute(fn func()) {
	l.enqueue(fn)
}

// enqueue appends fn and reports whether it was accepted.
func (l *Loop) enqueue(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	depth := len(l.queue)
	warn := l.warnAt > 0 && depth >= l.warnAt && !l.warned
	if warn {
		l.warned = true
	}
	l.mu.Unlock()

	if warn {
		observability.LogQueueBacklog(l.logger, depth, l.warnAt)
	}

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// next pops the oldest task.
func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		l.warned = false
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	if len(l.queue) == 0 {
		l.queue = nil
	}
	return fn, true
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Run processes tasks on the calling goroutine until ctx is cancelled or
// Close is called. After Close, tasks already queued still run before Run
// returns nil. Cancellation returns ctx.Err() and discards queued tasks.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(l.done)

	for {
		if ctx.Err() != nil {
			l.discard()
			return ctx.Err()
		}

		if fn, ok := l.next(); ok {
			l.run(fn)
			continue
		}

		if l.isClosed() {
			return nil
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			l.discard()
			return ctx.Err()
		}
	}
}

// run executes one task with panic recovery.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			perr := &PanicError{
				Value: r,
				Stack: string(debug.Stack()),
			}
			observability.LogPanic(l.logger, perr.Value, perr.Stack)
			l.onPanic(perr)
		}
	}()
	fn()
}

// discard drops queued tasks and refuses new ones.
func (l *Loop) discard() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.queue = nil
}

// Close stops accepting tasks. Run finishes the tasks already queued and
// returns. Close does not wait; use Done for that. Safe to call repeatedly.
func (l *Loop) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Do runs fn on the loop goroutine and waits for it to finish.
// It must not be called from the loop goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.enqueue(func() {
		defer close(ran)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// Run may have executed the task just before returning.
		select {
		case <-ran:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Flush waits until the loop has no queued tasks, including tasks queued
// by the tasks it ran while flushing. It must not be called from the loop
// goroutine itself.
func (l *Loop) Flush(ctx context.Context) error {
	for {
		idle := false
		if err := l.Do(ctx, func() { idle = l.Len() == 0 }); err != nil {
			return err
		}
		if idle {
			return nil
		}
	}
}

// Inline runs every task immediately on the calling goroutine. Use it
// when the host already confines all callers to one goroutine.
type Inline struct{}

// Execute runs fn immediately.
func (Inline) Execute(fn func()) {
	fn()
}
