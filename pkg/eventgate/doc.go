// Package eventgate delivers events from background producers to consumers
// only while an owner (a screen, a session, a connection handler) is active,
// and never after the owner is permanently gone.
//
// # Overview
//
//   - Lifecycle: active/destroyed state of one owner plus a registry of
//     per-tag dispatchers
//   - Dispatcher: per (lifecycle, tag) binding with a replaceable listener
//     and a pending-event queue
//   - Receiver: the narrow capability handed to producers
//   - ReceiverGroup: a self-pruning set of receivers for fan-out
//   - UnmanagedReceiver: a receiver with thread confinement but no gating
//   - Registry: owner identity to Lifecycle map that survives owner
//     recreation
//
// # Dispatch Context
//
// All lifecycle and dispatcher state lives on one dispatch context, an
// Executor. Producers may call PostEvent from any goroutine; the event is
// handed to the executor and evaluated there. Everything else (SetActive,
// Destroy, RegisterListener, listener callbacks) runs on the dispatch
// context. See package loop for the goroutine-backed implementation.
//
//	l := loop.New()
//	go l.Run(ctx)
//
//	lc, _ := eventgate.NewLifecycle(l)
//	l.Execute(func() {
//	    rx, _ := eventgate.RegisterListener(lc, "results", true,
//	        eventgate.ListenerFunc[int](func(n int) { fmt.Println(n) }))
//	    go compute(rx) // producer posts from its own goroutine
//	    lc.SetActive(true)
//	})
//
// # Delivery Rules
//
// A dispatcher is ready when its lifecycle is active, a listener is bound,
// and it is not destroyed. A posted event is delivered immediately when
// ready, appended to the pending queue when the dispatcher stores events
// while inactive, and dropped otherwise. Pending events are delivered in
// FIFO order as soon as the dispatcher becomes ready again, either because
// the lifecycle turned active or because a new listener was bound.
//
// Registering the same tag again rebinds the existing dispatcher, so a
// recreated owner receives everything queued for its predecessor. The
// storeWhileInactive flag is fixed by the first registration of a tag and
// later values are ignored.
//
// # Teardown
//
// InvalidateListeners unbinds every listener but keeps queues: the owner
// instance is gone but may come back. Destroy is final: it drops queued
// events, notifies destroy listeners once, and releases everything so
// producers holding a receiver keep nothing alive.
package eventgate
