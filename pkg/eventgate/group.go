package eventgate

import "sync"

var _ ReceiverDestroyListener[int] = (*ReceiverGroup[int])(nil)

// ReceiverGroup is a set of receivers for fan-out. Members are compared by
// identity and removed automatically when they report destruction.
//
// The zero value is ready to use. All methods are safe from any goroutine.
type ReceiverGroup[T any] struct {
	mu      sync.Mutex
	members []Receiver[T]
}

// Register adds r to the group. Registering a member twice, or a receiver
// that is already destroyed, does nothing.
func (g *ReceiverGroup[T]) Register(r Receiver[T]) {
	if r == nil || r.IsDestroyed() {
		return
	}

	g.mu.Lock()
	for _, m := range g.members {
		if m == r {
			g.mu.Unlock()
			return
		}
	}
	g.members = append(g.members, r)
	g.mu.Unlock()

	r.AddOnDestroyListener(g)
}

// Unregister removes r from the group. Unknown receivers are ignored.
func (g *ReceiverGroup[T]) Unregister(r Receiver[T]) {
	if r == nil || !g.remove(r) {
		return
	}
	r.RemoveOnDestroyListener(g)
}

// OnReceiverDestroyed prunes a destroyed member.
func (g *ReceiverGroup[T]) OnReceiverDestroyed(r Receiver[T]) {
	g.remove(r)
}

// Broadcast posts event to every live member in registration order.
// Members destroyed since registration are pruned instead.
func (g *ReceiverGroup[T]) Broadcast(event T) {
	for _, m := range g.snapshot() {
		if m.IsDestroyed() {
			g.Unregister(m)
			continue
		}
		m.PostEvent(event)
	}
}

// Len returns the number of members.
func (g *ReceiverGroup[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

func (g *ReceiverGroup[T]) snapshot() []Receiver[T] {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Receiver[T], len(g.members))
	copy(out, g.members)
	return out
}

func (g *ReceiverGroup[T]) remove(r Receiver[T]) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, m := range g.members {
		if m == r {
			g.members = append(g.members[:i], g.members[i+1:]...)
			return true
		}
	}
	return false
}
