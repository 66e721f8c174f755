package eventgate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
)

func TestNewLifecycle(t *testing.T) {
	t.Run("requires executor", func(t *testing.T) {
		_, err := eventgate.NewLifecycle(nil)
		assert.ErrorIs(t, err, eventgate.ErrNilExecutor)
	})

	t.Run("starts inactive and new", func(t *testing.T) {
		lc := newLifecycle(t)
		assert.False(t, lc.IsActive())
		assert.False(t, lc.IsDestroyed())
		assert.True(t, lc.IsNew())
		assert.False(t, lc.IsRestored())
		assert.True(t, lc.IsNewOrRestored())
		assert.NotEmpty(t, lc.ID())
		assert.NotNil(t, lc.Executor())
	})

	t.Run("custom id", func(t *testing.T) {
		lc := newLifecycle(t, eventgate.WithID("screen-1"))
		assert.Equal(t, "screen-1", lc.ID())
	})
}

func TestLifecycle_ActiveChangeListeners(t *testing.T) {
	lc := newLifecycle(t)

	first := &activeRecorder{}
	second := &activeRecorder{}
	lc.AddActiveChangeListener(first)
	lc.AddActiveChangeListener(second)
	lc.AddActiveChangeListener(first) // duplicate ignored

	lc.SetActive(true)
	lc.SetActive(true) // not a flip
	lc.SetActive(false)
	lc.SetActive(false)
	lc.SetActive(true)

	assert.Equal(t, []bool{true, false, true}, first.changes)
	assert.Equal(t, []bool{true, false, true}, second.changes)

	lc.RemoveActiveChangeListener(first)
	lc.SetActive(false)
	assert.Len(t, first.changes, 3)
	assert.Len(t, second.changes, 4)
}

func TestLifecycle_ActiveChangeListenerOrder(t *testing.T) {
	lc := newLifecycle(t)

	var order []int
	for i := range 3 {
		lc.AddActiveChangeListener(&orderedListener{id: i, out: &order})
	}
	lc.SetActive(true)

	assert.Equal(t, []int{0, 1, 2}, order)
}

type orderedListener struct {
	id  int
	out *[]int
}

func (o *orderedListener) OnActiveChange(bool) { *o.out = append(*o.out, o.id) }

func TestLifecycle_Destroy(t *testing.T) {
	t.Run("fires destroy listeners exactly once", func(t *testing.T) {
		lc := newLifecycle(t)
		counter := &destroyCounter{}
		lc.AddOnDestroyListener(counter)

		lc.Destroy()
		lc.Destroy()
		lc.Destroy()

		assert.Equal(t, 1, counter.calls)
		assert.True(t, lc.IsDestroyed())
	})

	t.Run("removed listener is not called", func(t *testing.T) {
		lc := newLifecycle(t)
		counter := &destroyCounter{}
		lc.AddOnDestroyListener(counter)
		lc.RemoveOnDestroyListener(counter)

		lc.Destroy()
		assert.Equal(t, 0, counter.calls)
	})

	t.Run("adding after destroy is a no-op", func(t *testing.T) {
		lc := newLifecycle(t)
		lc.Destroy()

		counter := &destroyCounter{}
		lc.AddOnDestroyListener(counter)
		lc.Destroy()
		assert.Equal(t, 0, counter.calls)
	})

	t.Run("re-entrant destroy from a listener", func(t *testing.T) {
		lc := newLifecycle(t)
		counter := &destroyCounter{}
		counter.hook = lc.Destroy
		lc.AddOnDestroyListener(counter)

		lc.Destroy()
		assert.Equal(t, 1, counter.calls)
	})

	t.Run("terminal state", func(t *testing.T) {
		lc := newLifecycle(t)
		active := &activeRecorder{}
		lc.AddActiveChangeListener(active)
		lc.SetActive(true)

		_ = register[int](t, lc, "t", true, &recorder[int]{})
		lc.Destroy()

		assert.False(t, lc.IsActive())
		assert.Empty(t, lc.Tags())

		lc.SetActive(true)
		assert.False(t, lc.IsActive())
		assert.Equal(t, []bool{true}, active.changes)
	})

	t.Run("listeners are unbound before destroy listeners run", func(t *testing.T) {
		lc := newLifecycle(t)
		lc.SetActive(true)
		rec := &recorder[int]{}
		d := register[int](t, lc, "t", true, rec)

		// A destroy listener posting to a dispatcher must not reach the
		// listener.
		counter := &destroyCounter{hook: func() { d.PostEvent(99) }}
		lc.AddOnDestroyListener(counter)

		lc.Destroy()
		assert.Equal(t, 1, counter.calls)
		assert.Empty(t, rec.got())
	})

	t.Run("rebinding during destroy does not deliver", func(t *testing.T) {
		lc := newLifecycle(t)
		lc.SetActive(true)

		// Registered before the dispatcher, so it runs before the
		// dispatcher hears about the destroy.
		var d *eventgate.Dispatcher[int]
		rec := &recorder[int]{}
		var activeDuring bool
		counter := &destroyCounter{hook: func() {
			activeDuring = lc.IsActive()
			d.SetListener(rec)
			d.PostEvent(99)
		}}
		lc.AddOnDestroyListener(counter)
		d = register[int](t, lc, "t", true, &recorder[int]{})

		lc.Destroy()
		assert.Equal(t, 1, counter.calls)
		assert.False(t, activeDuring)
		assert.Empty(t, rec.got())
		assert.True(t, d.IsDestroyed())
		assert.Equal(t, 0, d.Pending())
	})

	t.Run("listener removed by an earlier listener is not called", func(t *testing.T) {
		lc := newLifecycle(t)
		second := &destroyCounter{}
		first := &destroyCounter{hook: func() { lc.RemoveOnDestroyListener(second) }}
		lc.AddOnDestroyListener(first)
		lc.AddOnDestroyListener(second)

		lc.Destroy()
		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 0, second.calls)
	})
}

func TestLifecycle_ActiveChangeListenerRemovedDuringNotification(t *testing.T) {
	lc := newLifecycle(t)
	second := &activeRecorder{}
	first := &removingActiveListener{lc: lc, target: second}
	lc.AddActiveChangeListener(first)
	lc.AddActiveChangeListener(second)

	lc.SetActive(true)
	assert.Equal(t, 1, first.calls)
	assert.Empty(t, second.changes)

	lc.SetActive(false)
	assert.Equal(t, 2, first.calls)
	assert.Empty(t, second.changes)
}

type removingActiveListener struct {
	lc     *eventgate.Lifecycle
	target eventgate.ActiveChangeListener
	calls  int
}

func (r *removingActiveListener) OnActiveChange(bool) {
	r.calls++
	r.lc.RemoveActiveChangeListener(r.target)
}

func TestLifecycle_Tags(t *testing.T) {
	lc := newLifecycle(t)
	_ = register[int](t, lc, "b", false, nil)
	_ = register[string](t, lc, "a", false, nil)
	_ = register[int](t, lc, "b", false, nil)

	tags := lc.Tags()
	assert.Equal(t, []string{"b", "a"}, tags)

	tags[0] = "mutated"
	assert.Equal(t, []string{"b", "a"}, lc.Tags())
}

func TestLifecycle_InvalidateListeners(t *testing.T) {
	lc := newLifecycle(t)
	lc.SetActive(true)

	first := &recorder[int]{}
	d := register[int](t, lc, "t", true, first)
	d.PostEvent(1)

	lc.InvalidateListeners()
	d.PostEvent(2)
	d.PostEvent(3)

	require.Equal(t, []int{1}, first.got())
	assert.Equal(t, 2, d.Pending())
	assert.False(t, lc.IsDestroyed())

	second := &recorder[int]{}
	_ = register[int](t, lc, "t", true, second)
	assert.Equal(t, []int{2, 3}, second.got())
	assert.Equal(t, []int{1}, first.got())
	assert.Equal(t, 0, d.Pending())
}
