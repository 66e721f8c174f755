package eventgate_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/loop"
	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
	"github.com/randalmurphal/eventgate/pkg/eventgate/store"
)

func newRegistry(t *testing.T, opts ...eventgate.RegistryOption) *eventgate.Registry {
	t.Helper()
	r, err := eventgate.NewRegistry(loop.Inline{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNewRegistry_RequiresExecutor(t *testing.T) {
	_, err := eventgate.NewRegistry(nil)
	assert.ErrorIs(t, err, eventgate.ErrNilExecutor)
}

func TestRegistry_NewOwnerID(t *testing.T) {
	r := newRegistry(t)
	seen := make(map[string]bool)
	for range 100 {
		id := r.NewOwnerID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestRegistry_Create(t *testing.T) {
	r := newRegistry(t)

	owner, err := r.Create("screen-1")
	require.NoError(t, err)
	assert.Equal(t, "screen-1", owner.ID)
	require.NotNil(t, owner.Session)
	require.NotNil(t, owner.Instance)
	assert.NotSame(t, owner.Session, owner.Instance)
	assert.True(t, owner.Session.IsNew())
	assert.True(t, owner.Instance.IsNew())
	assert.Equal(t, "screen-1/session", owner.Session.ID())
	assert.Equal(t, "screen-1/instance", owner.Instance.ID())
	assert.Same(t, owner.Session, owner.Lifecycle(eventgate.KindSession))
	assert.Same(t, owner.Instance, owner.Lifecycle(eventgate.KindInstance))
	assert.Nil(t, owner.Lifecycle(eventgate.KindUnknown))

	session, err := r.Lifecycle(eventgate.KindSession, "screen-1")
	require.NoError(t, err)
	assert.Same(t, owner.Session, session)

	_, err = r.Create("screen-1")
	assert.ErrorIs(t, err, eventgate.ErrOwnerExists)

	_, err = r.Create("")
	assert.ErrorIs(t, err, eventgate.ErrEmptyOwnerID)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := newRegistry(t)

	_, err := r.Lifecycle(eventgate.KindSession, "nobody")
	require.ErrorIs(t, err, eventgate.ErrUnknownOwner)

	var ownerErr *eventgate.OwnerError
	require.True(t, errors.As(err, &ownerErr))
	assert.Equal(t, "nobody", ownerErr.OwnerID)
	assert.Equal(t, eventgate.KindSession, ownerErr.Kind)
	assert.Equal(t, "lookup", ownerErr.Op)

	_, err = r.Owner("nobody")
	assert.ErrorIs(t, err, eventgate.ErrUnknownOwner)

	_, err = r.Create("known")
	require.NoError(t, err)
	_, err = r.Lifecycle(eventgate.Kind(42), "known")
	assert.Error(t, err)
}

func TestRegistry_ResumePause(t *testing.T) {
	r := newRegistry(t)
	owner, err := r.Create("o")
	require.NoError(t, err)

	require.NoError(t, r.Resume("o"))
	assert.True(t, owner.Session.IsActive())
	assert.True(t, owner.Instance.IsActive())

	require.NoError(t, r.Pause("o"))
	assert.False(t, owner.Session.IsActive())
	assert.False(t, owner.Instance.IsActive())

	assert.ErrorIs(t, r.Resume("missing"), eventgate.ErrUnknownOwner)
}

func TestRegistry_RecreateKeepsSessionQueue(t *testing.T) {
	r := newRegistry(t)
	first, err := r.Create("calc")
	require.NoError(t, err)
	require.NoError(t, r.Resume("calc"))

	oldListener := &recorder[int]{}
	sessionRx := register[int](t, first.Session, "result", true, oldListener)
	instanceRx := register[int](t, first.Instance, "result", true, &recorder[int]{})

	// Owner instance goes away, e.g. a configuration change.
	require.NoError(t, r.Pause("calc"))
	require.NoError(t, r.Detach("calc", false))

	assert.True(t, first.Instance.IsDestroyed())
	assert.True(t, instanceRx.IsDestroyed())
	assert.False(t, first.Session.IsDestroyed())
	assert.Equal(t, 1, r.Len(eventgate.KindSession))
	assert.Equal(t, 0, r.Len(eventgate.KindInstance))

	_, err = r.Lifecycle(eventgate.KindInstance, "calc")
	assert.ErrorIs(t, err, eventgate.ErrUnknownOwner)
	assert.ErrorIs(t, r.Resume("calc"), eventgate.ErrUnknownOwner)

	// The producer finishes while nobody is attached.
	sessionRx.PostEvent(42)

	second, err := r.Restore("calc")
	require.NoError(t, err)
	assert.Same(t, first.Session, second.Session)
	assert.False(t, second.Session.IsNew())
	assert.False(t, second.Session.IsRestored())
	assert.False(t, second.Session.IsNewOrRestored())
	assert.True(t, second.Instance.IsNew())
	assert.NotSame(t, first.Instance, second.Instance)

	newListener := &recorder[int]{}
	rebound := register[int](t, second.Session, "result", true, newListener)
	assert.Same(t, sessionRx, rebound)
	require.NoError(t, r.Resume("calc"))

	assert.Equal(t, []int{42}, newListener.got())
	assert.Empty(t, oldListener.got())

	_, err = r.Restore("calc")
	assert.ErrorIs(t, err, eventgate.ErrOwnerExists)
}

func TestRegistry_RestoreLostSession(t *testing.T) {
	s := store.NewMemoryStore()
	r := newRegistry(t, eventgate.WithOwnerStore(s))

	owner, err := r.Restore("from-previous-process")
	require.NoError(t, err)
	assert.False(t, owner.Session.IsNew())
	assert.True(t, owner.Session.IsRestored())
	assert.True(t, owner.Session.IsNewOrRestored())

	rec, err := s.Load("from-previous-process")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Restores)
	assert.False(t, rec.RestoredAt.IsZero())

	_, err = r.Restore("")
	assert.ErrorIs(t, err, eventgate.ErrEmptyOwnerID)
}

func TestRegistry_FinishingDetach(t *testing.T) {
	s := store.NewMemoryStore()
	r := newRegistry(t, eventgate.WithOwnerStore(s))

	owner, err := r.Create("done")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	counter := &destroyCounter{}
	owner.Session.AddOnDestroyListener(counter)

	require.NoError(t, r.Detach("done", true))

	assert.True(t, owner.Session.IsDestroyed())
	assert.True(t, owner.Instance.IsDestroyed())
	assert.Equal(t, 1, counter.calls)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, r.Len(eventgate.KindSession))

	_, err = r.Lifecycle(eventgate.KindSession, "done")
	assert.ErrorIs(t, err, eventgate.ErrUnknownOwner)
	assert.ErrorIs(t, r.Detach("done", true), eventgate.ErrUnknownOwner)
}

func TestRegistry_CreateStoreFailure(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.Close())
	r := newRegistry(t, eventgate.WithOwnerStore(s))

	_, err := r.Create("o")
	require.ErrorIs(t, err, store.ErrStoreClosed)
	assert.Equal(t, 0, r.Len(eventgate.KindSession))
}

func TestRegistry_SQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owners.db")
	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	r := newRegistry(t, eventgate.WithOwnerStore(s))
	_, err = r.Create("a")
	require.NoError(t, err)
	_, err = r.Create("b")
	require.NoError(t, err)
	require.NoError(t, r.Detach("b", true))

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].OwnerID)
}

func TestRegistry_Close(t *testing.T) {
	r, err := eventgate.NewRegistry(loop.Inline{})
	require.NoError(t, err)

	a, err := r.Create("a")
	require.NoError(t, err)
	b, err := r.Create("b")
	require.NoError(t, err)
	require.NoError(t, r.Detach("b", false))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.True(t, a.Session.IsDestroyed())
	assert.True(t, a.Instance.IsDestroyed())
	assert.True(t, b.Session.IsDestroyed())

	_, err = r.Create("c")
	assert.ErrorIs(t, err, eventgate.ErrRegistryClosed)
	_, err = r.Restore("a")
	assert.ErrorIs(t, err, eventgate.ErrRegistryClosed)
	assert.Equal(t, 0, r.Len(eventgate.KindSession))
}

func TestRegistry_LifecycleOptions(t *testing.T) {
	r := newRegistry(t, eventgate.WithLifecycleOptions(eventgate.WithPendingLimit(1), eventgate.WithID("ignored")))
	owner, err := r.Create("o")
	require.NoError(t, err)
	assert.Equal(t, "o/session", owner.Session.ID())

	d := register[int](t, owner.Session, "t", true, &recorder[int]{})
	d.PostEvent(1)
	d.PostEvent(2)
	assert.Equal(t, 1, d.Pending())
}

func TestRegistry_DetachSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	r := newRegistry(t, eventgate.WithRegistrySpans(observability.NewSpanManagerWithProvider(tp)))

	_, err := r.Create("o")
	require.NoError(t, err)
	require.NoError(t, r.Detach("o", false))
	require.Error(t, r.Detach("missing", true))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "eventgate.owner.detach", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "session", eventgate.KindSession.String())
	assert.Equal(t, "instance", eventgate.KindInstance.String())
	assert.Equal(t, "unknown", eventgate.KindUnknown.String())
}
