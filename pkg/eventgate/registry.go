package eventgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
	"github.com/randalmurphal/eventgate/pkg/eventgate/store"
)

// Kind selects which of an owner's two lifecycles an operation targets.
type Kind int

const (
	// KindUnknown is the zero Kind.
	KindUnknown Kind = iota
	// KindSession survives owner recreation. Detaching without finishing
	// only invalidates its listeners.
	KindSession
	// KindInstance lives exactly as long as one owner instance.
	KindInstance
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// Owner is the pair of lifecycles attached to one owner identity.
type Owner struct {
	ID       string
	Session  *Lifecycle
	Instance *Lifecycle
}

// Lifecycle returns the lifecycle of the given kind, or nil.
func (o Owner) Lifecycle(kind Kind) *Lifecycle {
	switch kind {
	case KindSession:
		return o.Session
	case KindInstance:
		return o.Instance
	default:
		return nil
	}
}

type ownerEntry struct {
	session  *Lifecycle
	instance *Lifecycle // nil while detached
}

// Registry maps owner identities to their lifecycles so that an owner torn
// down and recreated under the same identity finds the session lifecycle
// (and the events queued on it) that its predecessor used.
//
// A Registry is created once per process with NewRegistry and torn down
// with Close. Operations that create, activate or destroy lifecycles must
// run on the registry's dispatch context; lookups are safe from any
// goroutine.
type Registry struct {
	exec          Executor
	lifecycleOpts []Option
	store         store.Store
	logger        *slog.Logger
	spans         observability.SpanManager

	idPrefix string
	idSeq    atomic.Uint64

	mu     sync.Mutex
	owners map[string]*ownerEntry
	closed bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLifecycleOptions sets options applied to every lifecycle the
// registry creates. Lifecycle IDs are always derived from the owner ID.
func WithLifecycleOptions(opts ...Option) RegistryOption {
	return func(r *Registry) {
		r.lifecycleOpts = append(r.lifecycleOpts, opts...)
	}
}

// WithOwnerStore records owner identities in s. The registry does not
// close s.
func WithOwnerStore(s store.Store) RegistryOption {
	return func(r *Registry) {
		r.store = s
	}
}

// WithRegistryLogger sets the logger for owner attach and detach records.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRegistrySpans sets the span manager used for owner detach spans.
func WithRegistrySpans(s observability.SpanManager) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.spans = s
		}
	}
}

// NewRegistry creates an empty registry whose lifecycles run on exec.
func NewRegistry(exec Executor, opts ...RegistryOption) (*Registry, error) {
	if exec == nil {
		return nil, ErrNilExecutor
	}
	r := &Registry{
		exec:     exec,
		spans:    observability.NoopSpanManager{},
		idPrefix: uuid.NewString()[:8],
		owners:   make(map[string]*ownerEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewOwnerID returns an identity unique within this process.
func (r *Registry) NewOwnerID() string {
	return fmt.Sprintf("%s-%d", r.idPrefix, r.idSeq.Add(1))
}

// Create attaches a brand new owner under id. Both lifecycles report
// IsNew.
func (r *Registry) Create(id string) (Owner, error) {
	if id == "" {
		return Owner{}, &OwnerError{Op: "create", Err: ErrEmptyOwnerID}
	}

	r.mu.Lock()
	if err := r.checkOpen(id, "create"); err != nil {
		r.mu.Unlock()
		return Owner{}, err
	}
	if _, ok := r.owners[id]; ok {
		r.mu.Unlock()
		return Owner{}, &OwnerError{OwnerID: id, Op: "create", Err: ErrOwnerExists}
	}
	entry := &ownerEntry{
		session:  r.newLifecycle(id, KindSession),
		instance: r.newLifecycle(id, KindInstance),
	}
	r.owners[id] = entry
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Save(store.Record{OwnerID: id, CreatedAt: time.Now().UTC()}); err != nil {
			r.mu.Lock()
			delete(r.owners, id)
			r.mu.Unlock()
			entry.instance.Destroy()
			entry.session.Destroy()
			return Owner{}, &OwnerError{OwnerID: id, Op: "create", Err: err}
		}
	}

	observability.LogOwnerAttached(r.logger, id, false)
	return entry.owner(id), nil
}

// Restore attaches a recreated owner under a previously issued id.
//
// When the session lifecycle survived, it is reused: its queued events are
// kept and it reports neither IsNew nor IsRestored. When the process lost
// it, a fresh session lifecycle reporting IsRestored is created. The
// instance lifecycle is always new.
func (r *Registry) Restore(savedID string) (Owner, error) {
	if savedID == "" {
		return Owner{}, &OwnerError{Op: "restore", Err: ErrEmptyOwnerID}
	}

	r.mu.Lock()
	if err := r.checkOpen(savedID, "restore"); err != nil {
		r.mu.Unlock()
		return Owner{}, err
	}
	entry, survived := r.owners[savedID]
	if survived && entry.instance != nil {
		r.mu.Unlock()
		return Owner{}, &OwnerError{OwnerID: savedID, Kind: KindInstance, Op: "restore", Err: ErrOwnerExists}
	}
	if survived {
		entry.session.isNew = false
		entry.session.restored = false
	} else {
		session := r.newLifecycle(savedID, KindSession)
		session.isNew = false
		session.restored = true
		entry = &ownerEntry{session: session}
		r.owners[savedID] = entry
	}
	entry.instance = r.newLifecycle(savedID, KindInstance)
	r.mu.Unlock()

	if !survived {
		r.recordRestore(savedID)
	}

	observability.LogOwnerAttached(r.logger, savedID, !survived)
	return entry.owner(savedID), nil
}

// Owner returns the lifecycles attached under id.
func (r *Registry) Owner(id string) (Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.owners[id]
	if !ok {
		return Owner{}, &OwnerError{OwnerID: id, Op: "lookup", Err: ErrUnknownOwner}
	}
	return entry.owner(id), nil
}

// Lifecycle returns the lifecycle of the given kind for id. It fails with
// ErrUnknownOwner when id was never registered, was finished, or, for
// KindInstance, is currently detached.
func (r *Registry) Lifecycle(kind Kind, id string) (*Lifecycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.owners[id]
	if !ok {
		return nil, &OwnerError{OwnerID: id, Kind: kind, Op: "lookup", Err: ErrUnknownOwner}
	}
	switch kind {
	case KindSession:
		return entry.session, nil
	case KindInstance:
		if entry.instance == nil {
			return nil, &OwnerError{OwnerID: id, Kind: kind, Op: "lookup", Err: ErrUnknownOwner}
		}
		return entry.instance, nil
	default:
		return nil, &OwnerError{OwnerID: id, Kind: kind, Op: "lookup", Err: fmt.Errorf("invalid lifecycle kind %d", int(kind))}
	}
}

// Resume marks both lifecycles of an attached owner active.
func (r *Registry) Resume(id string) error {
	return r.setActive(id, "resume", true)
}

// Pause marks both lifecycles of an attached owner inactive.
func (r *Registry) Pause(id string) error {
	return r.setActive(id, "pause", false)
}

func (r *Registry) setActive(id, op string, active bool) error {
	r.mu.Lock()
	if err := r.checkOpen(id, op); err != nil {
		r.mu.Unlock()
		return err
	}
	entry, ok := r.owners[id]
	if !ok || entry.instance == nil {
		r.mu.Unlock()
		return &OwnerError{OwnerID: id, Op: op, Err: ErrUnknownOwner}
	}
	session, instance := entry.session, entry.instance
	r.mu.Unlock()

	session.SetActive(active)
	instance.SetActive(active)
	return nil
}

// Detach tears down the current owner instance. The instance lifecycle is
// always destroyed. When finishing is true the owner is gone for good and
// the session lifecycle is destroyed as well; otherwise its listeners are
// invalidated and its queues kept for the next Restore.
func (r *Registry) Detach(id string, finishing bool) (err error) {
	_, span := r.spans.StartDetachSpan(context.Background(), id, finishing)
	defer func() { r.spans.EndSpanWithError(span, err) }()

	r.mu.Lock()
	entry, ok := r.owners[id]
	if !ok || entry.instance == nil {
		r.mu.Unlock()
		return &OwnerError{OwnerID: id, Op: "detach", Err: ErrUnknownOwner}
	}
	instance := entry.instance
	entry.instance = nil
	if finishing {
		delete(r.owners, id)
	}
	r.mu.Unlock()

	instance.Destroy()
	if finishing {
		entry.session.Destroy()
		if r.store != nil {
			if serr := r.store.Delete(id); serr != nil {
				observability.LogStoreError(r.logger, id, "delete", serr)
			}
		}
	} else {
		entry.session.InvalidateListeners()
	}

	observability.LogOwnerDetached(r.logger, id, finishing)
	return nil
}

// Len returns the number of live lifecycles of the given kind.
func (r *Registry) Len(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, entry := range r.owners {
		switch kind {
		case KindSession:
			n++
		case KindInstance:
			if entry.instance != nil {
				n++
			}
		}
	}
	return n
}

// Close destroys every lifecycle and rejects further attaches. Stored
// owner records are kept so a later process can restore them.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	owners := r.owners
	r.owners = make(map[string]*ownerEntry)
	r.mu.Unlock()

	for _, entry := range owners {
		if entry.instance != nil {
			entry.instance.Destroy()
		}
		entry.session.Destroy()
	}
	return nil
}

// checkOpen must be called with r.mu held.
func (r *Registry) checkOpen(id, op string) error {
	if r.closed {
		return &OwnerError{OwnerID: id, Op: op, Err: ErrRegistryClosed}
	}
	return nil
}

func (r *Registry) newLifecycle(id string, kind Kind) *Lifecycle {
	opts := make([]Option, 0, len(r.lifecycleOpts)+1)
	opts = append(opts, r.lifecycleOpts...)
	opts = append(opts, WithID(id+"/"+kind.String()))

	// exec was checked in NewRegistry, so this cannot fail.
	l, err := NewLifecycle(r.exec, opts...)
	if err != nil {
		panic(&InvariantError{Op: "registry", Detail: err.Error()})
	}
	return l
}

// recordRestore bumps the stored restore count. Store failures do not
// block the owner, so they are only logged.
func (r *Registry) recordRestore(id string) {
	if r.store == nil {
		return
	}
	now := time.Now().UTC()
	rec, err := r.store.Load(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = store.Record{OwnerID: id, CreatedAt: now}
	case err != nil:
		observability.LogStoreError(r.logger, id, "load", err)
		return
	}
	rec.RestoredAt = now
	rec.Restores++
	if err := r.store.Save(rec); err != nil {
		observability.LogStoreError(r.logger, id, "save", err)
	}
}

func (e *ownerEntry) owner(id string) Owner {
	return Owner{ID: id, Session: e.session, Instance: e.instance}
}
