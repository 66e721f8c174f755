package eventgate

import (
	"errors"
	"fmt"
)

// Sentinel errors for lifecycle and dispatcher usage.
var (
	// ErrNilExecutor indicates a constructor was given no dispatch context.
	ErrNilExecutor = errors.New("executor is required")

	// ErrNilListener indicates an unmanaged receiver was created without an
	// event handler.
	ErrNilListener = errors.New("listener is required")

	// ErrEmptyTag indicates RegisterListener was called with an empty tag.
	ErrEmptyTag = errors.New("tag is required")

	// ErrLifecycleDestroyed indicates a registration on a destroyed lifecycle.
	ErrLifecycleDestroyed = errors.New("lifecycle destroyed")

	// ErrNilLifecycle indicates RegisterListener was called without a
	// lifecycle.
	ErrNilLifecycle = errors.New("lifecycle is required")

	// ErrTagTypeMismatch indicates a tag was registered again with a
	// different event type.
	ErrTagTypeMismatch = errors.New("tag registered with a different event type")
)

// Sentinel errors for the owner registry.
var (
	// ErrEmptyOwnerID indicates an owner operation without an identity.
	ErrEmptyOwnerID = errors.New("owner id is required")

	// ErrUnknownOwner indicates a lookup for an identity that was never
	// registered, or was already finished.
	ErrUnknownOwner = errors.New("owner not registered")

	// ErrOwnerExists indicates an owner instance is already attached under
	// the identity.
	ErrOwnerExists = errors.New("owner already attached")

	// ErrRegistryClosed indicates the registry has been torn down.
	ErrRegistryClosed = errors.New("registry closed")
)

// TagError wraps a registration failure with its tag.
type TagError struct {
	// Tag is the dispatcher tag.
	Tag string
	// Op is the operation that failed.
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TagError) Error() string {
	return fmt.Sprintf("tag %q: %s: %v", e.Tag, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TagError) Unwrap() error {
	return e.Err
}

// OwnerError wraps a registry failure with the owner identity.
type OwnerError struct {
	// OwnerID is the owner identity.
	OwnerID string
	// Kind is the lifecycle kind involved, if any.
	Kind Kind
	// Op is the operation that failed ("create", "restore", "lookup", ...).
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *OwnerError) Error() string {
	if e.Kind != KindUnknown {
		return fmt.Sprintf("owner %q (%s): %s: %v", e.OwnerID, e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("owner %q: %s: %v", e.OwnerID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OwnerError) Unwrap() error {
	return e.Err
}

// InvariantError is the panic value raised when the dispatch logic reaches
// a state its own guards should make impossible. It signals a bug in this
// package, not a recoverable condition.
type InvariantError struct {
	// Op is the operation that detected the violation.
	Op string
	// Detail describes the violated invariant.
	Detail string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("eventgate invariant violated in %s: %s", e.Op, e.Detail)
}
