// Package store persists owner identities so a restarted process can tell
// a restored owner from a brand new one.
package store

import (
	"errors"
	"time"
)

// Store persists owner records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a record, overwriting any record with the same OwnerID.
	Save(rec Record) error

	// Load retrieves the record for ownerID.
	// Returns ErrNotFound if the owner is unknown.
	Load(ownerID string) (Record, error)

	// List returns all records ordered by creation time.
	// Returns an empty slice (not error) if the store is empty.
	List() ([]Record, error)

	// Delete removes a record.
	// Returns nil if the owner is unknown.
	Delete(ownerID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Record describes one owner identity.
type Record struct {
	OwnerID string
	// CreatedAt is when the identity was first registered.
	CreatedAt time.Time
	// RestoredAt is the last time an owner was restored under this
	// identity. Zero if never restored.
	RestoredAt time.Time
	// Restores counts restorations.
	Restores int
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates an owner record doesn't exist.
	ErrNotFound = errors.New("owner record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("owner store closed")
)
