package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists owner records to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite owner store.
// The path should be a file path (e.g., "./owners.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS owners (
			owner_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			restored_at TEXT NOT NULL DEFAULT '',
			restores INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO owners (owner_id, created_at, restored_at, restores)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			created_at = excluded.created_at,
			restored_at = excluded.restored_at,
			restores = excluded.restores
	`, rec.OwnerID, formatTime(rec.CreatedAt), formatTime(rec.RestoredAt), rec.Restores)
	if err != nil {
		return fmt.Errorf("save owner: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ownerID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	var created, restored string
	rec := Record{OwnerID: ownerID}
	err := s.db.QueryRow(`
		SELECT created_at, restored_at, restores FROM owners
		WHERE owner_id = ?
	`, ownerID).Scan(&created, &restored, &rec.Restores)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load owner: %w", err)
	}
	rec.CreatedAt = parseTime(created)
	rec.RestoredAt = parseTime(restored)
	return rec, nil
}

// List implements Store.
func (s *SQLiteStore) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT owner_id, created_at, restored_at, restores
		FROM owners
		ORDER BY created_at, owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var created, restored string
		if err := rows.Scan(&rec.OwnerID, &created, &restored, &rec.Restores); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		rec.CreatedAt = parseTime(created)
		rec.RestoredAt = parseTime(restored)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	return records, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`DELETE FROM owners WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("delete owner: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// Times are stored as fixed-width UTC RFC3339 so lexical order matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
