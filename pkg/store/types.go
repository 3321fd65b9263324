// Package store provides the kiosk's local durable cache.
//
// The store holds two collections: the sessions known to this kiosk and the
// queue of operations not yet confirmed by the remote store. Every write is
// atomic per record, so a crash in the middle of a write never corrupts
// other records.
//
// Example usage:
//
//	st, durable := store.OpenOrMemory(store.Config{
//	    Engine: "bolt",
//	    Path:   "~/.local/share/gastmeting/kiosk.db",
//	}, log)
//	defer st.Close()
//	if !durable {
//	    log.Warn("running without persistence")
//	}
//
//	if err := st.PutSession(s); err != nil {
//	    return err
//	}
//	if err := st.Enqueue(scan.NewCreate(s, time.Now())); err != nil {
//	    return err
//	}
package store

import (
	"time"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Engine names accepted by Open.
const (
	EngineBolt   = "bolt"
	EngineBadger = "badger"
	EngineMemory = "memory"
)

// Store is the local durable cache of sessions and pending operations.
type Store interface {
	// Sessions returns all stored sessions in no particular order.
	Sessions() ([]scan.Session, error)

	// Session returns the session with the given id.
	//
	// Returns ErrNotFound (matching scan.ErrNotFound) if it does not exist.
	Session(id string) (*scan.Session, error)

	// PutSession inserts or overwrites a session.
	PutSession(s scan.Session) error

	// DeleteSession removes a session. A missing id is not an error.
	DeleteSession(id string) error

	// ReplaceSessions atomically replaces the whole session collection.
	ReplaceSessions(sessions []scan.Session) error

	// Enqueue inserts or overwrites an operation, keyed by its id.
	Enqueue(op scan.Operation) error

	// Queue returns pending operations ordered by enqueue time, then id.
	Queue() ([]scan.Operation, error)

	// RemoveOperation deletes an operation. A missing id is not an error.
	RemoveOperation(id string) error

	// ReplaceQueue atomically replaces the whole queue.
	ReplaceQueue(ops []scan.Operation) error

	// PendingCount returns the number of queued operations.
	PendingCount() (int, error)

	// Close releases resources.
	Close() error
}

// Config contains local store configuration.
type Config struct {
	// Engine selects the backend: bolt (default), badger or memory.
	Engine string

	// Path is the bolt database file or the badger directory.
	// Supports ~ expansion.
	Path string

	// Timeout bounds waiting for the bolt file lock. Default: 1s.
	Timeout time.Duration
}
