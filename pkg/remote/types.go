// Package remote defines the contract between the sync engine and the
// authoritative session store, plus helpers shared by its backends.
//
// Backends live in sub-packages: httpapi (the kiosk REST API), filestore
// (a JSON file), s3store (a JSON object in S3), pgstore (PostgreSQL) and
// redisstore (Redis). All of them report missing records with
// scan.ErrNotFound and duplicate ids with scan.ErrConflict.
package remote

import (
	"context"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Store is the authoritative remote session store.
type Store interface {
	// ListSessions returns every session known to the remote store.
	//
	// Records that fail validation are dropped, never returned.
	ListSessions(ctx context.Context) ([]scan.Session, error)

	// CreateSession stores a new session.
	//
	// Returns scan.ErrConflict if the session id already exists.
	CreateSession(ctx context.Context, s scan.Session) (scan.Session, error)

	// UpdateSession applies a patch to an existing session.
	//
	// Returns scan.ErrNotFound if the id is unknown. A closed session keeps
	// its stored exit time.
	UpdateSession(ctx context.Context, id string, p scan.Patch) (scan.Session, error)

	// DeleteSession removes a session.
	//
	// Returns scan.ErrNotFound if the id is unknown.
	DeleteSession(ctx context.Context, id string) error

	// FindActiveByTag returns the most recent active session of tagID,
	// or nil if the tag has none.
	FindActiveByTag(ctx context.Context, tagID string) (*scan.Session, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Pinger is the subset of Store used for connectivity checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
