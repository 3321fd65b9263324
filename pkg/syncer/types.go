// Package syncer replays queued local mutations to the remote store and
// pulls the remote session set back into the local cache.
//
// One sync cycle runs three phases in strict order:
//
//  1. drain: apply queued operations oldest first; failures stay queued
//     with an incremented attempt count until the maximum is reached;
//  2. guard: if anything is still queued, stop here so unconfirmed local
//     changes are never overwritten by stale remote data;
//  3. pull: merge the remote set into the local one, close duplicate
//     active sessions, push those closures and replace the local set.
//
// Cycles are started by a timer, by Trigger after local mutations and by
// NetworkRestored. At most one cycle runs at a time; requests arriving while
// one is in flight are dropped.
package syncer

import (
	"context"
	"time"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// State is the coarse sync state shown to the operator.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
	StateOffline State = "offline"
)

// Status is a snapshot of the engine's state.
type Status struct {
	State State `json:"state"`

	// Pending is the number of queued operations.
	Pending int `json:"pending"`

	// LastSync is the end of the last cycle that completed without error.
	LastSync time.Time `json:"lastSync,omitempty"`

	// LastError describes the failure of the last cycle, if any.
	LastError string `json:"lastError,omitempty"`
}

// Update is published to subscribers on every state transition and for
// every operation dropped after exhausting its attempts.
type Update struct {
	Time   time.Time
	Status Status

	// Dropped is the operation given up on, if this update reports one.
	Dropped *scan.Operation

	// Err is the last error of the dropped operation.
	Err error
}

// Result summarizes one cycle.
type Result struct {
	Pushed  int // operations confirmed by the remote store
	Failed  int // operations left queued for the next cycle
	Dropped int // operations removed after the final attempt

	// Offline is set when the cycle was skipped for lack of connectivity.
	Offline bool

	// Pulled is set when the pull phase replaced the local session set.
	Pulled bool

	// Closed counts duplicate active sessions closed during the pull.
	Closed int
}

// Connectivity reports the device-level network state.
type Connectivity interface {
	Online() bool
}

// Config holds sync engine configuration.
type Config struct {
	// Interval between timer-driven cycles. Default: 10s.
	Interval time.Duration

	// RemoteTimeout bounds every remote call. Default: 10s.
	RemoteTimeout time.Duration

	// MaxAttempts is the number of failed attempts after which an
	// operation is dropped. Default: 5.
	MaxAttempts int

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// Engine runs sync cycles.
type Engine interface {
	// Start runs the trigger loop until ctx is cancelled or Stop is called.
	// A first cycle is requested immediately.
	//
	// Returns ErrAlreadyRunning or ErrClosed.
	Start(ctx context.Context) error

	// Stop ends the trigger loop and waits for it to exit.
	Stop() error

	// Close stops the engine and closes all subscriber channels.
	Close() error

	// Trigger requests a cycle without waiting for it. The request is
	// dropped if a cycle is in flight.
	Trigger(reason string)

	// NetworkRestored requests a cycle after connectivity came back.
	NetworkRestored()

	// SyncNow runs one cycle on the caller's goroutine.
	//
	// Returns ErrSyncInProgress if a cycle is already running.
	SyncNow(ctx context.Context) (Result, error)

	// Status returns the current status.
	Status() Status

	// Subscribe returns a channel of updates and a function that
	// unsubscribes and closes it.
	Subscribe() (<-chan Update, func())
}
