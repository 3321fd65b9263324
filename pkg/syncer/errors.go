package syncer

import "errors"

var (
	// ErrAlreadyRunning is returned when Start is called on a running engine.
	ErrAlreadyRunning = errors.New("sync engine already running")

	// ErrNotRunning is returned when Stop is called on a stopped engine.
	ErrNotRunning = errors.New("sync engine not running")

	// ErrClosed is returned when the engine has been closed.
	ErrClosed = errors.New("sync engine closed")

	// ErrSyncInProgress is returned by SyncNow while another cycle runs.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrPendingChanges is reported when the pull phase is skipped because
	// operations are still queued.
	ErrPendingChanges = errors.New("pending operations remain, pull skipped")
)
