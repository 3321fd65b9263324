package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xmhha/gastmeting/pkg/reconcile"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// SyncNow implements Engine.SyncNow.
func (e *engine) SyncNow(ctx context.Context) (Result, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer e.inFlight.Store(false)

	if !e.conn.Online() {
		e.logger.Debug("device offline, skipping sync cycle")
		e.setState(StateOffline, nil)
		return Result{Offline: true}, nil
	}

	e.setState(StateSyncing, nil)

	res, err := e.cycle(ctx)
	if err != nil {
		e.logger.Warn("sync cycle incomplete",
			"pushed", res.Pushed,
			"failed", res.Failed,
			"dropped", res.Dropped,
			"error", err)
		e.setState(StateError, err)
		return res, err
	}

	e.logger.Info("sync cycle completed",
		"pushed", res.Pushed,
		"dropped", res.Dropped,
		"closed", res.Closed,
		"pulled", res.Pulled)
	e.setState(StateIdle, nil)
	return res, nil
}

func (e *engine) cycle(ctx context.Context) (Result, error) {
	var res Result

	if err := e.drain(ctx, &res); err != nil {
		return res, err
	}

	pending, err := e.local.PendingCount()
	if err != nil {
		return res, scan.E(scan.ErrStoreUnavailable, "sync", "", err)
	}
	if pending > 0 {
		return res, fmt.Errorf("%d operations failed: %w", pending, ErrPendingChanges)
	}

	if err := e.pull(ctx, &res); err != nil {
		return res, err
	}
	return res, nil
}

// drain replays the queue oldest first. A failed operation stays queued
// with one more attempt recorded, or is dropped once it reaches MaxAttempts.
func (e *engine) drain(ctx context.Context, res *Result) error {
	ops, err := e.local.Queue()
	if err != nil {
		return scan.E(scan.ErrStoreUnavailable, "sync", "", err)
	}

	for _, op := range ops {
		if ctx.Err() != nil {
			// Cancellation is not the operation's fault.
			res.Failed++
			continue
		}

		opCtx, cancel := context.WithTimeout(ctx, e.config.RemoteTimeout)
		applyErr := e.apply(opCtx, op)
		cancel()

		if applyErr == nil {
			if err := e.local.RemoveOperation(op.ID); err != nil {
				return scan.E(scan.ErrStoreUnavailable, "sync", op.ID, err)
			}
			res.Pushed++
			e.logger.Debug("operation confirmed", "operation", op.String())
			continue
		}

		if ctx.Err() != nil {
			res.Failed++
			continue
		}

		op.Attempts++
		if op.Attempts >= e.config.MaxAttempts {
			if err := e.local.RemoveOperation(op.ID); err != nil {
				return scan.E(scan.ErrStoreUnavailable, "sync", op.ID, err)
			}
			res.Dropped++
			e.logger.Error("dropping operation after final attempt",
				"operation_id", op.ID,
				"kind", op.Kind,
				"session_id", op.SessionID,
				"attempts", op.Attempts,
				"error", applyErr)
			dropped := op
			e.mu.RLock()
			status := e.status
			e.mu.RUnlock()
			e.publish(Update{Time: e.config.Now(), Status: status, Dropped: &dropped, Err: applyErr})
			continue
		}

		if err := e.local.Enqueue(op); err != nil {
			return scan.E(scan.ErrStoreUnavailable, "sync", op.ID, err)
		}
		res.Failed++
		e.logger.Warn("operation failed, will retry",
			"operation_id", op.ID,
			"kind", op.Kind,
			"attempts", op.Attempts,
			"error", applyErr)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// apply sends one operation to the remote store.
//
// A create the remote already has and a delete of a record the remote no
// longer has count as confirmed. An update of an unknown record does not.
func (e *engine) apply(ctx context.Context, op scan.Operation) error {
	switch op.Kind {
	case scan.KindCreate:
		if op.Session == nil {
			return scan.E(scan.ErrInvalid, "replay", op.ID, errors.New("create without session"))
		}
		_, err := e.remote.CreateSession(ctx, *op.Session)
		if errors.Is(err, scan.ErrConflict) {
			e.logger.Debug("session already on remote", "session_id", op.SessionID)
			return nil
		}
		return err

	case scan.KindUpdate:
		if op.Patch == nil {
			return scan.E(scan.ErrInvalid, "replay", op.ID, errors.New("update without patch"))
		}
		_, err := e.remote.UpdateSession(ctx, op.SessionID, *op.Patch)
		return err

	case scan.KindDelete:
		err := e.remote.DeleteSession(ctx, op.SessionID)
		if errors.Is(err, scan.ErrNotFound) {
			return nil
		}
		return err
	}
	return scan.E(scan.ErrInvalid, "replay", op.ID, fmt.Errorf("unknown kind %q", op.Kind))
}

// pull merges the remote set into the local one, closes duplicate actives
// and replaces the local set unless new operations were queued meanwhile.
func (e *engine) pull(ctx context.Context, res *Result) error {
	listCtx, cancel := context.WithTimeout(ctx, e.config.RemoteTimeout)
	remoteSessions, err := e.remote.ListSessions(listCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to fetch remote sessions: %w", err)
	}

	localSessions, err := e.local.Sessions()
	if err != nil {
		return scan.E(scan.ErrStoreUnavailable, "sync", "", err)
	}

	now := e.config.Now()
	merged := reconcile.Merge(remoteSessions, localSessions)
	deduped := reconcile.Dedupe(merged, now)
	res.Closed = len(deduped.Closed)

	for _, c := range deduped.Closed {
		e.logger.Warn("closed duplicate active session",
			"tag_id", c.TagID,
			"session_id", c.SessionID,
			"exit_time", c.ExitTime)

		pushCtx, cancel := context.WithTimeout(ctx, e.config.RemoteTimeout)
		_, err := e.remote.UpdateSession(pushCtx, c.SessionID, scan.Patch{ExitTime: c.ExitTime})
		cancel()
		if err != nil {
			// The next pull recomputes the closure.
			e.logger.Warn("failed to push forced closure",
				"session_id", c.SessionID,
				"error", err)
		}
	}

	pending, err := e.local.PendingCount()
	if err != nil {
		return scan.E(scan.ErrStoreUnavailable, "sync", "", err)
	}
	if pending > 0 {
		e.logger.Info("operations queued during pull, keeping local sessions", "pending", pending)
		return nil
	}

	if err := e.local.ReplaceSessions(deduped.Sessions); err != nil {
		return scan.E(scan.ErrStoreUnavailable, "sync", "", err)
	}
	res.Pulled = true
	return nil
}
