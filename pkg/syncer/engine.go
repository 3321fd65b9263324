package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/remote"
	"github.com/0xmhha/gastmeting/pkg/store"
)

const subscriberBuffer = 16

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// engine implements the Engine interface.
type engine struct {
	config Config
	local  store.Store
	remote remote.Store
	conn   Connectivity
	logger logger.Logger

	// inFlight is set for the duration of a cycle.
	inFlight atomic.Bool
	triggers chan string

	mu       sync.RWMutex
	status   Status
	running  bool
	closed   bool
	stopChan chan struct{}
	done     chan struct{}

	subs    map[int]chan Update
	nextSub int
}

// New creates a sync engine.
//
// Parameters:
//   - cfg: Engine configuration; zero fields take their defaults
//   - local: Local store holding sessions and the operation queue
//   - rs: Remote session store
//   - conn: Connectivity signal, or nil to assume the device is online
//   - log: Logger instance
//
// Returns:
//   - Engine that is not yet started
func New(cfg Config, local store.Store, rs remote.Store, conn Connectivity, log logger.Logger) Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if conn == nil {
		conn = alwaysOnline{}
	}
	if log == nil {
		log = logger.Noop()
	}

	e := &engine{
		config:   cfg,
		local:    local,
		remote:   rs,
		conn:     conn,
		logger:   log,
		triggers: make(chan string, 1),
		status:   Status{State: StateIdle},
		subs:     make(map[int]chan Update),
	}

	log.Info("sync engine created",
		"interval", cfg.Interval,
		"remote_timeout", cfg.RemoteTimeout,
		"max_attempts", cfg.MaxAttempts)

	return e
}

// Start implements Engine.Start.
func (e *engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.done = make(chan struct{})
	stop, done := e.stopChan, e.done
	e.mu.Unlock()

	go e.loop(ctx, stop, done)
	e.Trigger("startup")

	e.logger.Info("sync engine started")
	return nil
}

// Stop implements Engine.Stop.
func (e *engine) Stop() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.running = false
	close(e.stopChan)
	done := e.done
	e.mu.Unlock()

	<-done
	e.logger.Info("sync engine stopped")
	return nil
}

// Close implements Engine.Close.
func (e *engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	var done chan struct{}
	if e.running {
		e.running = false
		close(e.stopChan)
		done = e.done
	}
	e.closed = true
	e.mu.Unlock()

	if done != nil {
		<-done
	}

	e.mu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.mu.Unlock()

	e.logger.Info("sync engine closed")
	return nil
}

// loop consumes timer ticks and triggers until stopped.
func (e *engine) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			return

		case <-stop:
			return

		case <-ticker.C:
			e.run(ctx, "timer")

		case reason := <-e.triggers:
			e.run(ctx, reason)
		}
	}
}

func (e *engine) run(ctx context.Context, reason string) {
	e.logger.Debug("sync cycle requested", "reason", reason)
	if _, err := e.SyncNow(ctx); err == ErrSyncInProgress {
		e.logger.Debug("sync already in progress, skipping", "reason", reason)
	}
}

// Trigger implements Engine.Trigger.
func (e *engine) Trigger(reason string) {
	if e.inFlight.Load() {
		e.logger.Debug("sync in progress, dropping trigger", "reason", reason)
		return
	}
	select {
	case e.triggers <- reason:
	default:
		// A request is already pending; it covers this one.
	}
}

// NetworkRestored implements Engine.NetworkRestored.
func (e *engine) NetworkRestored() {
	e.logger.Info("connection restored, triggering sync")
	e.Trigger("network restored")
}

// Status implements Engine.Status.
func (e *engine) Status() Status {
	e.mu.RLock()
	st := e.status
	e.mu.RUnlock()

	if n, err := e.local.PendingCount(); err == nil {
		st.Pending = n
	}
	return st
}

// Subscribe implements Engine.Subscribe.
func (e *engine) Subscribe() (<-chan Update, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Update, subscriberBuffer)
	if e.closed {
		close(ch)
		return ch, func() {}
	}

	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if sub, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(sub)
			}
		})
	}
}

// setState records a transition and notifies subscribers.
func (e *engine) setState(state State, lastErr error) {
	pending, err := e.local.PendingCount()
	if err != nil {
		e.logger.Warn("failed to count pending operations", "error", err)
	}

	e.mu.Lock()
	e.status.State = state
	e.status.Pending = pending
	switch {
	case lastErr != nil:
		e.status.LastError = lastErr.Error()
	case state == StateIdle:
		e.status.LastError = ""
		e.status.LastSync = e.config.Now()
	}
	update := Update{Time: e.config.Now(), Status: e.status}
	e.mu.Unlock()

	e.publish(update)
}

// publish sends an update to every subscriber without blocking.
func (e *engine) publish(u Update) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.subs {
		select {
		case ch <- u:
		default:
			e.logger.Warn("updates channel full, dropping update", "state", u.Status.State)
		}
	}
}
