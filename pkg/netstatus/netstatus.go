// Package netstatus reports whether the kiosk can reach the remote store.
//
// Monitor checks a remote.Pinger on an interval and publishes a Transition
// whenever the result flips. Static is a fixed signal for tests and for
// deployments that never check.
package netstatus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/remote"
)

var (
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("monitor already running")

	// ErrNotRunning is returned when Stop is called on a stopped monitor.
	ErrNotRunning = errors.New("monitor not running")
)

// Transition is one change of the connectivity state.
type Transition struct {
	Online bool
	Time   time.Time

	// Err is the last health check error. An online transition can carry
	// one when the remote answers with a non-temporary error status.
	Err error
}

// Config contains check settings.
type Config struct {
	// Interval between checks. Default: 15s.
	Interval time.Duration

	// Timeout bounds a single check. Default: 5s.
	Timeout time.Duration
}

// Static is a connectivity signal set by hand.
type Static struct {
	online atomic.Bool
}

// NewStatic returns a Static signal with the given initial state.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

// Online reports the current state.
func (s *Static) Online() bool { return s.online.Load() }

// Set changes the state.
func (s *Static) Set(online bool) { s.online.Store(online) }

// Monitor checks the remote store periodically.
type Monitor struct {
	pinger remote.Pinger
	config Config
	logger logger.Logger

	online      atomic.Bool
	transitions chan Transition

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewMonitor creates a monitor. The kiosk is assumed online until the
// first check says otherwise.
func NewMonitor(p remote.Pinger, cfg Config, log logger.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Noop()
	}
	m := &Monitor{
		pinger:      p,
		config:      cfg,
		logger:      log,
		transitions: make(chan Transition, 8),
	}
	m.online.Store(true)
	return m
}

// Online reports the result of the last check.
func (m *Monitor) Online() bool { return m.online.Load() }

// Transitions returns the channel of state changes. It is never closed.
func (m *Monitor) Transitions() <-chan Transition { return m.transitions }

// Start checks once immediately and then on every interval until ctx is
// cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})

	go m.loop(ctx, m.stopChan, m.done)
	return nil
}

// Stop ends checking and waits for the check goroutine to exit.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	close(m.stopChan)
	done := m.done
	m.mu.Unlock()

	<-done
	return nil
}

func (m *Monitor) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check pings the remote store once and records the result.
// It reports the new state.
//
// A remote that answers with a non-temporary error status, such as a
// rejected key or a wrong base URL, counts as online so that queued
// operations are attempted and the sync status reports their errors.
// Transport failures and temporary statuses (408, 429, 5xx) count as offline.
func (m *Monitor) Check(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	err := m.pinger.Ping(checkCtx)
	cancel()

	if ctx.Err() != nil {
		// Shutting down; keep the last known state.
		return m.online.Load()
	}

	online := reachable(err)
	if m.online.Swap(online) == online {
		return online
	}

	t := Transition{Online: online, Time: time.Now(), Err: err}
	switch {
	case online && err != nil:
		m.logger.Warn("remote store reachable but failing health check", "error", err)
	case online:
		m.logger.Info("remote store reachable")
	default:
		m.logger.Warn("remote store unreachable", "error", err)
	}

	select {
	case m.transitions <- t:
	default:
		m.logger.Warn("transitions channel full, dropping transition", "online", online)
	}
	return online
}

// reachable reports whether a health check result means the remote answered.
func reachable(err error) bool {
	if err == nil {
		return true
	}
	var se *remote.StatusError
	return errors.As(err, &se) && !se.Temporary()
}
