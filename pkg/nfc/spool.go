package nfc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/gastmeting/pkg/logger"
)

// SpoolConfig contains spool directory settings.
type SpoolConfig struct {
	// Dir receives one file per tap; the file content is the tag id.
	// Created if missing. Supports ~ expansion.
	Dir string

	// Debounce is how long a file must stay unchanged before it is read.
	// Default: 50ms.
	Debounce time.Duration

	// CircuitBreakerThreshold is the number of consecutive watcher errors
	// after which ErrCircuitBreakerOpen is reported. Default: 5.
	CircuitBreakerThreshold int
}

// SpoolSource watches a spool directory with fsnotify.
//
// Files starting with "." or ending in ".tmp" are ignored, so a daemon can
// write to a temporary name and rename it into place. Every processed file
// is removed.
type SpoolSource struct {
	fsw    *fsnotify.Watcher
	config SpoolConfig
	logger logger.Logger

	reads  chan Read
	errors chan error
	ready  chan string

	mu       sync.Mutex
	started  bool
	closed   bool
	stopChan chan struct{}
	done     chan struct{}

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	// Consecutive watcher failures; only touched by the run goroutine.
	failureCount int
}

// NewSpoolSource creates the spool directory if needed and prepares the
// watcher.
func NewSpoolSource(cfg SpoolConfig, log logger.Logger) (*SpoolSource, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("spool directory is empty")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 50 * time.Millisecond
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if log == nil {
		log = logger.Noop()
	}
	cfg.Dir = expandHome(cfg.Dir)

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	s := &SpoolSource{
		fsw:      fsw,
		config:   cfg,
		logger:   log,
		reads:    make(chan Read, 64),
		errors:   make(chan error, 8),
		ready:    make(chan string, 64),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}

	log.Info("spool reader created",
		"dir", cfg.Dir,
		"debounce", cfg.Debounce)

	return s, nil
}

// Start implements Source.Start. Files already in the spool directory are
// delivered first, oldest first.
func (s *SpoolSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	if err := s.fsw.Add(s.config.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.config.Dir, err)
	}
	s.started = true

	go s.run(ctx)

	s.logger.Info("spool reader started", "dir", s.config.Dir)
	return nil
}

// Reads implements Source.Reads.
func (s *SpoolSource) Reads() <-chan Read { return s.reads }

// Errors implements Source.Errors.
func (s *SpoolSource) Errors() <-chan error { return s.errors }

// Close implements Source.Close.
func (s *SpoolSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	close(s.stopChan)
	s.mu.Unlock()

	s.timersMu.Lock()
	for path, t := range s.timers {
		t.Stop()
		delete(s.timers, path)
	}
	s.timersMu.Unlock()

	if started {
		<-s.done
	} else {
		close(s.reads)
		close(s.errors)
	}

	if err := s.fsw.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	s.logger.Info("spool reader closed")
	return nil
}

func (s *SpoolSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.reads)
	defer close(s.errors)

	if !s.processExisting(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("spool reader stopped", "reason", "context cancelled")
			return

		case <-s.stopChan:
			s.logger.Info("spool reader stopped", "reason", "closed")
			return

		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			if !s.handleError(ctx, err) {
				return
			}

		case path := <-s.ready:
			if !s.process(ctx, path) {
				return
			}
		}
	}
}

func (s *SpoolSource) processExisting(ctx context.Context) bool {
	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return s.emitError(ctx, fmt.Errorf("failed to list spool directory: %w", err))
	}

	type pending struct {
		path string
		mod  time.Time
	}
	var files []pending
	for _, e := range entries {
		if e.IsDir() || ignored(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, pending{filepath.Join(s.config.Dir, e.Name()), info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].mod.Equal(files[j].mod) {
			return files[i].mod.Before(files[j].mod)
		}
		return files[i].path < files[j].path
	})

	if len(files) > 0 {
		s.logger.Info("processing spooled reads", "count", len(files))
	}
	for _, f := range files {
		if !s.process(ctx, f.path) {
			return false
		}
	}
	return true
}

// handleEvent schedules a file for reading once it has been quiet for the
// debounce interval.
func (s *SpoolSource) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if ignored(filepath.Base(event.Name)) {
		return
	}

	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if t, ok := s.timers[event.Name]; ok {
		t.Stop()
	}
	path := event.Name
	s.timers[path] = time.AfterFunc(s.config.Debounce, func() {
		s.timersMu.Lock()
		delete(s.timers, path)
		s.timersMu.Unlock()

		select {
		case s.ready <- path:
		case <-s.stopChan:
		}
	})
}

// process reads and removes one spool file. It reports false once the
// source is stopping.
func (s *SpoolSource) process(ctx context.Context, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		// Already processed after a duplicate event.
		return true
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s.emitError(ctx, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err))
	}
	if err := os.Remove(path); err != nil {
		s.logger.Warn("failed to remove spool file", "path", path, "error", err)
	}

	s.failureCount = 0

	tag := normalizeTag(string(data))
	if tag == "" {
		return s.emitError(ctx, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmptyRead))
	}

	s.logger.Debug("tag read", "tag_id", tag, "file", filepath.Base(path))

	select {
	case s.reads <- Read{TagID: tag, Time: info.ModTime()}:
		return true
	case <-s.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

// handleError counts consecutive watcher failures and opens the circuit
// breaker at the threshold.
func (s *SpoolSource) handleError(ctx context.Context, err error) bool {
	s.failureCount++
	s.logger.Error("fsnotify error",
		"error", err,
		"failure_count", s.failureCount)

	if s.failureCount >= s.config.CircuitBreakerThreshold {
		s.logger.Error("circuit breaker opened",
			"threshold", s.config.CircuitBreakerThreshold)
		return s.emitError(ctx, ErrCircuitBreakerOpen)
	}
	return s.emitError(ctx, err)
}

func (s *SpoolSource) emitError(ctx context.Context, err error) bool {
	select {
	case s.errors <- err:
		return true
	case <-s.stopChan:
		return false
	case <-ctx.Done():
		return false
	default:
		s.logger.Warn("error channel full, dropping error", "error", err)
		return true
	}
}

func ignored(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp")
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
