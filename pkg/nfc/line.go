package nfc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/0xmhha/gastmeting/pkg/logger"
)

// DefaultPrompt is shown before each read when the input is a terminal.
const DefaultPrompt = "Tap wristband: "

// LineSource reads one tag id per line.
//
// A blocked read of the underlying reader cannot be interrupted. If the
// reader implements io.Closer, Close closes it; otherwise the reading
// goroutine exits at the next line or at end of input.
type LineSource struct {
	in     io.Reader
	out    io.Writer
	prompt string
	tty    bool
	now    func() time.Time
	logger logger.Logger

	reads  chan Read
	errors chan error

	mu       sync.Mutex
	started  bool
	closed   bool
	stopChan chan struct{}
}

// NewLineSource reads from in. The prompt is written to out only when in is
// a terminal.
func NewLineSource(in io.Reader, out io.Writer, log logger.Logger) *LineSource {
	if log == nil {
		log = logger.Noop()
	}
	tty := false
	if f, ok := in.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &LineSource{
		in:       in,
		out:      out,
		prompt:   DefaultPrompt,
		tty:      tty,
		now:      time.Now,
		logger:   log,
		reads:    make(chan Read, 16),
		errors:   make(chan error, 4),
		stopChan: make(chan struct{}),
	}
}

// Start implements Source.Start.
func (s *LineSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	go s.run(ctx)

	s.logger.Info("line reader started", "interactive", s.tty)
	return nil
}

func (s *LineSource) run(ctx context.Context) {
	defer close(s.reads)
	defer close(s.errors)

	scanner := bufio.NewScanner(s.in)
	for {
		if s.tty && s.out != nil {
			fmt.Fprint(s.out, s.prompt)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				s.send(ctx, nil, fmt.Errorf("failed to read tag: %w", err))
			}
			s.logger.Debug("line reader input ended")
			return
		}

		tag := normalizeTag(scanner.Text())
		if tag == "" {
			if !s.send(ctx, nil, ErrEmptyRead) {
				return
			}
			continue
		}
		if !s.send(ctx, &Read{TagID: tag, Time: s.now()}, nil) {
			return
		}
	}
}

// send delivers a read or an error. It reports false once the source is
// stopping.
func (s *LineSource) send(ctx context.Context, r *Read, err error) bool {
	if r != nil {
		select {
		case s.reads <- *r:
			return true
		case <-s.stopChan:
			return false
		case <-ctx.Done():
			return false
		}
	}
	select {
	case s.errors <- err:
		return true
	case <-s.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

// Reads implements Source.Reads.
func (s *LineSource) Reads() <-chan Read { return s.reads }

// Errors implements Source.Errors.
func (s *LineSource) Errors() <-chan error { return s.errors }

// Close implements Source.Close.
func (s *LineSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stopChan)

	if !s.started {
		close(s.reads)
		close(s.errors)
	}
	if c, ok := s.in.(io.Closer); ok && s.in != os.Stdin {
		return c.Close()
	}
	return nil
}
