// Package nfc turns wristband reader output into a stream of tag reads.
//
// Two sources are provided. LineSource reads keyboard-wedge readers that
// type the tag serial followed by Enter. SpoolSource watches a directory
// where a reader daemon drops one file per tap.
//
// Reads are not deduplicated: tapping the same band twice yields two reads.
//
// Example usage:
//
//	src, err := nfc.NewSpoolSource(nfc.SpoolConfig{Dir: "/var/spool/nfc"}, log)
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	if err := src.Start(ctx); err != nil {
//	    return err
//	}
//	for r := range src.Reads() {
//	    fmt.Println(r.TagID)
//	}
package nfc

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrClosed is returned when using a closed source.
	ErrClosed = errors.New("nfc source closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("nfc source already started")

	// ErrEmptyRead is reported on Errors for a read without a tag id.
	ErrEmptyRead = errors.New("empty tag read")

	// ErrCircuitBreakerOpen is reported when the spool watcher keeps failing.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
)

// Read is one successful tap.
type Read struct {
	TagID string
	Time  time.Time
}

// Source produces tag reads.
type Source interface {
	// Start begins reading in the background.
	Start(ctx context.Context) error

	// Reads returns the channel of tag reads. It is closed when the source
	// stops.
	Reads() <-chan Read

	// Errors returns the channel of read failures. It is closed when the
	// source stops.
	Errors() <-chan error

	// Close stops the source and releases resources.
	Close() error
}

// normalizeTag trims whitespace and a trailing NUL some readers append.
func normalizeTag(raw string) string {
	return strings.TrimSpace(strings.TrimRight(raw, "\x00"))
}
