package store

import (
	"errors"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = scan.ErrNotFound

	// ErrUnknownEngine is returned for an unsupported engine name.
	ErrUnknownEngine = errors.New("unknown storage engine")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("store closed")
)
