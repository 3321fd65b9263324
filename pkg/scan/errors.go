package scan

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Use errors.Is to test for them.
var (
	// ErrNotFound is returned when no session matches the request.
	ErrNotFound = errors.New("session not found")

	// ErrConflict is returned when a session with the same id already exists.
	ErrConflict = errors.New("session already exists")

	// ErrInvalid is returned for sessions or inputs that fail validation.
	ErrInvalid = errors.New("invalid session")

	// ErrStoreUnavailable is returned when the local store cannot be used.
	ErrStoreUnavailable = errors.New("local store unavailable")

	// ErrRemote is returned when the remote store cannot complete a call.
	ErrRemote = errors.New("remote store unavailable")

	// ErrMalformedPayload is returned for remote payloads that cannot be decoded.
	ErrMalformedPayload = errors.New("malformed remote payload")
)

// Error is a classified failure of one operation on one session or tag.
type Error struct {
	// Kind is one of the Err* values of this package.
	Kind error

	// Op names the failing operation, e.g. "checkout".
	Op string

	// ID is the session or tag id involved, if any.
	ID string

	// Err is the underlying cause, if any.
	Err error
}

// E builds an *Error.
func E(kind error, op, id string, cause error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("error")
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " (%s)", e.ID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind carried by err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrInvalid, ErrStoreUnavailable, ErrRemote, ErrMalformedPayload} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
