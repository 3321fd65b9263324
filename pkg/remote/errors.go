package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrUnknownBackend is returned for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown remote backend")
)

// RecordError describes one record dropped while decoding a payload.
type RecordError struct {
	Index     int    // Position in the payload array (0-indexed)
	SessionID string // Session id, if it could be read
	Err       error  // Underlying error
}

func (e *RecordError) Error() string {
	id := e.SessionID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("record %d (%s): %v", e.Index, id, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// StatusError is an unexpected response status from an HTTP backend.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string // First bytes of the response body
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 100 {
		body = body[:100] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, body)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == 408 || e.Code == 429 || e.Code >= 500
}
