package remote

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// MaxPayloadSize bounds a full session listing (32MB).
const MaxPayloadSize = 32 * 1024 * 1024

// DecodeSessions parses a session listing.
//
// Accepted shapes: a bare array, {"scans": [...]} or {"sessions": [...]}.
// Any other document, including a non-array value under those keys,
// decodes to an empty set. Records that cannot be decoded or fail
// validation are logged and dropped individually.
func DecodeSessions(data []byte, log logger.Logger) []scan.Session {
	if log == nil {
		log = logger.Noop()
	}

	raw, ok := extractArray(bytes.TrimSpace(data))
	if !ok {
		if len(bytes.TrimSpace(data)) > 0 {
			log.Warn("remote payload is not a session list, treating as empty",
				"error", scan.ErrMalformedPayload)
		}
		return []scan.Session{}
	}

	out := make([]scan.Session, 0, len(raw))
	for i, item := range raw {
		s, err := decodeRecord(i, item)
		if err != nil {
			log.Warn("dropping remote record", "error", err)
			continue
		}
		out = append(out, s)
	}
	return out
}

func extractArray(data []byte) ([]json.RawMessage, bool) {
	if len(data) == 0 {
		return nil, false
	}

	var arr []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, false
		}
		return arr, true
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, false
	}
	for _, key := range []string{"scans", "sessions"} {
		inner, ok := envelope[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &arr); err != nil {
			return nil, false
		}
		return arr, true
	}
	return nil, false
}

func decodeRecord(i int, item json.RawMessage) (scan.Session, error) {
	var s scan.Session
	if err := json.Unmarshal(item, &s); err != nil {
		return s, &RecordError{Index: i, Err: fmt.Errorf("%w: %v", scan.ErrMalformedPayload, err)}
	}
	if err := s.Validate(); err != nil {
		return s, &RecordError{Index: i, SessionID: s.SessionID, Err: err}
	}
	return s, nil
}

// DecodeSession parses and validates a single session document.
func DecodeSession(data []byte) (scan.Session, error) {
	s, err := decodeRecord(0, data)
	if err != nil {
		return s, err
	}
	return s, nil
}
