package remote

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Document is a session listing loaded for modification.
//
// Unlike DecodeSessions it never loses data: records that do not decode
// or validate are kept verbatim and written back unchanged, and the other
// fields of an envelope survive the round trip. A document of any other
// shape is rejected with scan.ErrMalformedPayload.
type Document struct {
	Collection

	// key is the envelope key holding the records, "" for a bare array.
	key      string
	envelope map[string]json.RawMessage

	kept    []json.RawMessage
	keptIDs map[string]bool
}

// LoadDocument parses data for a read-modify-write cycle. Empty data is
// an empty bare array.
func LoadDocument(data []byte) (*Document, error) {
	d := &Document{keptIDs: make(map[string]bool)}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return d, nil
	}

	var items []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", scan.ErrMalformedPayload, err)
		}
	} else {
		if err := json.Unmarshal(data, &d.envelope); err != nil || d.envelope == nil {
			return nil, fmt.Errorf("%w: not a session list", scan.ErrMalformedPayload)
		}
		for _, key := range []string{"scans", "sessions"} {
			if inner, ok := d.envelope[key]; ok {
				if err := json.Unmarshal(inner, &items); err != nil {
					return nil, fmt.Errorf("%w: %q is not an array", scan.ErrMalformedPayload, key)
				}
				d.key = key
				break
			}
		}
		if d.key == "" {
			return nil, fmt.Errorf("%w: no scans or sessions array", scan.ErrMalformedPayload)
		}
	}

	for i, item := range items {
		s, err := decodeRecord(i, item)
		if err != nil {
			d.kept = append(d.kept, item)
			var ident struct {
				SessionID string `json:"sessionId"`
			}
			if json.Unmarshal(item, &ident) == nil && ident.SessionID != "" {
				d.keptIDs[ident.SessionID] = true
			}
			continue
		}
		d.Sessions = append(d.Sessions, s)
	}
	return d, nil
}

// Kept returns the number of records carried through undecoded.
func (d *Document) Kept() int {
	return len(d.kept)
}

// Create appends s. An undecodable record with the same id is a conflict.
func (d *Document) Create(s scan.Session) (scan.Session, error) {
	if d.keptIDs[s.SessionID] {
		return scan.Session{}, scan.E(scan.ErrConflict, "create", s.SessionID, nil)
	}
	return d.Collection.Create(s)
}

// Update applies p to the session with the given id. A record that exists
// but cannot be decoded is not modified.
func (d *Document) Update(id string, p scan.Patch) (scan.Session, error) {
	if d.keptIDs[id] {
		return scan.Session{}, scan.E(scan.ErrMalformedPayload, "update", id, nil)
	}
	return d.Collection.Update(id, p)
}

// Delete removes the session with the given id.
func (d *Document) Delete(id string) error {
	if d.keptIDs[id] {
		return scan.E(scan.ErrMalformedPayload, "delete", id, nil)
	}
	return d.Collection.Delete(id)
}

// Encode renders the document in its original shape: decoded sessions
// first, then the kept records.
func (d *Document) Encode() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(d.Sessions)+len(d.kept))
	for _, s := range d.Sessions {
		raw, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session %s: %w", s.SessionID, err)
		}
		items = append(items, raw)
	}
	items = append(items, d.kept...)

	var v any = items
	if d.key != "" {
		list, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}
		d.envelope[d.key] = list
		v = d.envelope
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sessions: %w", err)
	}
	return data, nil
}
