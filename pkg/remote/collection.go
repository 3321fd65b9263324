package remote

import (
	"github.com/0xmhha/gastmeting/pkg/reconcile"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Collection applies the remote store semantics to an in-memory slice.
//
// Backends that keep all sessions in one document (a file, an S3 object)
// load the document into a Collection, apply one operation and write it
// back. Collection is not safe for concurrent use.
type Collection struct {
	Sessions []scan.Session
}

func (c *Collection) index(id string) int {
	for i, s := range c.Sessions {
		if s.SessionID == id {
			return i
		}
	}
	return -1
}

// Create appends s. Returns scan.ErrConflict if the id exists.
func (c *Collection) Create(s scan.Session) (scan.Session, error) {
	if err := s.Validate(); err != nil {
		return scan.Session{}, err
	}
	if c.index(s.SessionID) >= 0 {
		return scan.Session{}, scan.E(scan.ErrConflict, "create", s.SessionID, nil)
	}
	c.Sessions = append(c.Sessions, s.Clone())
	return s.Clone(), nil
}

// Update applies p to the session with the given id.
func (c *Collection) Update(id string, p scan.Patch) (scan.Session, error) {
	i := c.index(id)
	if i < 0 {
		return scan.Session{}, scan.E(scan.ErrNotFound, "update", id, nil)
	}
	updated := p.Apply(c.Sessions[i])
	if err := updated.Validate(); err != nil {
		return scan.Session{}, err
	}
	c.Sessions[i] = updated
	return updated.Clone(), nil
}

// Delete removes the session with the given id.
func (c *Collection) Delete(id string) error {
	i := c.index(id)
	if i < 0 {
		return scan.E(scan.ErrNotFound, "delete", id, nil)
	}
	c.Sessions = append(c.Sessions[:i], c.Sessions[i+1:]...)
	return nil
}

// FindActiveByTag returns the most recent active session of tagID, or nil.
func (c *Collection) FindActiveByTag(tagID string) *scan.Session {
	active := reconcile.ActiveFor(c.Sessions, tagID)
	if len(active) == 0 {
		return nil
	}
	return &active[0]
}

// List returns a copy of all sessions.
func (c *Collection) List() []scan.Session {
	out := make([]scan.Session, len(c.Sessions))
	for i, s := range c.Sessions {
		out[i] = s.Clone()
	}
	return out
}
