// Package filestore keeps the remote session collection in one JSON file,
// typically on a share mounted by every kiosk of a site.
//
// Each operation reads the file, applies the change and writes the result
// through a temporary file renamed into place, so readers never see a
// partially written document.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/remote"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Store implements remote.Store on a JSON file.
type Store struct {
	path   string
	mu     sync.Mutex
	logger logger.Logger
}

// New returns a Store for the file at path. The file is created on the
// first write; a missing file reads as an empty collection.
func New(path string, log logger.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("filestore: path is required")
	}
	if log == nil {
		log = logger.Noop()
	}
	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{path: path, logger: log}, nil
}

// read returns the file contents, nil if the file does not exist yet.
func (s *Store) read() ([]byte, error) {
	// #nosec G304: path comes from trusted config
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, scan.E(scan.ErrRemote, "read", "", err)
	}
	if len(data) > remote.MaxPayloadSize {
		return nil, scan.E(scan.ErrRemote, "read", "", remote.ErrPayloadTooLarge)
	}
	return data, nil
}

// load decodes the file leniently for reads.
func (s *Store) load() (*remote.Collection, error) {
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	return &remote.Collection{Sessions: remote.DecodeSessions(data, s.logger)}, nil
}

// loadDocument decodes the file for modification. A file that is not a
// session list is never overwritten.
func (s *Store) loadDocument() (*remote.Document, error) {
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	doc, err := remote.LoadDocument(data)
	if err != nil {
		return nil, scan.E(scan.ErrMalformedPayload, "load", s.path, err)
	}
	if doc.Kept() > 0 {
		s.logger.Warn("keeping undecodable records unchanged", "path", s.path, "records", doc.Kept())
	}
	return doc, nil
}

func (s *Store) save(doc *remote.Document) error {
	data, err := doc.Encode()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".scans-*.json")
	if err != nil {
		return scan.E(scan.ErrRemote, "write", "", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return scan.E(scan.ErrRemote, "write", "", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return scan.E(scan.ErrRemote, "write", "", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return scan.E(scan.ErrRemote, "write", "", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return scan.E(scan.ErrRemote, "write", "", err)
	}

	s.logger.Debug("scans file written", "path", s.path, "sessions", len(doc.Sessions))
	return nil
}

// mutate runs fn on the current document and saves it if fn succeeds.
func (s *Store) mutate(ctx context.Context, fn func(doc *remote.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDocument()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// ListSessions implements remote.Store.ListSessions.
func (s *Store) ListSessions(ctx context.Context) ([]scan.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load()
	if err != nil {
		return nil, err
	}
	return c.List(), nil
}

// CreateSession implements remote.Store.CreateSession.
func (s *Store) CreateSession(ctx context.Context, sess scan.Session) (scan.Session, error) {
	var created scan.Session
	err := s.mutate(ctx, func(doc *remote.Document) error {
		var err error
		created, err = doc.Create(sess)
		return err
	})
	return created, err
}

// UpdateSession implements remote.Store.UpdateSession.
func (s *Store) UpdateSession(ctx context.Context, id string, p scan.Patch) (scan.Session, error) {
	var updated scan.Session
	err := s.mutate(ctx, func(doc *remote.Document) error {
		var err error
		updated, err = doc.Update(id, p)
		return err
	})
	return updated, err
}

// DeleteSession implements remote.Store.DeleteSession.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.mutate(ctx, func(doc *remote.Document) error {
		return doc.Delete(id)
	})
}

// FindActiveByTag implements remote.Store.FindActiveByTag.
func (s *Store) FindActiveByTag(ctx context.Context, tagID string) (*scan.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load()
	if err != nil {
		return nil, err
	}
	return c.FindActiveByTag(tagID), nil
}

// Ping reports whether the directory holding the file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return scan.E(scan.ErrRemote, "ping", "", err)
	}
	return nil
}

// Close implements remote.Store.Close.
func (s *Store) Close() error {
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
