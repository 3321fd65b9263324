package remote

import (
	"context"
	"sync"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Memory is a Store kept in process memory.
//
// It backs the "memory" backend for single-kiosk trials and is the
// reference implementation the other backends are tested against.
type Memory struct {
	mu   sync.Mutex
	coll Collection
}

// NewMemory returns an empty in-memory store seeded with sessions.
func NewMemory(seed ...scan.Session) *Memory {
	m := &Memory{}
	for _, s := range seed {
		m.coll.Sessions = append(m.coll.Sessions, s.Clone())
	}
	return m
}

// ListSessions implements Store.ListSessions.
func (m *Memory) ListSessions(ctx context.Context) ([]scan.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.List(), nil
}

// CreateSession implements Store.CreateSession.
func (m *Memory) CreateSession(ctx context.Context, s scan.Session) (scan.Session, error) {
	if err := ctx.Err(); err != nil {
		return scan.Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.Create(s)
}

// UpdateSession implements Store.UpdateSession.
func (m *Memory) UpdateSession(ctx context.Context, id string, p scan.Patch) (scan.Session, error) {
	if err := ctx.Err(); err != nil {
		return scan.Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.Update(id, p)
}

// DeleteSession implements Store.DeleteSession.
func (m *Memory) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.Delete(id)
}

// FindActiveByTag implements Store.FindActiveByTag.
func (m *Memory) FindActiveByTag(ctx context.Context, tagID string) (*scan.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.FindActiveByTag(tagID), nil
}

// Ping implements Store.Ping.
func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implements Store.Close.
func (m *Memory) Close() error {
	return nil
}
