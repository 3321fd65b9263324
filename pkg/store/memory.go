package store

import (
	"sync"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// memoryStore implements Store on maps. Nothing survives a restart.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]scan.Session
	queue    map[string]scan.Operation
}

// NewMemory creates an in-memory store.
//
// Used as the stand-in when the durable store cannot be opened, and in tests.
func NewMemory() Store {
	return &memoryStore{
		sessions: make(map[string]scan.Session),
		queue:    make(map[string]scan.Operation),
	}
}

// Sessions implements Store.Sessions.
func (m *memoryStore) Sessions() ([]scan.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]scan.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

// Session implements Store.Session.
func (m *memoryStore) Session(id string) (*scan.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, scan.E(ErrNotFound, "get session", id, nil)
	}
	c := s.Clone()
	return &c, nil
}

// PutSession implements Store.PutSession.
func (m *memoryStore) PutSession(s scan.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.SessionID] = s.Clone()
	return nil
}

// DeleteSession implements Store.DeleteSession.
func (m *memoryStore) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// ReplaceSessions implements Store.ReplaceSessions.
func (m *memoryStore) ReplaceSessions(sessions []scan.Session) error {
	next := make(map[string]scan.Session, len(sessions))
	for _, s := range sessions {
		next[s.SessionID] = s.Clone()
	}

	m.mu.Lock()
	m.sessions = next
	m.mu.Unlock()
	return nil
}

// Enqueue implements Store.Enqueue.
func (m *memoryStore) Enqueue(op scan.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue[op.ID] = op
	return nil
}

// Queue implements Store.Queue.
func (m *memoryStore) Queue() ([]scan.Operation, error) {
	m.mu.RLock()
	ops := make([]scan.Operation, 0, len(m.queue))
	for _, op := range m.queue {
		ops = append(ops, op)
	}
	m.mu.RUnlock()

	sortOperations(ops)
	return ops, nil
}

// RemoveOperation implements Store.RemoveOperation.
func (m *memoryStore) RemoveOperation(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.queue, id)
	return nil
}

// ReplaceQueue implements Store.ReplaceQueue.
func (m *memoryStore) ReplaceQueue(ops []scan.Operation) error {
	next := make(map[string]scan.Operation, len(ops))
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
		next[op.ID] = op
	}

	m.mu.Lock()
	m.queue = next
	m.mu.Unlock()
	return nil
}

// PendingCount implements Store.PendingCount.
func (m *memoryStore) PendingCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.queue), nil
}

// Close implements Store.Close.
func (m *memoryStore) Close() error {
	return nil
}
