package session

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Memory is an in-memory Store for single-process use and testing. It has
// no native TTL; pair it with a Sweeper to remove expired sessions.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
	index   map[string]map[string]struct{}
	closed  bool
}

// NewMemory creates an in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*Record),
		index:   make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Load(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Save(_ context.Context, rec *Record, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *Memory) Update(_ context.Context, rec *Record, delta *Delta, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	stored, ok := m.records[rec.ID]
	if !ok {
		// Partial update against a missing record falls back to a full
		// write; the repository's record is the source of truth.
		m.records[rec.ID] = rec.Clone()
		return nil
	}

	for name, change := range delta.Attrs() {
		if change.Removed {
			delete(stored.Attributes, name)
			continue
		}
		stored.Attributes[name] = slices.Clone(change.Value)
	}
	if delta.LastAccessedChanged() {
		stored.LastAccessedTime = rec.LastAccessedTime
	}
	if delta.IntervalChanged() {
		stored.MaxInactiveInterval = rec.MaxInactiveInterval
	}
	return nil
}

func (m *Memory) Rename(_ context.Context, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	rec, ok := m.records[oldID]
	if !ok {
		return ErrNotFound
	}
	rec.ID = newID
	m.records[newID] = rec
	delete(m.records, oldID)
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.records[id]
	delete(m.records, id)
	return ok, nil
}

func (m *Memory) IndexAdd(_ context.Context, principal, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	ids, ok := m.index[principal]
	if !ok {
		ids = make(map[string]struct{})
		m.index[principal] = ids
	}
	ids[id] = struct{}{}
	return nil
}

func (m *Memory) IndexRemove(_ context.Context, principal, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if ids, ok := m.index[principal]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.index, principal)
		}
	}
	return nil
}

func (m *Memory) IndexMembers(_ context.Context, principal string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(m.index[principal]))
	for id := range m.index[principal] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) ExpiredIDs(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	var ids []string
	for id, rec := range m.records {
		if expiresAt, ok := rec.ExpiresAt(); ok && !expiresAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) SupportsNativeTTL() bool { return false }

// Close marks the store closed. Close is idempotent.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	m.index = nil
	return nil
}

var _ Store = (*Memory)(nil)
