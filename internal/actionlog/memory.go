package actionlog

import (
	"context"
	"sync"

	"github.com/talentmesh/actionloop"
)

// MemoryStore is an in-memory ActionLog for tests and single-process runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []actionloop.LogEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records one executed step.
func (m *MemoryStore) Append(ctx context.Context, entry actionloop.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// FindLatest returns the most recent entry for the tool in the session, or
// (nil, nil) when none exists.
func (m *MemoryStore) FindLatest(ctx context.Context, sessionID, toolID string) (*actionloop.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].SessionID == sessionID && m.entries[i].Tool == toolID {
			entry := m.entries[i]
			return &entry, nil
		}
	}
	return nil, nil
}

// Recent returns up to limit entries for the session, newest first.
func (m *MemoryStore) Recent(ctx context.Context, sessionID string, limit int) ([]actionloop.LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []actionloop.LogEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].SessionID == sessionID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}
