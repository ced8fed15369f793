package store

import (
	"context"
	"sync"
)

// Memory keeps encoded snapshots in process. It goes through the same encoding as Redis
// so callers never share state with the store.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, matchID string) (Snapshot, error) {
	m.mu.RLock()
	b, ok := m.items[key(matchID)]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return decode(b)
}

func (m *Memory) Save(_ context.Context, s Snapshot) error {
	b, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[key(s.MatchID)] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, matchID string) error {
	m.mu.Lock()
	delete(m.items, key(matchID))
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
