package store

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
)

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	data      map[string]json.RawMessage
	closed    bool
	listeners listeners
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]json.RawMessage)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, keys ...string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, values map[string]any) error {
	changes, err := encode(values)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	maps.Copy(m.data, changes)
	m.mu.Unlock()

	m.listeners.notify(changes)
	return nil
}

// OnChange implements Store.
func (m *MemoryStore) OnChange(fn ChangeFunc) func() {
	return m.listeners.add(fn)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
