package snapshot

import (
	"runtime"
	"sync"
	"weak"

	"transhot/pkg/models"
)

// memo maps element identity to its snapshot without keeping the element
// alive. Entries are dropped when the element is garbage collected.
type memo struct {
	mu      sync.Mutex
	entries map[weak.Pointer[models.Element]]*models.Snapshot
}

func newMemo() *memo {
	return &memo{entries: make(map[weak.Pointer[models.Element]]*models.Snapshot)}
}

func (m *memo) load(el *models.Element) (*models.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.entries[weak.Make(el)]
	return snap, ok
}

func (m *memo) store(el *models.Element, snap *models.Snapshot) {
	key := weak.Make(el)

	m.mu.Lock()
	_, exists := m.entries[key]
	m.entries[key] = snap
	m.mu.Unlock()

	if !exists {
		runtime.AddCleanup(el, m.forget, key)
	}
}

func (m *memo) forget(key weak.Pointer[models.Element]) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *memo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
