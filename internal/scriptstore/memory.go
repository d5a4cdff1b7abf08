package scriptstore

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/loqalabs/muse-core/internal/script"
)

// MemoryStore keeps scripts in process memory. Listing order matches SQLiteStore:
// created_at, then first insertion.
type MemoryStore struct {
	mu      sync.RWMutex
	scripts map[uuid.UUID]script.Script
	order   []uuid.UUID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{scripts: make(map[uuid.UUID]script.Script)}
}

func (m *MemoryStore) QueryAllScripts(_ context.Context) ([]script.Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]script.Script, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.scripts[id])
	}
	slices.SortStableFunc(result, func(a, b script.Script) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) QueryScript(_ context.Context, id uuid.UUID) (script.Script, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sc, ok := m.scripts[id]
	return sc, ok, nil
}

func (m *MemoryStore) InsertScript(_ context.Context, sc script.Script) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scripts[sc.ID]; !ok {
		m.order = append(m.order, sc.ID)
	}
	m.scripts[sc.ID] = sc
	return nil
}

func (m *MemoryStore) DeleteScript(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scripts[id]; !ok {
		return nil
	}
	delete(m.scripts, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
