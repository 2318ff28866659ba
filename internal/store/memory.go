package store

import (
	"context"
	"sort"
	"sync"

	"relicforge/internal/types"
)

var _ types.RelicRepository = (*MemoryRepository)(nil)

// MemoryRepository keeps the relic catalog in process memory. It backs tests
// and seed-only runs where no database file is wanted. Results come back
// ordered by id, same as the SQLite store.
type MemoryRepository struct {
	mu     sync.RWMutex
	relics map[string]types.Relic
}

// NewMemoryRepository builds a repository pre-populated with the given relics.
func NewMemoryRepository(relics ...types.Relic) *MemoryRepository {
	m := &MemoryRepository{relics: make(map[string]types.Relic, len(relics))}
	for _, r := range relics {
		m.relics[r.ID] = r
	}
	return m
}

// Upsert inserts or replaces a relic.
func (m *MemoryRepository) Upsert(r types.Relic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relics[r.ID] = r
}

// Delete removes a relic. Deleting a missing relic is not an error.
func (m *MemoryRepository) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.relics, id)
}

// Len returns the number of relics held.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.relics)
}

// GetRelicsByIDs returns the relics whose ids exist, ordered by id. Missing
// ids are reported by absence.
func (m *MemoryRepository) GetRelicsByIDs(ctx context.Context, ids []string) ([]types.Relic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Relic
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if r, ok := m.relics[id]; ok {
			out = append(out, r)
		}
	}
	sortRelicsByID(out)
	return out, nil
}

// ListRelics returns relics matching the filter, ordered by id.
func (m *MemoryRepository) ListRelics(ctx context.Context, filter types.RelicFilter) ([]types.Relic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Relic
	for id := range m.relics {
		r := m.relics[id]
		if filter.Matches(&r) {
			out = append(out, r)
		}
	}
	sortRelicsByID(out)
	return out, nil
}

// GetRelic returns the relic with the given id, or nil when it does not exist.
func (m *MemoryRepository) GetRelic(ctx context.Context, id string) (*types.Relic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.relics[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func sortRelicsByID(relics []types.Relic) {
	sort.Slice(relics, func(i, j int) bool { return relics[i].ID < relics[j].ID })
}
