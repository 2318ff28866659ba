package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"relicforge/internal/metrics"
	"relicforge/internal/types"
)

// memoryEntry keeps the canonical entry JSON alongside the fields admin
// operations need. Lookups decode a fresh copy from the JSON so callers can
// never mutate cached state through shared slices.
type memoryEntry struct {
	raw       []byte
	relicIDs  []string
	createdAt time.Time
	expiresAt time.Time
	hits      int64
}

// Memory is the in-process backend: a map under a single mutex. Lookup
// mutates the hit counter, so there is no read/write lock split.
type Memory struct {
	mu      sync.Mutex
	clock   types.Clock
	entries map[string]*memoryEntry
}

// NewMemory returns an empty in-process cache.
func NewMemory(clock types.Clock) *Memory {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Memory{
		clock:   clock,
		entries: make(map[string]*memoryEntry),
	}
}

// Lookup returns the entry for key with its hit count incremented. Expired
// entries are reported as absent but stay in the map until cleanup.
func (m *Memory) Lookup(_ context.Context, key string) (*types.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	me, ok := m.entries[key]
	if !ok || !me.expiresAt.After(m.clock.Now()) {
		metrics.CacheRequests.WithLabelValues(BackendMemory, "miss").Inc()
		return nil, false, nil
	}

	me.hits++
	var out types.CacheEntry
	if err := json.Unmarshal(me.raw, &out); err != nil {
		metrics.CacheRequests.WithLabelValues(BackendMemory, "error").Inc()
		return nil, false, types.Internal("decode cache entry", err)
	}
	out.HitCount = me.hits
	metrics.CacheRequests.WithLabelValues(BackendMemory, "hit").Inc()
	return &out, true, nil
}

// Store upserts the entry; the last writer wins and the hit count restarts.
func (m *Memory) Store(_ context.Context, entry *types.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = types.DefaultCacheTTL
	}
	stored := *entry
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.clock.Now()
	}
	stored.ExpiresAt = stored.CreatedAt.Add(ttl)
	stored.HitCount = 0

	raw, err := json.Marshal(&stored)
	if err != nil {
		return types.Internal("encode cache entry", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = &memoryEntry{
		raw:       raw,
		relicIDs:  append([]string(nil), stored.Input.RelicIDs...),
		createdAt: stored.CreatedAt,
		expiresAt: stored.ExpiresAt,
	}
	return nil
}

// CleanupExpired drops every entry past its TTL and returns the count.
func (m *Memory) CleanupExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for key, me := range m.entries {
		if !me.expiresAt.After(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// TrimToSize drops the oldest entries by creation time until at most max
// remain. A non-positive max falls back to the default cap.
func (m *Memory) TrimToSize(_ context.Context, max int) (int, error) {
	if max <= 0 {
		max = types.DefaultCacheMaxEntries
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	excess := len(m.entries) - max
	if excess <= 0 {
		return 0, nil
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	order := make([]aged, 0, len(m.entries))
	for key, me := range m.entries {
		order = append(order, aged{key, me.createdAt})
	}
	sort.Slice(order, func(i, j int) bool {
		if !order[i].createdAt.Equal(order[j].createdAt) {
			return order[i].createdAt.Before(order[j].createdAt)
		}
		return order[i].key < order[j].key
	})

	for _, a := range order[:excess] {
		delete(m.entries, a.key)
	}
	return excess, nil
}

// DeleteAll empties the cache.
func (m *Memory) DeleteAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry)
	return nil
}

// Stats summarizes the population, including the topN most hit entries.
func (m *Memory) Stats(_ context.Context, topN int) (*types.CacheStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &types.CacheStats{Entries: int64(len(m.entries))}
	tops := make([]types.CacheTopEntry, 0, len(m.entries))
	for key, me := range m.entries {
		stats.TotalHits += me.hits
		stats.SizeBytes += int64(len(me.raw))
		tops = append(tops, types.CacheTopEntry{
			Key:      key,
			HitCount: me.hits,
			RelicIDs: me.relicIDs,
		})
	}
	if stats.Entries > 0 {
		stats.AverageHits = float64(stats.TotalHits) / float64(stats.Entries)
	}
	if topN <= 0 {
		return stats, nil
	}

	sort.Slice(tops, func(i, j int) bool {
		if tops[i].HitCount != tops[j].HitCount {
			return tops[i].HitCount > tops[j].HitCount
		}
		return tops[i].Key < tops[j].Key
	})
	if len(tops) > topN {
		tops = tops[:topN]
	}
	if len(tops) > 0 {
		stats.TopEntries = tops
	}
	return stats, nil
}

// Close is a no-op for the in-process backend.
func (*Memory) Close() error { return nil }
