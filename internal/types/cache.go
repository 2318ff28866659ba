package types

import (
	"encoding/json"
	"time"
)

// DefaultCacheTTL is applied when a store call passes a zero TTL.
const DefaultCacheTTL = time.Hour

// DefaultCacheMaxEntries is the trim target when no cap is configured.
const DefaultCacheMaxEntries = 10_000

// InputSnapshot pins the exact input a cache entry was computed from, so hits
// can be audited without recomputing the key.
type InputSnapshot struct {
	RelicIDs []string        `json:"relic_ids"` // sorted ascending
	Context  json.RawMessage `json:"context"`   // canonical form
}

// CacheEntry is one memoized composition result. Entries past their TTL are
// invisible to lookups but persist until cleanup.
type CacheEntry struct {
	Key           string            `json:"key"`
	Input         InputSnapshot     `json:"input"`
	Result        CompositionResult `json:"result"`
	EngineVersion string            `json:"engine_version"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	HitCount      int64             `json:"hit_count"`
}

// Expired reports whether the entry is past its TTL at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// CacheTopEntry names one frequently hit entry in statistics output.
type CacheTopEntry struct {
	Key      string   `json:"key"`
	HitCount int64    `json:"hit_count"`
	RelicIDs []string `json:"relic_ids,omitempty"`
}

// CacheStats summarizes a cache backend's population.
type CacheStats struct {
	Entries     int64           `json:"entries"`
	TotalHits   int64           `json:"total_hits"`
	AverageHits float64         `json:"average_hits"`
	TopEntries  []CacheTopEntry `json:"top_entries,omitempty"`
	SizeBytes   int64           `json:"approx_size_bytes"`
}
