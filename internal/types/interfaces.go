package types

import (
	"context"
	"strings"
	"time"
)

// RelicFilter narrows ListRelics results. The zero value matches every relic.
type RelicFilter struct {
	Active        *bool
	Categories    []RelicCategory
	Rarities      []Rarity
	Qualities     []Quality
	MinDifficulty int
	MaxDifficulty int
	EffectTypes   []EffectType
	ExcludeIDs    []string
	NameSubstring string
}

// Matches reports whether the relic satisfies every set filter field.
// In-memory repositories share this; SQL repositories translate the filter
// into WHERE clauses and must agree with it.
func (f *RelicFilter) Matches(r *Relic) bool {
	if f.Active != nil && r.Active != *f.Active {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, r.Category) {
		return false
	}
	if len(f.Rarities) > 0 && !containsRarity(f.Rarities, r.Rarity) {
		return false
	}
	if len(f.Qualities) > 0 && !containsQuality(f.Qualities, r.Quality) {
		return false
	}
	if f.MinDifficulty > 0 && r.ObtainmentDifficulty < f.MinDifficulty {
		return false
	}
	if f.MaxDifficulty > 0 && r.ObtainmentDifficulty > f.MaxDifficulty {
		return false
	}
	if len(f.EffectTypes) > 0 && !hasAnyEffectType(r, f.EffectTypes) {
		return false
	}
	for _, ex := range f.ExcludeIDs {
		if r.ID == ex {
			return false
		}
	}
	if f.NameSubstring != "" && !containsFold(r.Name, f.NameSubstring) {
		return false
	}
	return true
}

// RelicRepository is the read capability the engine consumes. Implementations
// must embed each relic's active effects and report missing ids by absence,
// never by error.
type RelicRepository interface {
	GetRelicsByIDs(ctx context.Context, ids []string) ([]Relic, error)
	ListRelics(ctx context.Context, filter RelicFilter) ([]Relic, error)
	GetRelic(ctx context.Context, id string) (*Relic, error)
}

// ResultCache memoizes composition results keyed by canonical input hash.
// Lookup must atomically increment the hit count; Store is an upsert where
// the last writer wins (safe: results are deterministic per engine version).
type ResultCache interface {
	Lookup(ctx context.Context, key string) (*CacheEntry, bool, error)
	Store(ctx context.Context, entry *CacheEntry, ttl time.Duration) error
	CleanupExpired(ctx context.Context) (int, error)
	TrimToSize(ctx context.Context, max int) (int, error)
	DeleteAll(ctx context.Context) error
	Stats(ctx context.Context, topN int) (*CacheStats, error)
	Close() error
}

// Clock abstracts time so TTL behavior is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current wall time.
func (SystemClock) Now() time.Time { return time.Now() }

// IDGenerator mints opaque ids for suggestions and builds.
type IDGenerator func() string

func containsCategory(list []RelicCategory, c RelicCategory) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func containsRarity(list []Rarity, r Rarity) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}

func containsQuality(list []Quality, q Quality) bool {
	for _, v := range list {
		if v == q {
			return true
		}
	}
	return false
}

func hasAnyEffectType(r *Relic, wanted []EffectType) bool {
	for _, e := range r.Effects {
		for _, t := range wanted {
			if e.Type == t {
				return true
			}
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
