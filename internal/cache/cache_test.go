package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/goleak"

	"relicforge/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func entry(key string, ids ...string) *types.CacheEntry {
	return &types.CacheEntry{
		Key:   key,
		Input: types.InputSnapshot{RelicIDs: ids, Context: json.RawMessage(`{"combat_style":"melee"}`)},
		Result: types.CompositionResult{
			TotalMultiplier:  1.5,
			BaseMultiplier:   1.0,
			FinalAttackPower: 150,
			BaseAttackPower:  100,
			EngineVersion:    "2.3.1",
		},
		EngineVersion: "2.3.1",
	}
}

type backendCase struct {
	name string
	open func(t *testing.T, clk types.Clock) types.ResultCache
}

func backends() []backendCase {
	return []backendCase{
		{"memory", func(t *testing.T, clk types.Clock) types.ResultCache {
			return NewMemory(clk)
		}},
		{"sqlite", func(t *testing.T, clk types.Clock) types.ResultCache {
			c, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"), clk)
			if err != nil {
				t.Fatalf("NewSQLite: %v", err)
			}
			t.Cleanup(func() { c.Close() })
			return c
		}},
		{"redis", func(t *testing.T, clk types.Clock) types.ResultCache {
			srv := miniredis.RunT(t)
			c, err := NewRedis(RedisOptions{Addr: srv.Addr()}, clk)
			if err != nil {
				t.Fatalf("NewRedis: %v", err)
			}
			t.Cleanup(func() { c.Close() })
			return c
		}},
	}
}

func TestLookupCountsHits(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			c := bc.open(t, newClock())

			if _, hit, err := c.Lookup(ctx, "absent"); err != nil || hit {
				t.Fatalf("Lookup(absent) = hit=%v err=%v, want miss", hit, err)
			}

			if err := c.Store(ctx, entry("k1", "giants_ring"), time.Hour); err != nil {
				t.Fatalf("Store: %v", err)
			}

			got, hit, err := c.Lookup(ctx, "k1")
			if err != nil || !hit {
				t.Fatalf("Lookup = hit=%v err=%v, want hit", hit, err)
			}
			if got.HitCount != 1 {
				t.Errorf("first HitCount = %d, want 1", got.HitCount)
			}
			if got.Result.TotalMultiplier != 1.5 {
				t.Errorf("TotalMultiplier = %v, want 1.5", got.Result.TotalMultiplier)
			}
			if len(got.Input.RelicIDs) != 1 || got.Input.RelicIDs[0] != "giants_ring" {
				t.Errorf("Input.RelicIDs = %v, want [giants_ring]", got.Input.RelicIDs)
			}

			got, _, err = c.Lookup(ctx, "k1")
			if err != nil {
				t.Fatalf("second Lookup: %v", err)
			}
			if got.HitCount != 2 {
				t.Errorf("second HitCount = %d, want 2", got.HitCount)
			}
		})
	}
}

func TestStoreOverwriteResetsHits(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			c := bc.open(t, newClock())

			if err := c.Store(ctx, entry("k1", "a"), time.Hour); err != nil {
				t.Fatalf("Store: %v", err)
			}
			if _, _, err := c.Lookup(ctx, "k1"); err != nil {
				t.Fatalf("Lookup: %v", err)
			}

			rewritten := entry("k1", "a")
			rewritten.Result.TotalMultiplier = 2.0
			if err := c.Store(ctx, rewritten, time.Hour); err != nil {
				t.Fatalf("re-Store: %v", err)
			}

			got, hit, err := c.Lookup(ctx, "k1")
			if err != nil || !hit {
				t.Fatalf("Lookup after rewrite = hit=%v err=%v", hit, err)
			}
			if got.HitCount != 1 {
				t.Errorf("HitCount after rewrite = %d, want 1 (reset)", got.HitCount)
			}
			if got.Result.TotalMultiplier != 2.0 {
				t.Errorf("TotalMultiplier = %v, want the rewritten 2.0", got.Result.TotalMultiplier)
			}
		})
	}
}

func TestTrimDropsOldest(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			clk := newClock()
			c := bc.open(t, clk)

			base := clk.now
			for i, key := range []string{"old", "mid", "new"} {
				e := entry(key, key+"_relic")
				e.CreatedAt = base.Add(time.Duration(i) * time.Second)
				if err := c.Store(ctx, e, time.Hour); err != nil {
					t.Fatalf("Store(%s): %v", key, err)
				}
			}

			dropped, err := c.TrimToSize(ctx, 1)
			if err != nil {
				t.Fatalf("TrimToSize: %v", err)
			}
			if dropped != 2 {
				t.Errorf("dropped = %d, want 2", dropped)
			}

			for _, key := range []string{"old", "mid"} {
				if _, hit, _ := c.Lookup(ctx, key); hit {
					t.Errorf("Lookup(%s) hit, want trimmed", key)
				}
			}
			if _, hit, _ := c.Lookup(ctx, "new"); !hit {
				t.Error("Lookup(new) missed, newest entry should survive")
			}

			// Already under the cap: nothing to do.
			if n, err := c.TrimToSize(ctx, 10); err != nil || n != 0 {
				t.Errorf("TrimToSize under cap = (%d, %v), want (0, nil)", n, err)
			}
		})
	}
}

func TestDeleteAll(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			c := bc.open(t, newClock())

			for _, key := range []string{"k1", "k2"} {
				if err := c.Store(ctx, entry(key, "r"), time.Hour); err != nil {
					t.Fatalf("Store: %v", err)
				}
			}
			if err := c.DeleteAll(ctx); err != nil {
				t.Fatalf("DeleteAll: %v", err)
			}
			for _, key := range []string{"k1", "k2"} {
				if _, hit, _ := c.Lookup(ctx, key); hit {
					t.Errorf("Lookup(%s) hit after DeleteAll", key)
				}
			}
			stats, err := c.Stats(ctx, 5)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.Entries != 0 {
				t.Errorf("Entries = %d, want 0", stats.Entries)
			}
		})
	}
}

func TestStats(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			c := bc.open(t, newClock())

			if err := c.Store(ctx, entry("hot", "giants_ring", "war_seal"), time.Hour); err != nil {
				t.Fatalf("Store: %v", err)
			}
			if err := c.Store(ctx, entry("cold", "moon_pendant"), time.Hour); err != nil {
				t.Fatalf("Store: %v", err)
			}
			for i := 0; i < 3; i++ {
				if _, _, err := c.Lookup(ctx, "hot"); err != nil {
					t.Fatalf("Lookup(hot): %v", err)
				}
			}
			if _, _, err := c.Lookup(ctx, "cold"); err != nil {
				t.Fatalf("Lookup(cold): %v", err)
			}

			stats, err := c.Stats(ctx, 1)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.Entries != 2 {
				t.Errorf("Entries = %d, want 2", stats.Entries)
			}
			if stats.TotalHits != 4 {
				t.Errorf("TotalHits = %d, want 4", stats.TotalHits)
			}
			if stats.AverageHits != 2.0 {
				t.Errorf("AverageHits = %v, want 2.0", stats.AverageHits)
			}
			if stats.SizeBytes <= 0 {
				t.Errorf("SizeBytes = %d, want > 0", stats.SizeBytes)
			}
			if len(stats.TopEntries) != 1 {
				t.Fatalf("TopEntries = %+v, want exactly 1", stats.TopEntries)
			}
			top := stats.TopEntries[0]
			if top.Key != "hot" || top.HitCount != 3 {
				t.Errorf("top entry = %+v, want hot with 3 hits", top)
			}
			if len(top.RelicIDs) != 2 || top.RelicIDs[0] != "giants_ring" {
				t.Errorf("top RelicIDs = %v, want the stored snapshot", top.RelicIDs)
			}
		})
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := NewMemory(clk)

	if err := c.Store(ctx, entry("k1", "r"), time.Minute); err != nil {
		t.Fatalf("Store: %v", err)
	}
	clk.now = clk.now.Add(2 * time.Minute)

	if _, hit, _ := c.Lookup(ctx, "k1"); hit {
		t.Error("Lookup hit an expired entry")
	}
	removed, err := c.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	stats, _ := c.Stats(ctx, 0)
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0 after cleanup", stats.Entries)
	}
}

func TestSQLiteExpiry(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"), clk)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer c.Close()

	if err := c.Store(ctx, entry("k1", "r"), time.Minute); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// Fresh entries hit; expiry is purely clock-driven.
	if _, hit, _ := c.Lookup(ctx, "k1"); !hit {
		t.Fatal("fresh entry missed")
	}

	clk.now = clk.now.Add(2 * time.Minute)
	if _, hit, _ := c.Lookup(ctx, "k1"); hit {
		t.Error("Lookup hit an expired entry")
	}
	removed, err := c.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	path := filepath.Join(t.TempDir(), "cache.db")

	first, err := NewSQLite(path, clk)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := first.Store(ctx, entry("k1", "giants_ring"), time.Hour); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, _, err := first.Lookup(ctx, "k1"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := NewSQLite(path, clk)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	got, hit, err := second.Lookup(ctx, "k1")
	if err != nil || !hit {
		t.Fatalf("Lookup after reopen = hit=%v err=%v", hit, err)
	}
	if got.HitCount != 2 {
		t.Errorf("HitCount after reopen = %d, want 2 (persisted)", got.HitCount)
	}
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	c, err := NewRedis(RedisOptions{Addr: srv.Addr()}, newClock())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer c.Close()

	if err := c.Store(ctx, entry("k1", "r"), time.Minute); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, hit, _ := c.Lookup(ctx, "k1"); !hit {
		t.Fatal("fresh entry missed")
	}

	srv.FastForward(2 * time.Minute)

	if _, hit, _ := c.Lookup(ctx, "k1"); hit {
		t.Error("Lookup hit an entry the server expired")
	}
	reclaimed, err := c.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if reclaimed != 1 {
		t.Errorf("reclaimed = %d, want 1 index slot", reclaimed)
	}
	stats, err := c.Stats(ctx, 0)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0", stats.Entries)
	}
}

func TestNewBackendSelection(t *testing.T) {
	c, err := New(Options{})
	if err != nil {
		t.Fatalf("New(memory default): %v", err)
	}
	if _, ok := c.(*Memory); !ok {
		t.Errorf("default backend = %T, want *Memory", c)
	}

	if _, err := New(Options{Backend: "bogus"}); err == nil {
		t.Error("New(bogus) succeeded, want error")
	}

	srv := miniredis.RunT(t)
	rc, err := New(Options{Backend: BackendRedis, RedisAddr: srv.Addr()})
	if err != nil {
		t.Fatalf("New(redis): %v", err)
	}
	rc.Close()

	sc, err := New(Options{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "c.db")})
	if err != nil {
		t.Fatalf("New(sqlite): %v", err)
	}
	sc.Close()
}
