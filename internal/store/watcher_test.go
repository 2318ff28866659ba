package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newWatchedStore wires a store, a seed file, and a watcher with a short
// debounce. Reload outcomes are forwarded on the returned channels.
func newWatchedStore(t *testing.T) (*Store, string, chan int, chan error) {
	t.Helper()
	s := newTestStore(t)
	path := writeSeed(t, minimalSeed)

	if _, err := ImportSeed(context.Background(), s, path); err != nil {
		t.Fatalf("initial ImportSeed: %v", err)
	}

	reloads := make(chan int, 8)
	failures := make(chan error, 8)
	w, err := NewSeedWatcher(path, s, func(count int, err error) {
		if err != nil {
			failures <- err
			return
		}
		reloads <- count
	})
	if err != nil {
		t.Fatalf("NewSeedWatcher: %v", err)
	}
	w.debounceDur = 50 * time.Millisecond

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)

	return s, path, reloads, failures
}

func awaitReload(t *testing.T, reloads chan int) int {
	t.Helper()
	select {
	case n := <-reloads:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for seed reload")
		return 0
	}
}

func TestSeedWatcherReloadsOnChange(t *testing.T) {
	s, path, reloads, _ := newWatchedStore(t)
	ctx := context.Background()

	second := strings.Replace(minimalSeed, "stacking_rule: additive",
		"stacking_rule: additive\n      - id: ember_ring_spark\n        name: Ember Spark\n        effect_type: attack_flat\n        value: 3\n        stacking_rule: additive", 1)
	if err := os.WriteFile(path, []byte(second), 0644); err != nil {
		t.Fatalf("rewrite seed: %v", err)
	}

	if n := awaitReload(t, reloads); n != 1 {
		t.Errorf("reload reported %d relics, want 1", n)
	}

	got, err := s.GetRelic(ctx, "ember_ring")
	if err != nil {
		t.Fatalf("GetRelic: %v", err)
	}
	if len(got.Effects) != 2 {
		t.Errorf("catalog not refreshed, relic has %d effects, want 2", len(got.Effects))
	}
}

func TestSeedWatcherKeepsCatalogOnBadSeed(t *testing.T) {
	s, path, _, failures := newWatchedStore(t)
	ctx := context.Background()

	if err := os.WriteFile(path, []byte("relics: ["), 0644); err != nil {
		t.Fatalf("rewrite seed: %v", err)
	}

	select {
	case <-failures:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload failure")
	}

	got, err := s.GetRelic(ctx, "ember_ring")
	if err != nil {
		t.Fatalf("GetRelic: %v", err)
	}
	if got == nil {
		t.Error("previous catalog lost after bad seed write")
	}
}

func TestSeedWatcherIgnoresSiblingFiles(t *testing.T) {
	s, path, reloads, _ := newWatchedStore(t)
	ctx := context.Background()

	sibling := path + ".bak"
	if err := os.WriteFile(sibling, []byte("not a seed"), 0644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	// Long enough for debounce plus the processing tick.
	time.Sleep(300 * time.Millisecond)
	select {
	case n := <-reloads:
		t.Fatalf("sibling write triggered a reload of %d relics", n)
	default:
	}

	// The watcher still reacts to the real seed afterwards.
	if err := os.WriteFile(path, []byte(strings.Replace(minimalSeed, "Ember Ring", "Ember Ring II", 1)), 0644); err != nil {
		t.Fatalf("rewrite seed: %v", err)
	}
	awaitReload(t, reloads)

	got, err := s.GetRelic(ctx, "ember_ring")
	if err != nil {
		t.Fatalf("GetRelic: %v", err)
	}
	if got.Name != "Ember Ring II" {
		t.Errorf("catalog not refreshed after sibling noise: %q", got.Name)
	}
}

func TestSeedWatcherStopIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	path := writeSeed(t, minimalSeed)

	w, err := NewSeedWatcher(path, s, nil)
	if err != nil {
		t.Fatalf("NewSeedWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !w.IsWatching() {
		t.Error("IsWatching = false after Start")
	}

	// Second Start while running is a no-op.
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	w.Stop()
	if w.IsWatching() {
		t.Error("IsWatching = true after Stop")
	}
	w.Stop()
}
