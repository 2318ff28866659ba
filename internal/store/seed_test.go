package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"relicforge/internal/config"
	"relicforge/internal/types"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relics.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

const minimalSeed = `
version: "1"
relics:
  - id: ember_ring
    name: Ember Ring
    category: attack
    rarity: common
    quality: delicate
    effects:
      - id: ember_ring_power
        name: Ember Power
        effect_type: attack_percentage
        value: 5
        stacking_rule: additive
`

func TestLoadSeedAppliesDefaults(t *testing.T) {
	sf, err := LoadSeed(writeSeed(t, minimalSeed))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(sf.Relics) != 1 {
		t.Fatalf("got %d relics, want 1", len(sf.Relics))
	}

	r := sf.Relics[0]
	if !r.Active {
		t.Error("omitted active should default to true")
	}
	if r.ObtainmentDifficulty != types.MinObtainmentDifficulty {
		t.Errorf("omitted difficulty = %d, want %d", r.ObtainmentDifficulty, types.MinObtainmentDifficulty)
	}
	if len(r.Effects) != 1 || !r.Effects[0].Active {
		t.Errorf("omitted effect active should default to true: %+v", r.Effects)
	}
	if r.Effects[0].Priority != 0 {
		t.Errorf("omitted priority = %d, want 0", r.Effects[0].Priority)
	}

	// Explicit false must survive the defaulting pass.
	sf, err = LoadSeed(writeSeed(t, strings.Replace(minimalSeed, "quality: delicate", "quality: delicate\n    active: false", 1)))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if sf.Relics[0].Active {
		t.Error("explicit active: false was overridden")
	}
}

func TestLoadSeedDecodesConditions(t *testing.T) {
	seed := `
relics:
  - id: test_relic
    name: Test Relic
    category: attack
    rarity: rare
    quality: polished
    effects:
      - id: fx_bow
        name: Bow Bonus
        effect_type: weapon_specific
        value: 10
        stacking_rule: unique
        conditions:
          - type: weapon_type
            value: bow
      - id: fx_scaling
        name: Level Scaling
        effect_type: attack_percentage
        value: 2
        stacking_rule: additive
        conditions:
          - type: equipment_count
            value: character_level
      - id: fx_lowhp
        name: Last Stand
        effect_type: conditional_damage
        value: 25
        stacking_rule: unique
        conditions:
          - type: health_threshold
            value: 30
`
	sf, err := LoadSeed(writeSeed(t, seed))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	effects := sf.Relics[0].Effects

	wc, ok := effects[0].Conditions.WeaponRequirement()
	if !ok || wc.Weapon != "bow" {
		t.Errorf("weapon condition not decoded: %+v", effects[0].Conditions)
	}
	if !effects[1].Conditions.ScalesWithCharacterLevel() {
		t.Errorf("scaling sentinel not decoded: %+v", effects[1].Conditions)
	}
	ht, ok := effects[2].Conditions[0].(types.HealthThresholdCondition)
	if !ok || ht.MaxPercent != 30 {
		t.Errorf("health threshold not decoded: %+v", effects[2].Conditions)
	}
}

func TestLoadSeedRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantSub string
	}{
		{
			name:    "unknown category",
			mutate:  func(s string) string { return strings.Replace(s, "category: attack", "category: weapons", 1) },
			wantSub: "unknown category",
		},
		{
			name:    "unknown stacking rule",
			mutate:  func(s string) string { return strings.Replace(s, "stacking_rule: additive", "stacking_rule: stacked", 1) },
			wantSub: "unknown stacking_rule",
		},
		{
			name:    "zero effect value",
			mutate:  func(s string) string { return strings.Replace(s, "value: 5", "value: 0", 1) },
			wantSub: "outside",
		},
		{
			name: "bad equipment_count sentinel",
			mutate: func(s string) string {
				return strings.Replace(s, "stacking_rule: additive",
					"stacking_rule: additive\n        conditions:\n          - type: equipment_count\n            value: level", 1)
			},
			wantSub: "unsupported string value",
		},
		{
			name:    "duplicate ids",
			mutate:  func(s string) string { return s + strings.TrimPrefix(minimalSeed, "\nversion: \"1\"\nrelics:\n") },
			wantSub: "appears twice",
		},
		{
			name:    "no relics",
			mutate:  func(string) string { return "version: \"1\"\nrelics: []\n" },
			wantSub: "no relics",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadSeed(writeSeed(t, tc.mutate(minimalSeed)))
			if err == nil {
				t.Fatal("LoadSeed succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestImportSeed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := writeSeed(t, minimalSeed)

	n, err := ImportSeed(ctx, s, path)
	if err != nil {
		t.Fatalf("ImportSeed: %v", err)
	}
	if n != 1 {
		t.Errorf("imported %d relics, want 1", n)
	}

	got, err := s.GetRelic(ctx, "ember_ring")
	if err != nil {
		t.Fatalf("GetRelic: %v", err)
	}
	if got == nil || got.Name != "Ember Ring" {
		t.Fatalf("imported relic missing or wrong: %+v", got)
	}

	// Re-import after an edit updates in place instead of duplicating.
	if err := os.WriteFile(path, []byte(strings.Replace(minimalSeed, "value: 5", "value: 9", 1)), 0644); err != nil {
		t.Fatalf("rewrite seed: %v", err)
	}
	if _, err := ImportSeed(ctx, s, path); err != nil {
		t.Fatalf("second ImportSeed: %v", err)
	}
	count, err := s.CountRelics(ctx)
	if err != nil {
		t.Fatalf("CountRelics: %v", err)
	}
	if count != 1 {
		t.Errorf("relic count after re-import = %d, want 1", count)
	}
	got, err = s.GetRelic(ctx, "ember_ring")
	if err != nil {
		t.Fatalf("GetRelic: %v", err)
	}
	if got.Effects[0].Value != 9 {
		t.Errorf("re-import kept old value %v, want 9", got.Effects[0].Value)
	}
}

func TestLoadSeedMissingFile(t *testing.T) {
	if _, err := LoadSeed(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadSeed succeeded on missing file")
	}
}

func TestNewMemoryRepositoryFromSeed(t *testing.T) {
	mem, err := NewMemoryRepositoryFromSeed(writeSeed(t, minimalSeed))
	if err != nil {
		t.Fatalf("NewMemoryRepositoryFromSeed: %v", err)
	}
	if mem.Len() != 1 {
		t.Errorf("Len = %d, want 1", mem.Len())
	}
}

// TestShippedCatalog loads the catalog shipped in data/relics.yaml and checks
// referential integrity: the default meta builds only name relics that exist,
// and every declared conflict points at a cataloged relic.
func TestShippedCatalog(t *testing.T) {
	sf, err := LoadSeed(filepath.Join("..", "..", "data", "relics.yaml"))
	if err != nil {
		t.Fatalf("LoadSeed(shipped catalog): %v", err)
	}
	if len(sf.Relics) < 12 {
		t.Errorf("shipped catalog holds %d relics, expected at least 12", len(sf.Relics))
	}

	byID := make(map[string]bool, len(sf.Relics))
	for _, r := range sf.Relics {
		byID[r.ID] = true
	}
	for _, r := range sf.Relics {
		for _, conflict := range r.Conflicts {
			if !byID[conflict] {
				t.Errorf("relic %s declares conflict with unknown relic %s", r.ID, conflict)
			}
		}
	}

	for style, ids := range config.DefaultConfig().Optimizer.MetaBuilds {
		for _, id := range ids {
			if !byID[id] {
				t.Errorf("meta build %s references unknown relic %s", style, id)
			}
		}
	}
}
