package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const testSeed = `version: "1"
relics:
  - id: iron_band
    name: Iron Band
    category: attack
    rarity: common
    quality: polished
    obtainment_difficulty: 2
    effects:
      - id: iron_power
        name: Iron Power
        effect_type: attack_percentage
        value: 10
        stacking_rule: additive
  - id: storm_idol
    name: Storm Idol
    category: elemental
    rarity: rare
    quality: grand
    obtainment_difficulty: 4
    effects:
      - id: storm_surge
        name: Storm Surge
        effect_type: attack_percentage
        value: 20
        stacking_rule: additive
`

// setupCLI points the global flags at a temp workspace with a seed-only
// catalog and resets every shared flag var touched by earlier tests.
func setupCLI(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	seedPath := filepath.Join(dir, "relics.yaml")
	if err := os.WriteFile(seedPath, []byte(testSeed), 0644); err != nil {
		t.Fatalf("failed to write seed: %v", err)
	}

	cfgYAML := "storage:\n  database_path: \"\"\n  seed_path: " + seedPath + "\n"
	cfgPath := filepath.Join(dir, "relicforge.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	logger = zap.NewNop()
	configPath = cfgPath
	workspace = dir
	timeout = 30 * time.Second
	verbose = false

	ctxStyle = ""
	ctxWeapon = ""
	ctxLevel = 0
	ctxBaseAttack = 0
	ctxConditions = nil
	jsonOut = false
	composeBreakdown = false
	composeForce = false
	composeNoCache = false

	// Neutralize ambient environment overrides.
	t.Setenv("RELICFORGE_DB", "")
	t.Setenv("RELICFORGE_SEED", "")
	t.Setenv("RELICFORGE_CACHE_BACKEND", "")
	t.Setenv("RELICFORGE_METRICS_ADDR", "")
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		pair    string
		key     string
		value   any
		wantErr bool
	}{
		{pair: "enemy_type=elite", key: "enemy_type", value: "elite"},
		{pair: "health_percentage=25", key: "health_percentage", value: 25.0},
		{pair: "first_strike=true", key: "first_strike", value: true},
		{pair: "nonsense", wantErr: true},
		{pair: "=value", wantErr: true},
	}
	for _, tt := range tests {
		key, value, err := parseCondition(tt.pair)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseCondition(%q): expected error", tt.pair)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseCondition(%q): %v", tt.pair, err)
			continue
		}
		if key != tt.key || value != tt.value {
			t.Errorf("parseCondition(%q) = %q, %v; want %q, %v", tt.pair, key, value, tt.key, tt.value)
		}
	}
}

func TestSplitIDs(t *testing.T) {
	got := splitIDs([]string{"a,b", " c ", "d,,e"})
	want := []string{"a", "b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("splitIDs returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitIDs returned %v, want %v", got, want)
		}
	}
}

func TestCombatContextFromFlags(t *testing.T) {
	setupCLI(t)
	ctxStyle = "magic"
	ctxLevel = 50
	ctxBaseAttack = 250
	ctxConditions = []string{"enemyType=elite", "health_percentage=25"}

	cctx, err := combatContextFromFlags()
	if err != nil {
		t.Fatalf("combatContextFromFlags: %v", err)
	}
	if string(cctx.CombatStyle) != "magic" || cctx.CharacterLevel != 50 {
		t.Fatalf("unexpected context: %+v", cctx)
	}
	if cctx.BaseStats.AttackPower != 250 {
		t.Fatalf("expected attack power 250, got %v", cctx.BaseStats.AttackPower)
	}
	if cctx.Conditions["enemy_type"] != "elite" {
		t.Fatalf("camelCase condition key not canonicalized: %v", cctx.Conditions)
	}
	if cctx.Conditions["health_percentage"] != 25.0 {
		t.Fatalf("numeric condition not parsed: %v", cctx.Conditions)
	}
}

func TestRunComposeOutput(t *testing.T) {
	setupCLI(t)

	output := captureOutput(t, func() {
		if err := runCompose(&cobra.Command{}, []string{"iron_band,storm_idol"}); err != nil {
			t.Fatalf("runCompose returned error: %v", err)
		}
	})

	if !strings.Contains(output, "1.300") {
		t.Fatalf("expected total multiplier 1.300 in output, got: %s", output)
	}
}

func TestRunComposeUnknownRelic(t *testing.T) {
	setupCLI(t)

	err := runCompose(&cobra.Command{}, []string{"missing_relic"})
	if err == nil {
		t.Fatal("expected error for unknown relic")
	}
	if !strings.Contains(err.Error(), "RELIC_NOT_FOUND") {
		t.Fatalf("expected RELIC_NOT_FOUND, got: %v", err)
	}
}

func TestRunValidateOutput(t *testing.T) {
	setupCLI(t)

	output := captureOutput(t, func() {
		if err := runValidate(&cobra.Command{}, []string{"iron_band"}); err != nil {
			t.Fatalf("runValidate returned error: %v", err)
		}
	})

	if !strings.Contains(output, "Selection valid") {
		t.Fatalf("expected validation notice, got: %s", output)
	}
}

func TestRunRelicsList(t *testing.T) {
	setupCLI(t)
	relicsCategory = ""
	relicsRarity = ""
	relicsMaxDifficulty = 0
	relicsName = ""
	relicsAll = false

	output := captureOutput(t, func() {
		if err := runRelicsList(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runRelicsList returned error: %v", err)
		}
	})

	if !strings.Contains(output, "iron_band") || !strings.Contains(output, "storm_idol") {
		t.Fatalf("expected both seed relics in listing, got: %s", output)
	}
}

func TestRunBuildsListNeedsDatabase(t *testing.T) {
	setupCLI(t)

	err := runBuildsList(&cobra.Command{}, nil)
	if err == nil {
		t.Fatal("expected error without a configured database")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Fatalf("expected database requirement notice, got: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	output := captureOutput(t, func() {
		versionCmd.Run(versionCmd, nil)
	})
	if !strings.Contains(output, "relicforge") || !strings.Contains(output, "engine") {
		t.Fatalf("unexpected version output: %s", output)
	}
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}
