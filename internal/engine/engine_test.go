package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"relicforge/internal/cache"
	"relicforge/internal/store"
	"relicforge/internal/types"
)

func relic(id string, effects ...types.Effect) types.Relic {
	return types.Relic{
		ID: id, Name: "Relic " + id,
		Category: types.CategoryAttack, Rarity: types.RarityRare,
		Quality: types.QualityPolished, ObtainmentDifficulty: 3,
		Active: true, Effects: effects,
	}
}

func effect(id string, t types.EffectType, value float64, rule types.StackingRule, conds ...types.Condition) types.Effect {
	return types.Effect{
		ID: id, Name: "Effect " + id,
		Type: t, Value: value, Stacking: rule,
		Active: true, Conditions: conds,
	}
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestEngine(t *testing.T, relics ...types.Relic) *Engine {
	t.Helper()
	return NewEngine(Deps{Repo: store.NewMemoryRepository(relics...)}, Config{})
}

func compose(t *testing.T, e *Engine, ids []string, cctx *types.CombatContext) *types.CompositionResult {
	t.Helper()
	res, err := e.Compose(context.Background(), ids, cctx, Options{IncludeBreakdown: true})
	if err != nil {
		t.Fatalf("Compose(%v): %v", ids, err)
	}
	return res
}

func TestBaselineEmptySelection(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Baseline(nil)
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if res.TotalMultiplier != 1.0 {
		t.Errorf("total_multiplier = %v, want 1.000", res.TotalMultiplier)
	}
	if res.FinalAttackPower != 100.0 {
		t.Errorf("final_attack_power = %v, want 100.00", res.FinalAttackPower)
	}
}

func TestComposeAdditivePercentage(t *testing.T) {
	// A plain additive percentage does not scale with level; only the
	// equipment_count/"character_level" marker switches scaling on.
	e := newTestEngine(t,
		relic("plain_band", effect("plain_power", types.EffectAttackPercentage, 2, types.StackingAdditive)))

	res := compose(t, e, []string{"plain_band"}, &types.CombatContext{CharacterLevel: 50})
	if res.TotalMultiplier != 1.020 {
		t.Errorf("total_multiplier = %v, want 1.020", res.TotalMultiplier)
	}
}

func TestComposeLevelScaledPercentage(t *testing.T) {
	e := newTestEngine(t,
		relic("scaling_idol", effect("scaling_power", types.EffectAttackPercentage, 2, types.StackingAdditive,
			types.EquipmentCountCondition{ScalesWithLevel: true})))

	res := compose(t, e, []string{"scaling_idol"}, &types.CombatContext{CharacterLevel: 50})
	if res.TotalMultiplier != 2.000 {
		t.Errorf("total_multiplier = %v, want 2.000", res.TotalMultiplier)
	}
	if res.FinalAttackPower != 200.0 {
		t.Errorf("final_attack_power = %v, want 200.00", res.FinalAttackPower)
	}
}

func TestComposeMultiplicativeChain(t *testing.T) {
	e := newTestEngine(t,
		relic("first_seal", effect("first_mult", types.EffectAttackMultiplier, 1.2, types.StackingMultiplicative)),
		relic("second_seal", effect("second_mult", types.EffectAttackMultiplier, 1.2, types.StackingMultiplicative)))

	res := compose(t, e, []string{"first_seal", "second_seal"}, nil)
	if res.TotalMultiplier != 1.440 {
		t.Errorf("total_multiplier = %v, want 1.440", res.TotalMultiplier)
	}
}

func TestComposeWeaponSpecific(t *testing.T) {
	e := newTestEngine(t,
		relic("sword_emblem", effect("sword_bonus", types.EffectWeaponSpecific, 7, types.StackingUnique,
			types.WeaponTypeCondition{Weapon: "straight_sword"})))

	match := compose(t, e, []string{"sword_emblem"}, &types.CombatContext{WeaponType: "straight_sword"})
	if match.TotalMultiplier != 1.070 {
		t.Errorf("matching weapon: total = %v, want 1.070", match.TotalMultiplier)
	}

	miss := compose(t, e, []string{"sword_emblem"}, &types.CombatContext{WeaponType: "bow"})
	if miss.TotalMultiplier != 1.000 {
		t.Errorf("mismatched weapon: total = %v, want 1.000", miss.TotalMultiplier)
	}
}

func TestComposeConflictRejection(t *testing.T) {
	a := relic("moon_pendant", effect("moon_power", types.EffectAttackPercentage, 10, types.StackingAdditive))
	a.Conflicts = []string{"sun_pendant"}
	b := relic("sun_pendant", effect("sun_power", types.EffectAttackPercentage, 10, types.StackingAdditive))
	e := newTestEngine(t, a, b)

	_, err := e.Compose(context.Background(), []string{"moon_pendant", "sun_pendant"}, nil, Options{})
	if !types.IsCode(err, types.ErrConflictingRelics) {
		t.Fatalf("err = %v, want CONFLICTING_RELICS", err)
	}
}

func TestComposeOverwriteTieBreak(t *testing.T) {
	// Same priority: lexicographically smaller (relic_id, effect_id) wins.
	mk := func(relicID, effectID string, value float64) types.Relic {
		eff := effect(effectID, types.EffectAttackFlat, value, types.StackingOverwrite)
		eff.Priority = 5
		return relic(relicID, eff)
	}
	e := newTestEngine(t, mk("alpha_band", "alpha_flat", 30), mk("beta_band", "beta_flat", 50))

	res := compose(t, e, []string{"beta_band", "alpha_band"}, nil)
	if res.FinalAttackPower != 130.0 {
		t.Errorf("final = %v, want 130.00 (alpha_band wins the tie)", res.FinalAttackPower)
	}
	if res.TotalMultiplier != 1.300 {
		t.Errorf("total = %v, want 1.300", res.TotalMultiplier)
	}
}

func TestComposeOverwritePriorityWins(t *testing.T) {
	low := effect("low_flat", types.EffectAttackFlat, 80, types.StackingOverwrite)
	low.Priority = 2
	high := effect("high_flat", types.EffectAttackFlat, 40, types.StackingOverwrite)
	high.Priority = 7
	e := newTestEngine(t, relic("low_band", low), relic("high_band", high))

	res := compose(t, e, []string{"low_band", "high_band"}, nil)
	if res.FinalAttackPower != 140.0 {
		t.Errorf("final = %v, want 140.00 (priority 7 wins)", res.FinalAttackPower)
	}
}

func TestComposeOverwritePercentageLane(t *testing.T) {
	// Additive percentages are replaced wholesale by an overwrite winner on
	// the same lane.
	ow := effect("sigil_surge", types.EffectAttackPercentage, 30, types.StackingOverwrite)
	ow.Priority = 5
	e := newTestEngine(t,
		relic("small_band", effect("small_power", types.EffectAttackPercentage, 10, types.StackingAdditive)),
		relic("crimson_sigil", ow))

	res := compose(t, e, []string{"small_band", "crimson_sigil"}, nil)
	if res.TotalMultiplier != 1.300 {
		t.Errorf("total = %v, want 1.300 (overwrite replaces the additive sum)", res.TotalMultiplier)
	}
}

func TestComposeCombinedLanes(t *testing.T) {
	// final = (base + flat) × (1 + pct/100) × mult
	e := newTestEngine(t,
		relic("iron_ring", effect("iron_flat", types.EffectAttackFlat, 50, types.StackingAdditive)),
		relic("giants_ring", effect("giant_power", types.EffectAttackPercentage, 20, types.StackingAdditive)),
		relic("war_seal", effect("war_mult", types.EffectAttackMultiplier, 1.5, types.StackingMultiplicative)))

	res := compose(t, e, []string{"iron_ring", "giants_ring", "war_seal"}, nil)
	// (100+50) × 1.2 × 1.5 = 270
	if res.FinalAttackPower != 270.0 {
		t.Errorf("final = %v, want 270.00", res.FinalAttackPower)
	}
	if res.TotalMultiplier != 2.700 {
		t.Errorf("total = %v, want 2.700", res.TotalMultiplier)
	}
}

func TestComposeRecordOnlyAdditive(t *testing.T) {
	e := newTestEngine(t,
		relic("lucky_coin", effect("lucky_crit", types.EffectCriticalChance, 15, types.StackingAdditive)))

	res := compose(t, e, []string{"lucky_coin"}, nil)
	if res.TotalMultiplier != 1.000 {
		t.Errorf("total = %v, want 1.000 (critical_chance is record-only)", res.TotalMultiplier)
	}
	var traced bool
	for _, b := range res.StackingBonuses {
		if b.EffectID == "lucky_crit" && !b.Applied {
			traced = true
		}
	}
	if !traced {
		t.Error("record-only effect missing from stacking traces")
	}
}

func TestComposeCriticalMultiplierRawFactor(t *testing.T) {
	// critical_multiplier converts as-is when its group routes it through
	// the multiplicative lane.
	e := newTestEngine(t,
		relic("duelists_band", effect("duel_crit", types.EffectCriticalMultiplier, 1.5, types.StackingMultiplicative)))

	res := compose(t, e, []string{"duelists_band"}, nil)
	if res.TotalMultiplier != 1.500 {
		t.Errorf("total = %v, want 1.500", res.TotalMultiplier)
	}
}

func TestComposeConditionalDamageAnnotation(t *testing.T) {
	e := newTestEngine(t,
		relic("night_blade", effect("night_edge", types.EffectConditionalDamage, 25, types.StackingUnique,
			types.EnemyTypeCondition{Enemy: "undead"})))

	cctx := &types.CombatContext{}
	cctx.SetCondition("enemy_type", "undead")
	res := compose(t, e, []string{"night_blade"}, cctx)

	if res.TotalMultiplier != 1.000 {
		t.Errorf("total = %v, want 1.000 (conditional damage is annotation-only)", res.TotalMultiplier)
	}
	if len(res.ConditionalEffects) != 1 || res.ConditionalEffects[0].EffectID != "night_edge" {
		t.Fatalf("conditional_effects = %+v, want the night_edge annotation", res.ConditionalEffects)
	}
}

func TestComposeConditionGates(t *testing.T) {
	hp := effect("rage_surge", types.EffectAttackPercentage, 25, types.StackingAdditive,
		types.HealthThresholdCondition{MaxPercent: 50})
	e := newTestEngine(t, relic("berserkers_seal", hp))

	tests := []struct {
		name   string
		health any
		want   float64
	}{
		{"below threshold", 30, 1.250},
		{"at threshold", 50, 1.250},
		{"above threshold", 80, 1.000},
		{"no reading", nil, 1.000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cctx := &types.CombatContext{}
			if tc.health != nil {
				cctx.SetCondition("health_percentage", tc.health)
			}
			res := compose(t, e, []string{"berserkers_seal"}, cctx)
			if res.TotalMultiplier != tc.want {
				t.Errorf("total = %v, want %v", res.TotalMultiplier, tc.want)
			}
		})
	}
}

func TestComposeUnknownConditionDisablesEffect(t *testing.T) {
	e := newTestEngine(t,
		relic("odd_charm", effect("odd_power", types.EffectAttackPercentage, 40, types.StackingAdditive,
			types.UnknownCondition{RawType: "moon_phase"})))

	res := compose(t, e, []string{"odd_charm"}, nil)
	if res.TotalMultiplier != 1.000 {
		t.Errorf("total = %v, want 1.000 (unknown condition disables the effect)", res.TotalMultiplier)
	}
}

func TestComposeTimeBasedWarning(t *testing.T) {
	e := newTestEngine(t,
		relic("twilight_band", effect("twilight_power", types.EffectAttackPercentage, 10, types.StackingAdditive,
			types.TimeBasedCondition{Window: "night"})))

	res := compose(t, e, []string{"twilight_band"}, nil)
	if res.TotalMultiplier != 1.100 {
		t.Errorf("total = %v, want 1.100 (time gate passes optimistically)", res.TotalMultiplier)
	}
	var warned bool
	for _, w := range res.Warnings {
		if strings.Contains(w, "time window not evaluated") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("warnings = %v, want a time-window notice", res.Warnings)
	}
}

func TestComposeInactiveEffectIgnored(t *testing.T) {
	dead := effect("dead_power", types.EffectAttackPercentage, 50, types.StackingAdditive)
	dead.Active = false
	e := newTestEngine(t, relic("sleepy_ring", dead,
		effect("live_power", types.EffectAttackPercentage, 10, types.StackingAdditive)))

	res := compose(t, e, []string{"sleepy_ring"}, nil)
	if res.TotalMultiplier != 1.100 {
		t.Errorf("total = %v, want 1.100 (inactive effect contributes nothing)", res.TotalMultiplier)
	}
}

func TestComposeBreakdownOrdering(t *testing.T) {
	e := newTestEngine(t,
		relic("iron_ring", effect("iron_flat", types.EffectAttackFlat, 50, types.StackingAdditive)),
		relic("war_seal", effect("war_mult", types.EffectAttackMultiplier, 2, types.StackingMultiplicative)))

	res := compose(t, e, []string{"iron_ring", "war_seal"}, nil)
	if len(res.Breakdown) == 0 {
		t.Fatal("breakdown empty")
	}
	if res.Breakdown[0].Operation != types.OpBase {
		t.Errorf("first step operation = %s, want base", res.Breakdown[0].Operation)
	}
	for i, step := range res.Breakdown {
		if step.Step != i+1 {
			t.Errorf("step %d numbered %d, want %d", i, step.Step, i+1)
		}
	}
	last := res.Breakdown[len(res.Breakdown)-1]
	if last.RunningTotal != 300.0 {
		t.Errorf("final running total = %v, want 300", last.RunningTotal)
	}
}

func TestComposeDamageByType(t *testing.T) {
	e := newTestEngine(t,
		relic("giants_ring", effect("giant_power", types.EffectAttackPercentage, 20, types.StackingAdditive)))

	res := compose(t, e, []string{"giants_ring"}, nil)
	if len(res.DamageByType) != 7 {
		t.Fatalf("damage_by_type has %d entries, want 7", len(res.DamageByType))
	}
	if res.DamageByType[types.DamagePhysical] != res.FinalAttackPower {
		t.Errorf("physical = %v, want final %v", res.DamageByType[types.DamagePhysical], res.FinalAttackPower)
	}
	for _, dt := range types.AllDamageTypes() {
		if dt == types.DamagePhysical {
			continue
		}
		if res.DamageByType[dt] != 0 {
			t.Errorf("%s = %v, want 0", dt, res.DamageByType[dt])
		}
	}
}

func TestComposeDeterministic(t *testing.T) {
	e := newTestEngine(t,
		relic("giants_ring", effect("giant_power", types.EffectAttackPercentage, 20, types.StackingAdditive)),
		relic("war_seal", effect("war_mult", types.EffectAttackMultiplier, 1.3, types.StackingMultiplicative)),
		relic("night_blade", effect("night_edge", types.EffectConditionalDamage, 25, types.StackingUnique)))

	ids := []string{"giants_ring", "war_seal", "night_blade"}
	first := compose(t, e, ids, nil)
	second := compose(t, e, ids, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated composition differs (-first +second):\n%s", diff)
	}
}

func TestCacheKeyProperties(t *testing.T) {
	cctx := types.DefaultContext()

	k1, _, err := CacheKey([]string{"b", "a"}, cctx, Version)
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	k2, _, err := CacheKey([]string{"a", "b"}, cctx, Version)
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	if k1 != k2 {
		t.Error("key depends on relic order")
	}

	k3, _, err := CacheKey([]string{"a", "b"}, cctx, "0.0.0")
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	if k1 == k3 {
		t.Error("key ignores engine version")
	}

	other := &types.CombatContext{CombatStyle: types.StyleMagic}
	k4, _, err := CacheKey([]string{"a", "b"}, other, Version)
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	if k1 == k4 {
		t.Error("key ignores context")
	}
}

func TestComposeCacheRoundTrip(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	repo := store.NewMemoryRepository(
		relic("giants_ring", effect("giant_power", types.EffectAttackPercentage, 20, types.StackingAdditive)))
	c := cache.NewMemory(clk)
	e := NewEngine(Deps{Repo: repo, Cache: c, Clock: clk}, Config{})

	ids := []string{"giants_ring"}
	first, err := e.Compose(context.Background(), ids, nil, Options{IncludeBreakdown: true})
	if err != nil {
		t.Fatalf("first Compose: %v", err)
	}
	if first.CacheHit {
		t.Error("first composition reported a cache hit")
	}

	second, err := e.Compose(context.Background(), ids, nil, Options{IncludeBreakdown: true})
	if err != nil {
		t.Fatalf("second Compose: %v", err)
	}
	if !second.CacheHit {
		t.Fatal("second composition missed the cache")
	}

	want := *first
	want.CacheHit = true
	if diff := cmp.Diff(&want, second); diff != "" {
		t.Errorf("cache hit differs from computed result (-want +got):\n%s", diff)
	}

	// Permuted input hits the same entry.
	third, err := e.Compose(context.Background(), []string{"giants_ring"}, types.DefaultContext(), Options{})
	if err != nil {
		t.Fatalf("third Compose: %v", err)
	}
	if !third.CacheHit {
		t.Error("default context did not hit the entry for nil context")
	}
	if len(third.Breakdown) != 0 {
		t.Error("breakdown returned without IncludeBreakdown")
	}
}

func TestComposeVersionBumpMisses(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	repo := store.NewMemoryRepository(
		relic("giants_ring", effect("giant_power", types.EffectAttackPercentage, 20, types.StackingAdditive)))
	c := cache.NewMemory(clk)
	e := NewEngine(Deps{Repo: repo, Cache: c, Clock: clk}, Config{})

	if _, err := e.Compose(context.Background(), []string{"giants_ring"}, nil, Options{}); err != nil {
		t.Fatalf("Compose: %v", err)
	}

	e.version = "9.9.9"
	res, err := e.Compose(context.Background(), []string{"giants_ring"}, nil, Options{})
	if err != nil {
		t.Fatalf("Compose after version bump: %v", err)
	}
	if res.CacheHit {
		t.Error("version bump still hit the old entry")
	}
	if res.EngineVersion != "9.9.9" {
		t.Errorf("engine_version = %s, want 9.9.9", res.EngineVersion)
	}
}

func TestComposeForceRecalculate(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	repo := store.NewMemoryRepository(
		relic("giants_ring", effect("giant_power", types.EffectAttackPercentage, 20, types.StackingAdditive)))
	c := cache.NewMemory(clk)
	e := NewEngine(Deps{Repo: repo, Cache: c, Clock: clk}, Config{})

	if _, err := e.Compose(context.Background(), []string{"giants_ring"}, nil, Options{}); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	res, err := e.Compose(context.Background(), []string{"giants_ring"}, nil, Options{ForceRecalculate: true})
	if err != nil {
		t.Fatalf("forced Compose: %v", err)
	}
	if res.CacheHit {
		t.Error("ForceRecalculate still served from cache")
	}
}

// failingCache errors on every operation.
type failingCache struct{ lookupErr, storeErr error }

func (f *failingCache) Lookup(context.Context, string) (*types.CacheEntry, bool, error) {
	return nil, false, f.lookupErr
}
func (f *failingCache) Store(context.Context, *types.CacheEntry, time.Duration) error {
	return f.storeErr
}
func (f *failingCache) CleanupExpired(context.Context) (int, error) { return 0, nil }
func (f *failingCache) TrimToSize(context.Context, int) (int, error) {
	return 0, nil
}
func (f *failingCache) DeleteAll(context.Context) error { return nil }
func (f *failingCache) Stats(context.Context, int) (*types.CacheStats, error) {
	return &types.CacheStats{}, nil
}
func (f *failingCache) Close() error { return nil }

func TestComposeCacheFailureModes(t *testing.T) {
	repo := store.NewMemoryRepository(
		relic("giants_ring", effect("giant_power", types.EffectAttackPercentage, 20, types.StackingAdditive)))

	t.Run("lookup failure is internal", func(t *testing.T) {
		e := NewEngine(Deps{Repo: repo, Cache: &failingCache{lookupErr: errors.New("backend down")}}, Config{})
		_, err := e.Compose(context.Background(), []string{"giants_ring"}, nil, Options{})
		if !types.IsCode(err, types.ErrInternal) {
			t.Fatalf("err = %v, want INTERNAL", err)
		}
	})

	t.Run("store failure is suppressed", func(t *testing.T) {
		e := NewEngine(Deps{Repo: repo, Cache: &failingCache{storeErr: errors.New("disk full")}}, Config{})
		res, err := e.Compose(context.Background(), []string{"giants_ring"}, nil, Options{ForceRecalculate: true})
		if err != nil {
			t.Fatalf("Compose: %v", err)
		}
		if res.TotalMultiplier != 1.200 {
			t.Errorf("total = %v, want 1.200", res.TotalMultiplier)
		}
	})
}

func TestComposeTimeout(t *testing.T) {
	e := newTestEngine(t,
		relic("giants_ring", effect("giant_power", types.EffectAttackPercentage, 20, types.StackingAdditive)))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := e.Compose(ctx, []string{"giants_ring"}, nil, Options{})
	if !types.IsCode(err, types.ErrCalculationTimeout) {
		t.Fatalf("err = %v, want CALCULATION_TIMEOUT", err)
	}
}

func TestComposeRejectsBadContext(t *testing.T) {
	e := newTestEngine(t,
		relic("giants_ring", effect("giant_power", types.EffectAttackPercentage, 20, types.StackingAdditive)))

	_, err := e.Compose(context.Background(), []string{"giants_ring"},
		&types.CombatContext{CombatStyle: "dancing"}, Options{})
	if !types.IsCode(err, types.ErrInvalidCombatStyle) {
		t.Fatalf("err = %v, want INVALID_COMBAT_STYLE", err)
	}
}
