package engine

import (
	"context"
	"fmt"

	"relicforge/internal/types"
)

// compState is the working state of one composition run. The four lanes
// combine at the end as (base + flat) × (1 + percent/100) × mult.
type compState struct {
	cctx *types.CombatContext

	baseAttack float64
	flat       float64
	percent    float64
	mult       float64

	steps        []types.BreakdownStep
	traces       []types.StackingBonus
	conditionals []types.ConditionalEffect
	warnings     []string
}

func newCompState(cctx *types.CombatContext) *compState {
	st := &compState{
		cctx:         cctx,
		baseAttack:   cctx.AttackPower(),
		mult:         1,
		steps:        make([]types.BreakdownStep, 0, 8),
		traces:       make([]types.StackingBonus, 0, 8),
		conditionals: make([]types.ConditionalEffect, 0),
	}
	st.step("Base attack power", types.OpBase, st.baseAttack, "", "")
	return st
}

// total is the raw combined value before rounding.
func (st *compState) total() float64 {
	return (st.baseAttack + st.flat) * (1 + st.percent/100) * st.mult
}

// passes evaluates the effect's condition gate and surfaces the time-window
// warning for effects that pass while carrying a time_based condition.
func (st *compState) passes(be boundEffect) bool {
	if !be.effect.Conditions.AllMatch(st.cctx) {
		st.trace(be, be.effect.Stacking, false, "conditions not met")
		return false
	}
	if be.effect.Conditions.HasTimeBased() {
		st.warn(fmt.Sprintf("time window not evaluated for effect %s", be.effect.Name))
	}
	return true
}

func (st *compState) step(desc string, op types.Operation, value float64, relicName, effectName string) {
	st.steps = append(st.steps, types.BreakdownStep{
		Step:         len(st.steps) + 1,
		Description:  desc,
		Operation:    op,
		Value:        value,
		RunningTotal: st.total(),
		RelicName:    relicName,
		EffectName:   effectName,
	})
}

func (st *compState) trace(be boundEffect, rule types.StackingRule, applied bool, note string) {
	st.traces = append(st.traces, types.StackingBonus{
		Rule:       rule,
		EffectType: be.effect.Type,
		RelicID:    be.relic.ID,
		RelicName:  be.relic.Name,
		EffectID:   be.effect.ID,
		EffectName: be.effect.Name,
		Value:      be.value,
		Applied:    applied,
		Note:       note,
	})
}

func (st *compState) conditional(be boundEffect) {
	st.conditionals = append(st.conditionals, types.ConditionalEffect{
		RelicID:    be.relic.ID,
		RelicName:  be.relic.Name,
		EffectID:   be.effect.ID,
		EffectName: be.effect.Name,
		Value:      be.value,
		Conditions: be.effect.Conditions.Describe(),
	})
}

func (st *compState) warn(msg string) {
	for _, w := range st.warnings {
		if w == msg {
			return
		}
	}
	st.warnings = append(st.warnings, msg)
}

// compute runs the composition over a validated bundle. The context deadline
// is checked at every group boundary so a stalled caller fails with
// CALCULATION_TIMEOUT instead of burning the whole budget.
func (e *Engine) compute(ctx context.Context, bundle *types.PreprocessBundle, cctx *types.CombatContext) (*types.CompositionResult, error) {
	st := newCompState(cctx)
	groups := e.gather(bundle.Relics, cctx)

	for _, rule := range types.StackingOrder {
		if ctx.Err() != nil {
			return nil, timeoutError(fmt.Sprintf("%s group", rule))
		}
		group := groups[rule]
		if len(group) == 0 {
			continue
		}
		e.processors[rule](st, group)
	}
	if ctx.Err() != nil {
		return nil, timeoutError("result assembly")
	}

	return e.assemble(st, bundle), nil
}

// gather flattens active effects in relic order then declaration order and
// buckets them by stacking rule. Effective values are resolved here: an
// attack_percentage effect marked with the character-level sentinel scales
// by the context's level before any accumulation.
func (e *Engine) gather(relics []types.Relic, cctx *types.CombatContext) map[types.StackingRule][]boundEffect {
	groups := make(map[types.StackingRule][]boundEffect, len(types.StackingOrder))
	for i := range relics {
		relic := &relics[i]
		if !relic.Active {
			continue
		}
		for j := range relic.Effects {
			effect := &relic.Effects[j]
			if !effect.Active {
				continue
			}
			be := boundEffect{relic: relic, effect: effect, value: effectiveValue(effect, cctx)}
			groups[effect.Stacking] = append(groups[effect.Stacking], be)
		}
	}
	return groups
}

// effectiveValue applies character-level scaling where the sentinel marks it.
func effectiveValue(effect *types.Effect, cctx *types.CombatContext) float64 {
	if effect.Type == types.EffectAttackPercentage && effect.Conditions.ScalesWithCharacterLevel() {
		return effect.Value * float64(cctx.Level())
	}
	return effect.Value
}

// assemble rounds the lanes into the result contract. Damage stays untyped:
// every damage type is present at zero and physical carries the final power.
func (e *Engine) assemble(st *compState, bundle *types.PreprocessBundle) *types.CompositionResult {
	total := st.total()

	damage := make(map[types.DamageType]float64, 7)
	for _, dt := range types.AllDamageTypes() {
		damage[dt] = 0
	}
	final := types.Round2(total)
	damage[types.DamagePhysical] = final

	warnings := make([]string, 0, len(bundle.Warnings)+len(st.warnings))
	warnings = append(warnings, bundle.Warnings...)
	warnings = append(warnings, st.warnings...)

	return &types.CompositionResult{
		TotalMultiplier:    types.Round3(total / st.baseAttack),
		BaseMultiplier:     1.0,
		FinalAttackPower:   final,
		BaseAttackPower:    st.baseAttack,
		StackingBonuses:    st.traces,
		ConditionalEffects: st.conditionals,
		Breakdown:          st.steps,
		DamageByType:       damage,
		Warnings:           warnings,
		EngineVersion:      e.version,
	}
}

// Baseline returns the composition of an empty selection: multiplier 1.0
// over the context's base attack power. The optimizer uses it to rate empty
// current builds, which the public compose path rejects as EMPTY_RELIC_LIST.
func (e *Engine) Baseline(cctx *types.CombatContext) (*types.CompositionResult, error) {
	norm, err := cctx.Normalize()
	if err != nil {
		return nil, err
	}
	st := newCompState(norm)
	return e.assemble(st, &types.PreprocessBundle{}), nil
}
