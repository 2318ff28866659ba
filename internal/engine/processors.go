package engine

import (
	"fmt"
	"sort"

	"relicforge/internal/types"
)

// lane identifies which numeric accumulator an effect value lands in.
type lane int

const (
	laneNone lane = iota
	laneFlat
	lanePercent
	laneMultiplier
)

// boundEffect pairs an effect with the relic that carries it so traces can
// name their source. Gathering order (relic order, then declaration order)
// is the processing order everywhere below.
type boundEffect struct {
	relic  *types.Relic
	effect *types.Effect
	// value is the effective value after character-level scaling.
	value float64
}

// groupProcessor folds one stacking group into the composition state.
type groupProcessor func(st *compState, group []boundEffect)

// valueRouter describes how one effect type's value reaches the lanes:
// where an additive sub-group sum lands, which lane an overwrite winner
// rewrites, and how a value converts to a multiplicative factor. Types
// absent from the table are record-only with the default conversion.
type valueRouter struct {
	additive  lane
	overwrite lane
	convert   func(v float64) float64
}

func percentFactor(v float64) float64 { return 1 + v/100 }
func rawFactor(v float64) float64     { return v }

func defaultRouters() map[types.EffectType]valueRouter {
	return map[types.EffectType]valueRouter{
		types.EffectAttackFlat: {
			additive:  laneFlat,
			overwrite: laneFlat,
			convert:   percentFactor,
		},
		types.EffectAttackPercentage: {
			additive:  lanePercent,
			overwrite: lanePercent,
			convert:   percentFactor,
		},
		types.EffectAttackMultiplier: {
			additive:  laneNone,
			overwrite: laneMultiplier,
			convert:   rawFactor,
		},
		types.EffectCriticalMultiplier: {
			additive:  laneNone,
			overwrite: laneNone,
			convert:   rawFactor,
		},
		types.EffectCriticalChance:    {convert: percentFactor},
		types.EffectElementalDamage:   {convert: percentFactor},
		types.EffectConditionalDamage: {convert: percentFactor},
		types.EffectWeaponSpecific:    {convert: percentFactor},
		types.EffectUnique:            {convert: percentFactor},
	}
}

// router returns the table entry for t, falling back to record-only with
// the default percent conversion for types added after this table.
func (e *Engine) router(t types.EffectType) valueRouter {
	if r, ok := e.routers[t]; ok {
		return r
	}
	return valueRouter{convert: percentFactor}
}

// processAdditiveGroup sums passing effects per effect type and routes the
// sums. Sub-groups are processed in first-seen order, which is deterministic
// because gathering order is.
func (e *Engine) processAdditiveGroup(st *compState, group []boundEffect) {
	var order []types.EffectType
	sums := make(map[types.EffectType]float64)

	for _, be := range group {
		if !st.passes(be) {
			continue
		}
		t := be.effect.Type
		if _, seen := sums[t]; !seen {
			order = append(order, t)
		}
		sums[t] += be.value

		applied := e.router(t).additive != laneNone
		st.trace(be, types.StackingAdditive, applied, additiveNote(be, applied))
	}

	for _, t := range order {
		sum := sums[t]
		if sum == 0 {
			continue
		}
		switch e.router(t).additive {
		case laneFlat:
			st.flat += sum
			st.step(fmt.Sprintf("Additive %s bonus", t), types.OpAdd, sum, "", "")
		case lanePercent:
			st.percent += sum
			st.step(fmt.Sprintf("Additive %s bonus", t), types.OpAdd, sum, "", "")
		default:
			st.step(fmt.Sprintf("Additive %s recorded", t), types.OpAdd, sum, "", "")
		}
	}
}

func additiveNote(be boundEffect, applied bool) string {
	if !applied {
		return "recorded without multiplier contribution"
	}
	if be.value != be.effect.Value {
		return fmt.Sprintf("scaled by character level to %.4g", be.value)
	}
	return ""
}

// processMultiplicativeGroup multiplies every passing effect into the
// multiplicative lane using the type's conversion.
func (e *Engine) processMultiplicativeGroup(st *compState, group []boundEffect) {
	for _, be := range group {
		if !st.passes(be) {
			continue
		}
		factor := e.router(be.effect.Type).convert(be.value)
		st.mult *= factor
		st.trace(be, types.StackingMultiplicative, true, fmt.Sprintf("factor %.4g", factor))
		st.step(fmt.Sprintf("Multiplicative %s", be.effect.Type), types.OpMultiply,
			factor, be.relic.Name, be.effect.Name)
	}
}

// processOverwriteGroup resolves one winner per effect type: highest
// priority, ties broken by lexicographically smaller (relic id, effect id).
// The winner rewrites its lane; losers are traced as overwritten.
func (e *Engine) processOverwriteGroup(st *compState, group []boundEffect) {
	var order []types.EffectType
	byType := make(map[types.EffectType][]boundEffect)
	for _, be := range group {
		if !st.passes(be) {
			continue
		}
		t := be.effect.Type
		if _, seen := byType[t]; !seen {
			order = append(order, t)
		}
		byType[t] = append(byType[t], be)
	}

	for _, t := range order {
		contenders := byType[t]
		winner := contenders[0]
		for _, be := range contenders[1:] {
			if beats(be, winner) {
				winner = be
			}
		}

		for _, be := range contenders {
			if be == winner {
				continue
			}
			st.trace(be, types.StackingOverwrite, false,
				fmt.Sprintf("overwritten by %s", winner.effect.Name))
		}

		router := e.router(t)
		switch router.overwrite {
		case laneFlat:
			st.flat = winner.value
			st.trace(winner, types.StackingOverwrite, true, "")
			st.step(fmt.Sprintf("Overwrite %s (priority %d)", t, winner.effect.Priority),
				types.OpOverwrite, winner.value, winner.relic.Name, winner.effect.Name)
		case lanePercent:
			st.percent = winner.value
			st.trace(winner, types.StackingOverwrite, true, "")
			st.step(fmt.Sprintf("Overwrite %s (priority %d)", t, winner.effect.Priority),
				types.OpOverwrite, winner.value, winner.relic.Name, winner.effect.Name)
		case laneMultiplier:
			factor := router.convert(winner.value)
			st.mult = factor
			st.trace(winner, types.StackingOverwrite, true, fmt.Sprintf("factor %.4g", factor))
			st.step(fmt.Sprintf("Overwrite %s (priority %d)", t, winner.effect.Priority),
				types.OpOverwrite, factor, winner.relic.Name, winner.effect.Name)
		default:
			st.trace(winner, types.StackingOverwrite, false, "recorded without multiplier contribution")
		}
	}
}

// beats reports whether a should win the overwrite slot over b.
func beats(a, b boundEffect) bool {
	if a.effect.Priority != b.effect.Priority {
		return a.effect.Priority > b.effect.Priority
	}
	if a.relic.ID != b.relic.ID {
		return a.relic.ID < b.relic.ID
	}
	return a.effect.ID < b.effect.ID
}

// processUniqueGroup handles the one-off rules. conditional_damage becomes
// an annotation, weapon_specific multiplies in when its weapon gate matches
// the context, everything else is traced without numeric effect.
func (e *Engine) processUniqueGroup(st *compState, group []boundEffect) {
	for _, be := range group {
		if !st.passes(be) {
			continue
		}
		switch be.effect.Type {
		case types.EffectConditionalDamage:
			st.conditional(be)
			st.trace(be, types.StackingUnique, false, "conditional damage annotation")
		case types.EffectWeaponSpecific:
			if wc, ok := be.effect.Conditions.WeaponRequirement(); ok && wc.Weapon != st.cctx.WeaponType {
				st.trace(be, types.StackingUnique, false,
					fmt.Sprintf("requires weapon %s", wc.Weapon))
				continue
			}
			factor := e.router(be.effect.Type).convert(be.value)
			st.mult *= factor
			st.trace(be, types.StackingUnique, true, fmt.Sprintf("factor %.4g", factor))
			st.step(fmt.Sprintf("Weapon-specific bonus (%s)", st.cctx.WeaponType),
				types.OpMultiply, factor, be.relic.Name, be.effect.Name)
		default:
			st.trace(be, types.StackingUnique, false, "recorded without multiplier contribution")
		}
	}
}

func sortedIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
