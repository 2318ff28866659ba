package optimizer

import (
	"relicforge/internal/metrics"
	"relicforge/internal/types"
)

// Strategy names, used for metrics labels and run metadata.
const (
	strategyReplacement = "replacement"
	strategyAddition    = "addition"
	strategySynergy     = "synergy"
	strategyMeta        = "meta"
)

// synergyGroups names the effect families considered for pairing, in
// evaluation order.
var synergyGroups = []string{
	"attack_boost",
	"critical_focus",
	"weapon_specific",
	"conditional_damage",
	"elemental_damage",
}

// candidate is one combination awaiting evaluation.
type candidate struct {
	ids      []string
	key      string
	strategy string
}

// generate unions the four strategies, drops inadmissible combinations and
// dedupes on the sorted relic-id set. The current build itself is never a
// candidate.
func (s *Service) generate(currentIDs []string, current, pool []types.Relic, byID map[string]*types.Relic, cctx *types.CombatContext) ([]candidate, map[string]int) {
	raw := s.replacementCandidates(currentIDs, pool)
	raw = append(raw, s.additionCandidates(currentIDs, pool)...)
	raw = append(raw, s.synergyCandidates(current, pool, byID)...)
	raw = append(raw, s.metaCandidates(cctx.CombatStyle, byID)...)

	currentKey := candidateKey(currentIDs)
	seen := make(map[string]struct{}, len(raw))
	byStrategy := make(map[string]int, 4)
	out := make([]candidate, 0, len(raw))
	for _, cand := range raw {
		cand.key = candidateKey(cand.ids)
		if cand.key == currentKey {
			continue
		}
		if _, dup := seen[cand.key]; dup {
			continue
		}
		if !admissible(cand.ids, byID) {
			continue
		}
		seen[cand.key] = struct{}{}
		byStrategy[cand.strategy]++
		out = append(out, cand)
	}
	for strategy, n := range byStrategy {
		metrics.OptimizerCandidates.WithLabelValues(strategy).Add(float64(n))
	}
	return out, byStrategy
}

// replacementCandidates swaps each slot of the current build for each pool
// relic.
func (s *Service) replacementCandidates(currentIDs []string, pool []types.Relic) []candidate {
	out := make([]candidate, 0, len(currentIDs)*len(pool))
	for slot := range currentIDs {
		for i := range pool {
			ids := append([]string(nil), currentIDs...)
			ids[slot] = pool[i].ID
			out = append(out, candidate{ids: ids, strategy: strategyReplacement})
		}
	}
	return out
}

// additionCandidates appends one pool relic to the current build, plus each
// pool pair when the build is small enough that exploring pairs stays cheap.
func (s *Service) additionCandidates(currentIDs []string, pool []types.Relic) []candidate {
	if len(currentIDs) >= types.MaxRelicsPerBuild {
		return nil
	}
	var out []candidate
	for i := range pool {
		ids := append(append([]string(nil), currentIDs...), pool[i].ID)
		out = append(out, candidate{ids: ids, strategy: strategyAddition})
	}
	if len(currentIDs) <= 3 && len(currentIDs)+2 <= types.MaxRelicsPerBuild {
		for i := range pool {
			for j := i + 1; j < len(pool); j++ {
				ids := append(append([]string(nil), currentIDs...), pool[i].ID, pool[j].ID)
				out = append(out, candidate{ids: ids, strategy: strategyAddition})
			}
		}
	}
	return out
}

// synergyCandidates buckets the pool by dominant effect family and pairs
// relics inside each bucket of two or more, padding every pair with current
// relics that fit without conflicts.
func (s *Service) synergyCandidates(current, pool []types.Relic, byID map[string]*types.Relic) []candidate {
	buckets := make(map[string][]string, len(synergyGroups))
	for i := range pool {
		if group := dominantGroup(&pool[i]); group != "" {
			buckets[group] = append(buckets[group], pool[i].ID)
		}
	}

	var out []candidate
	for _, group := range synergyGroups {
		members := buckets[group]
		if len(members) < 2 {
			continue
		}
		for i := range members {
			for j := i + 1; j < len(members); j++ {
				ids := padWithCurrent([]string{members[i], members[j]}, current, byID)
				out = append(out, candidate{ids: ids, strategy: strategySynergy})
			}
		}
	}
	return out
}

// metaCandidates proposes the configured archetype build for the combat
// style, restricted to relics actually in the pool.
func (s *Service) metaCandidates(style types.CombatStyle, byID map[string]*types.Relic) []candidate {
	meta := s.cfg.MetaBuilds[string(style)]
	if len(meta) == 0 {
		return nil
	}
	ids := make([]string, 0, len(meta))
	for _, id := range meta {
		if _, ok := byID[id]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return []candidate{{ids: ids, strategy: strategyMeta}}
}

// dominantGroup classifies a relic by the synergy family its active effects
// hit most often. Ties resolve to the earlier family in synergyGroups.
func dominantGroup(r *types.Relic) string {
	counts := make(map[string]int, 3)
	for i := range r.Effects {
		e := &r.Effects[i]
		if !e.Active {
			continue
		}
		if group := effectGroup(e.Type); group != "" {
			counts[group]++
		}
	}
	best, bestCount := "", 0
	for _, group := range synergyGroups {
		if counts[group] > bestCount {
			best, bestCount = group, counts[group]
		}
	}
	return best
}

func effectGroup(t types.EffectType) string {
	switch t {
	case types.EffectAttackMultiplier, types.EffectAttackFlat, types.EffectAttackPercentage:
		return "attack_boost"
	case types.EffectCriticalMultiplier, types.EffectCriticalChance:
		return "critical_focus"
	case types.EffectWeaponSpecific:
		return "weapon_specific"
	case types.EffectConditionalDamage:
		return "conditional_damage"
	case types.EffectElementalDamage:
		return "elemental_damage"
	}
	return ""
}

// padWithCurrent extends a seed pair with current relics, preserving their
// order and skipping any that duplicate or conflict with the set so far.
func padWithCurrent(seed []string, current []types.Relic, byID map[string]*types.Relic) []string {
	ids := append([]string(nil), seed...)
	for i := range current {
		if len(ids) >= types.MaxRelicsPerBuild {
			break
		}
		id := current[i].ID
		if contains(ids, id) || conflictsWithAny(id, ids, byID) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// admissible enforces the build cap, uniqueness and pairwise conflict rules.
func admissible(ids []string, byID map[string]*types.Relic) bool {
	if len(ids) == 0 || len(ids) > types.MaxRelicsPerBuild {
		return false
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	for i, id := range ids {
		if conflictsWithAny(id, ids[i+1:], byID) {
			return false
		}
	}
	return true
}

func conflictsWithAny(id string, others []string, byID map[string]*types.Relic) bool {
	r := byID[id]
	for _, other := range others {
		if other == id {
			continue
		}
		o := byID[other]
		if r != nil && r.ConflictsWith(other) {
			return true
		}
		if o != nil && o.ConflictsWith(id) {
			return true
		}
	}
	return false
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
