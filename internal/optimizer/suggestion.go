package optimizer

import (
	"fmt"
	"sort"
	"strings"

	"relicforge/internal/types"
)

// Notable effects drive the explanation text; smaller values are noise.
const notableEffectValue = 10.0

// suggestion turns one kept candidate into the user-facing recommendation.
func (s *Service) suggestion(sc scored, byID map[string]*types.Relic, current []types.Relic, currentMultiplier float64) Suggestion {
	relics := make([]types.Relic, 0, len(sc.cand.ids))
	for _, id := range sc.cand.ids {
		if r, ok := byID[id]; ok {
			relics = append(relics, *r)
		}
	}
	difficulty := difficultySum(sc.cand.ids, byID)

	return Suggestion{
		ID:                   s.newID(),
		RelicIDs:             append([]string(nil), sc.cand.ids...),
		Relics:               relics,
		EstimatedImprovement: types.Round3(sc.improvement),
		Explanation:          explain(sc, relics, currentMultiplier),
		DifficultyRating:     difficulty,
		Pros:                 buildPros(sc, relics, difficulty, relicDifficulty(current)),
		Cons:                 buildCons(sc, difficulty),
		Confidence:           confidence(sc),
	}
}

// explain states the relative gain and names up to three of the strongest
// effects in the suggested set.
func explain(sc scored, relics []types.Relic, currentMultiplier float64) string {
	pct := sc.improvement * 100
	if currentMultiplier > 0 {
		pct = sc.improvement / currentMultiplier * 100
	}
	msg := fmt.Sprintf("Raises the total multiplier to %.3f, a %.1f%% improvement",
		sc.result.TotalMultiplier, pct)
	if tops := topEffectNames(relics, 3); len(tops) > 0 {
		msg += ", driven by " + strings.Join(tops, ", ")
	}
	return msg + "."
}

// topEffectNames lists the highest-value active effects above the notable
// threshold, strongest first.
func topEffectNames(relics []types.Relic, limit int) []string {
	type ranked struct {
		name  string
		value float64
	}
	var all []ranked
	for i := range relics {
		for j := range relics[i].Effects {
			e := &relics[i].Effects[j]
			if !e.Active || e.Value <= notableEffectValue {
				continue
			}
			all = append(all, ranked{name: e.Name, value: e.Value})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].value != all[j].value {
			return all[i].value > all[j].value
		}
		return all[i].name < all[j].name
	})
	names := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, r := range all {
		if _, dup := seen[r.name]; dup {
			continue
		}
		seen[r.name] = struct{}{}
		names = append(names, r.name)
		if len(names) == limit {
			break
		}
	}
	return names
}

func buildPros(sc scored, relics []types.Relic, difficulty, currentDifficulty int) []string {
	var pros []string
	if sc.improvement >= 0.5 {
		pros = append(pros, fmt.Sprintf("Large damage gain (+%.3f multiplier)", sc.improvement))
	}
	if difficulty <= currentDifficulty {
		pros = append(pros, "No harder to obtain than the current build")
	}
	if len(sc.result.ConditionalEffects) == 0 {
		pros = append(pros, "All bonuses apply unconditionally")
	}
	if n := legendaryCount(relics); n > 0 {
		pros = append(pros, fmt.Sprintf("Includes %d legendary relic(s)", n))
	}
	return pros
}

func buildCons(sc scored, difficulty int) []string {
	var cons []string
	if difficulty > 40 {
		cons = append(cons, fmt.Sprintf("Long farming route (total difficulty %d)", difficulty))
	}
	if n := len(sc.result.ConditionalEffects); n > 0 {
		cons = append(cons, fmt.Sprintf("%d bonus(es) only apply under combat conditions", n))
	}
	if len(sc.result.Warnings) > 0 {
		cons = append(cons, "Composition carries warnings; check relic compatibility")
	}
	return cons
}

// confidence scores how trustworthy the estimate is: bigger improvements
// raise it, conditional effects and warnings lower it. Clamped to [0.1, 1.0].
func confidence(sc scored) float64 {
	c := 0.5
	gain := sc.improvement * 2
	if gain > 0.3 {
		gain = 0.3
	}
	c += gain
	c -= 0.05 * float64(len(sc.result.ConditionalEffects))
	if len(sc.result.Warnings) > 0 {
		c -= 0.1
	}
	if c < 0.1 {
		c = 0.1
	}
	if c > 1.0 {
		c = 1.0
	}
	return types.Round2(c)
}

func legendaryCount(relics []types.Relic) int {
	n := 0
	for i := range relics {
		if relics[i].Rarity == types.RarityLegendary {
			n++
		}
	}
	return n
}

func relicDifficulty(relics []types.Relic) int {
	total := 0
	for i := range relics {
		total += relics[i].ObtainmentDifficulty
	}
	return total
}
