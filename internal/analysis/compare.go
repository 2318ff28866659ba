package analysis

import (
	"context"
	"fmt"
	"sort"

	"relicforge/internal/engine"
	"relicforge/internal/logging"
	"relicforge/internal/types"
)

// ComparisonEntry is one evaluated combination. Failed combinations keep
// their position and carry the error; they never win a category.
type ComparisonEntry struct {
	Index             int      `json:"index"`
	RelicIDs          []string `json:"relic_ids"`
	TotalMultiplier   float64  `json:"total_multiplier"`
	FinalAttackPower  float64  `json:"final_attack_power"`
	Efficiency        float64  `json:"efficiency"`
	RelicCount        int      `json:"relic_count"`
	TotalDifficulty   int      `json:"total_difficulty"`
	AverageDifficulty float64  `json:"average_difficulty"`
	Error             string   `json:"error,omitempty"`
}

// Rankings hold entry indexes ordered best-first per criterion.
type Rankings struct {
	ByMultiplier []int `json:"by_multiplier"`
	ByEfficiency []int `json:"by_efficiency"`
	ByDifficulty []int `json:"by_difficulty"`
}

// Winners names the best entry index per category, -1 when every
// combination failed.
type Winners struct {
	Overall        int `json:"overall"`
	MostEfficient  int `json:"most_efficient"`
	EasiestToBuild int `json:"easiest_to_build"`
}

// ComparisonSummary aggregates multipliers across successful combinations.
type ComparisonSummary struct {
	MinMultiplier float64 `json:"min_multiplier"`
	MaxMultiplier float64 `json:"max_multiplier"`
	AvgMultiplier float64 `json:"avg_multiplier"`
}

// Comparison is the compare answer.
type Comparison struct {
	Entries  []ComparisonEntry `json:"entries"`
	Rankings Rankings          `json:"rankings"`
	Winners  Winners           `json:"winners"`
	Summary  ComparisonSummary `json:"summary"`
}

// Compare evaluates 2 to 10 combinations under one context and ranks them by
// multiplier, efficiency and difficulty.
func (s *Service) Compare(ctx context.Context, combinations [][]string, cctx *types.CombatContext) (*Comparison, error) {
	timer := logging.StartTimer(logging.CategoryAnalysis, "compare")
	defer timer.Stop()

	if len(combinations) < MinCompareSelections || len(combinations) > MaxCompareSelections {
		return nil, types.NewCalcError(types.ErrSelectionLimitExceeded,
			fmt.Sprintf("compare accepts %d to %d combinations, got %d",
				MinCompareSelections, MaxCompareSelections, len(combinations)),
			map[string]any{"count": len(combinations)})
	}

	entries := make([]ComparisonEntry, len(combinations))
	for i, ids := range combinations {
		entries[i] = s.evaluate(ctx, i, ids, cctx)
	}

	rankings := rank(entries)
	winners := Winners{Overall: -1, MostEfficient: -1, EasiestToBuild: -1}
	if len(rankings.ByMultiplier) > 0 {
		winners.Overall = rankings.ByMultiplier[0]
		winners.MostEfficient = rankings.ByEfficiency[0]
		winners.EasiestToBuild = rankings.ByDifficulty[0]
	}

	return &Comparison{
		Entries:  entries,
		Rankings: rankings,
		Winners:  winners,
		Summary:  summarize(entries),
	}, nil
}

// evaluate validates and composes one combination. Errors land on the entry
// instead of failing the whole comparison.
func (s *Service) evaluate(ctx context.Context, index int, ids []string, cctx *types.CombatContext) ComparisonEntry {
	entry := ComparisonEntry{
		Index:      index,
		RelicIDs:   append([]string(nil), ids...),
		RelicCount: len(ids),
	}

	bundle, err := s.validator.Validate(ctx, ids, cctx, false)
	if err != nil {
		s.log.Debug("combination %d failed validation: %v", index, err)
		entry.Error = err.Error()
		return entry
	}
	comp, err := s.composer.Compose(ctx, ids, cctx, engine.Options{})
	if err != nil {
		s.log.Debug("combination %d failed composition: %v", index, err)
		entry.Error = err.Error()
		return entry
	}

	entry.TotalMultiplier = comp.TotalMultiplier
	entry.FinalAttackPower = comp.FinalAttackPower
	entry.Efficiency = comp.Efficiency(len(ids))
	entry.TotalDifficulty = bundle.Summary.TotalDifficulty
	entry.AverageDifficulty = bundle.Summary.AverageDifficulty
	return entry
}

// rank orders successful entry indexes per criterion. Ties on a criterion
// fall back to the higher multiplier, then the lower index.
func rank(entries []ComparisonEntry) Rankings {
	var valid []int
	for i := range entries {
		if entries[i].Error == "" {
			valid = append(valid, i)
		}
	}

	return Rankings{
		ByMultiplier: sortIndexes(valid, entries, func(a, b *ComparisonEntry) bool {
			return a.TotalMultiplier > b.TotalMultiplier
		}),
		ByEfficiency: sortIndexes(valid, entries, func(a, b *ComparisonEntry) bool {
			return a.Efficiency > b.Efficiency
		}),
		ByDifficulty: sortIndexes(valid, entries, func(a, b *ComparisonEntry) bool {
			return a.TotalDifficulty < b.TotalDifficulty
		}),
	}
}

// sortIndexes returns a copy of idx ordered by better, breaking ties by
// multiplier then original position.
func sortIndexes(idx []int, entries []ComparisonEntry, better func(a, b *ComparisonEntry) bool) []int {
	out := append([]int(nil), idx...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := &entries[out[i]], &entries[out[j]]
		if better(a, b) != better(b, a) {
			return better(a, b)
		}
		if a.TotalMultiplier != b.TotalMultiplier {
			return a.TotalMultiplier > b.TotalMultiplier
		}
		return out[i] < out[j]
	})
	return out
}

// summarize aggregates multipliers over successful entries.
func summarize(entries []ComparisonEntry) ComparisonSummary {
	var sum ComparisonSummary
	n := 0
	for i := range entries {
		if entries[i].Error != "" {
			continue
		}
		m := entries[i].TotalMultiplier
		if n == 0 || m < sum.MinMultiplier {
			sum.MinMultiplier = m
		}
		if n == 0 || m > sum.MaxMultiplier {
			sum.MaxMultiplier = m
		}
		sum.AvgMultiplier += m
		n++
	}
	if n > 0 {
		sum.AvgMultiplier = types.Round3(sum.AvgMultiplier / float64(n))
	}
	return sum
}
