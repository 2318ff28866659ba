// Package analysis layers interpretation over raw composition results:
// synergy detection, build recommendations, rating tiers, and multi-build
// comparison.
package analysis

import (
	"context"
	"fmt"
	"sort"

	"relicforge/internal/engine"
	"relicforge/internal/logging"
	"relicforge/internal/types"
)

// Compare accepts between 2 and 10 combinations per call.
const (
	MinCompareSelections = 2
	MaxCompareSelections = 10
)

// Composer is the engine capability analysis consumes. Implemented by
// engine.Engine.
type Composer interface {
	Compose(ctx context.Context, ids []string, cctx *types.CombatContext, opts engine.Options) (*types.CompositionResult, error)
}

// Validator loads and checks a selection. Implemented by validation.Service.
type Validator interface {
	Validate(ctx context.Context, ids []string, cctx *types.CombatContext, strict bool) (*types.PreprocessBundle, error)
}

// Service answers analyze and compare requests.
type Service struct {
	composer  Composer
	validator Validator
	log       *logging.Logger
}

// NewService wires the analysis service.
func NewService(composer Composer, validator Validator) *Service {
	return &Service{
		composer:  composer,
		validator: validator,
		log:       logging.Get(logging.CategoryAnalysis),
	}
}

// SynergyGroup reports one effect type appearing at least twice in the
// selection, with a synergy score weighing count, magnitude and additive
// stacking.
type SynergyGroup struct {
	EffectType    types.EffectType `json:"effect_type"`
	Count         int              `json:"count"`
	TotalValue    float64          `json:"total_value"`
	AdditiveCount int              `json:"additive_count"`
	Score         float64          `json:"score"`
	RelicIDs      []string         `json:"relic_ids"`
}

// Recommendation is one piece of build advice.
type Recommendation struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Recommendation kinds.
const (
	RecommendPerformance = "performance"
	RecommendDifficulty  = "difficulty"
	RecommendComplexity  = "complexity"
	RecommendRarity      = "rarity"
)

// PerformanceRating names the tier buckets for a composed build.
type PerformanceRating struct {
	MultiplierTier string `json:"multiplier_tier"`
	DifficultyTier string `json:"difficulty_tier"`
}

// Result is the analyze answer: the composition plus everything derived
// from it.
type Result struct {
	Composition     *types.CompositionResult `json:"composition"`
	Summary         types.ValidationSummary  `json:"summary"`
	Synergies       []SynergyGroup           `json:"synergies,omitempty"`
	Recommendations []Recommendation         `json:"recommendations,omitempty"`
	Rating          PerformanceRating        `json:"rating"`
}

// Analyze composes the selection with a full breakdown and derives synergy
// groups, recommendations and rating tiers.
func (s *Service) Analyze(ctx context.Context, ids []string, cctx *types.CombatContext) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryAnalysis, "analyze")
	defer timer.Stop()

	bundle, err := s.validator.Validate(ctx, ids, cctx, false)
	if err != nil {
		return nil, err
	}
	comp, err := s.composer.Compose(ctx, ids, cctx, engine.Options{IncludeBreakdown: true})
	if err != nil {
		return nil, err
	}

	synergies := synergyGroups(bundle.Relics)
	rating := PerformanceRating{
		MultiplierTier: MultiplierRating(comp.TotalMultiplier),
		DifficultyTier: DifficultyRating(bundle.Summary.AverageDifficulty),
	}
	return &Result{
		Composition:     comp,
		Summary:         bundle.Summary,
		Synergies:       synergies,
		Recommendations: recommend(comp, bundle),
		Rating:          rating,
	}, nil
}

// synergyGroups buckets active effects of active relics by type and keeps
// types occurring at least twice. Groups come back strongest first.
func synergyGroups(relics []types.Relic) []SynergyGroup {
	byType := make(map[types.EffectType]*SynergyGroup)
	var order []types.EffectType
	for i := range relics {
		r := &relics[i]
		if !r.Active {
			continue
		}
		for j := range r.Effects {
			e := &r.Effects[j]
			if !e.Active {
				continue
			}
			g, ok := byType[e.Type]
			if !ok {
				g = &SynergyGroup{EffectType: e.Type}
				byType[e.Type] = g
				order = append(order, e.Type)
			}
			g.Count++
			g.TotalValue += e.Value
			if e.Stacking == types.StackingAdditive {
				g.AdditiveCount++
			}
			if !containsString(g.RelicIDs, r.ID) {
				g.RelicIDs = append(g.RelicIDs, r.ID)
			}
		}
	}

	var out []SynergyGroup
	for _, t := range order {
		g := byType[t]
		if g.Count < 2 {
			continue
		}
		g.Score = types.Round2(float64(g.Count)*10 + g.TotalValue*0.1 + 5*float64(g.AdditiveCount))
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EffectType < out[j].EffectType
	})
	return out
}

// recommend derives at most one recommendation per kind from the composed
// result and the validation summary.
func recommend(comp *types.CompositionResult, bundle *types.PreprocessBundle) []Recommendation {
	var recs []Recommendation

	switch MultiplierRating(comp.TotalMultiplier) {
	case RatingPoor, RatingBelowAverage:
		recs = append(recs, Recommendation{
			Kind: RecommendPerformance,
			Message: fmt.Sprintf("Total multiplier %.3f is low; add multiplicative or percentage attack effects",
				comp.TotalMultiplier),
		})
	case RatingExcellent, RatingExceptional:
		recs = append(recs, Recommendation{
			Kind:    RecommendPerformance,
			Message: "Damage output is already strong; further swaps yield diminishing returns",
		})
	default:
		recs = append(recs, Recommendation{
			Kind: RecommendPerformance,
			Message: fmt.Sprintf("Total multiplier %.3f has room to grow; look for overwrite or multiplier relics",
				comp.TotalMultiplier),
		})
	}

	if bundle.Summary.TotalDifficulty > 40 {
		recs = append(recs, Recommendation{
			Kind: RecommendDifficulty,
			Message: fmt.Sprintf("Total obtainment difficulty %d means a long farming route; consider easier substitutes",
				bundle.Summary.TotalDifficulty),
		})
	} else if DifficultyRating(bundle.Summary.AverageDifficulty) == DifficultyVeryHard {
		recs = append(recs, Recommendation{
			Kind:    RecommendDifficulty,
			Message: "Every relic here is hard to obtain; plan the farming order before committing",
		})
	}

	if n := len(comp.ConditionalEffects); n > 2 {
		recs = append(recs, Recommendation{
			Kind: RecommendComplexity,
			Message: fmt.Sprintf("%d effects only fire under combat conditions; real output depends on upkeep",
				n),
		})
	}

	if legendaries := bundle.Summary.ByRarity[types.RarityLegendary]; legendaries > 3 {
		recs = append(recs, Recommendation{
			Kind: RecommendRarity,
			Message: fmt.Sprintf("%d legendaries in one build is farm-intensive; spread rarity for faster assembly",
				legendaries),
		})
	} else if bundle.Summary.RelicCount > 0 && bundle.Summary.ByRarity[types.RarityCommon] == bundle.Summary.RelicCount {
		recs = append(recs, Recommendation{
			Kind:    RecommendRarity,
			Message: "All-common build; rarer relics in the same slots carry stronger effects",
		})
	}

	return recs
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
