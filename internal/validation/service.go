// Package validation checks relic selections before composition: input shape,
// catalog presence, activity, structural integrity, conflict detection, and
// context compatibility. The engine refuses to compose anything this package
// has not passed.
package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"relicforge/internal/logging"
	"relicforge/internal/types"
)

// Warning thresholds over the preprocessing summary.
const (
	// highDifficultyThreshold flags selections whose summed obtainment
	// difficulty suggests an impractical farming route.
	highDifficultyThreshold = 40
	// manyLegendariesThreshold flags selections leaning on more legendaries
	// than a typical run can field.
	manyLegendariesThreshold = 3
	// complexEffectsThreshold flags selections where more than this many
	// effects each carry more than two conditions.
	complexEffectsThreshold = 5
	conditionsPerEffectCap  = 2
)

// Service validates relic selections against the catalog.
type Service struct {
	repo    types.RelicRepository
	checker *validator.Validate
	log     *logging.Logger
}

// NewService builds a validation service over the given repository.
func NewService(repo types.RelicRepository) *Service {
	return &Service{
		repo:    repo,
		checker: validator.New(),
		log:     logging.Get(logging.CategoryValidation),
	}
}

// Validate runs the full preprocessing pipeline over a relic selection and
// returns the loaded relics in input order together with the summary and
// warnings. strict escalates context compatibility findings from warnings to
// errors and revalidates relic structure instead of trusting stored data.
func (s *Service) Validate(ctx context.Context, ids []string, cctx *types.CombatContext, strict bool) (*types.PreprocessBundle, error) {
	// Input shape first: emptiness, the selection cap, duplicates.
	if len(ids) == 0 {
		return nil, types.NewCalcError(types.ErrEmptyRelicList, "no relics selected", nil)
	}
	if len(ids) > types.MaxRelicsPerBuild {
		return nil, types.NewCalcError(types.ErrRelicLimitExceeded,
			fmt.Sprintf("%d relics selected, limit is %d", len(ids), types.MaxRelicsPerBuild),
			map[string]any{"count": len(ids), "limit": types.MaxRelicsPerBuild})
	}
	if dups := duplicateIDs(ids); len(dups) > 0 {
		return nil, types.NewCalcError(types.ErrDuplicateRelics,
			"selection contains duplicate relic ids",
			map[string]any{"duplicates": dups})
	}

	// Batch load, then restore the caller's ordering.
	loaded, err := s.repo.GetRelicsByIDs(ctx, ids)
	if err != nil {
		return nil, types.Internal("load relics", err)
	}
	byID := make(map[string]types.Relic, len(loaded))
	for _, r := range loaded {
		byID[r.ID] = r
	}
	var missing []string
	relics := make([]types.Relic, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		relics = append(relics, r)
	}
	if len(missing) > 0 {
		return nil, types.NewCalcError(types.ErrRelicNotFound,
			fmt.Sprintf("%d relic(s) not found in the catalog", len(missing)),
			map[string]any{"missing": missing})
	}

	var inactive []string
	for _, r := range relics {
		if !r.Active {
			inactive = append(inactive, r.ID)
		}
	}
	if len(inactive) > 0 {
		return nil, types.NewCalcError(types.ErrInactiveRelics,
			"selection contains inactive relics",
			map[string]any{"inactive": inactive})
	}

	if strict {
		for i := range relics {
			if problems := s.relicProblems(&relics[i]); len(problems) > 0 {
				return nil, types.NewCalcError(types.ErrInvalidRelicStructure,
					fmt.Sprintf("relic %s failed structural validation", relics[i].ID),
					map[string]any{"relic_id": relics[i].ID, "problems": problems})
			}
		}
	}

	if pairs := conflictPairs(relics, ids); len(pairs) > 0 {
		return nil, types.NewCalcError(types.ErrConflictingRelics,
			"selection contains conflicting relics",
			map[string]any{"conflicts": pairs})
	}

	// Effect structure is always checked; only active effects reach the
	// engine, so only those are inspected.
	for i := range relics {
		for _, e := range relics[i].ActiveEffects() {
			if problems := s.effectProblems(&e); len(problems) > 0 {
				return nil, types.NewCalcError(types.ErrInvalidEffectStructure,
					fmt.Sprintf("effect %s on relic %s failed structural validation", e.ID, relics[i].ID),
					map[string]any{"relic_id": relics[i].ID, "effect_id": e.ID, "problems": problems})
			}
		}
	}

	var warnings []string
	if cctx != nil {
		norm, err := cctx.Normalize()
		if err != nil {
			return nil, err
		}
		styleIssues, weaponIssues := compatibilityIssues(relics, norm)
		if strict {
			if len(styleIssues) > 0 {
				return nil, types.NewCalcError(types.ErrCombatStyleIncompatible,
					"selection carries effects bound to a different combat style",
					map[string]any{"incompatibilities": styleIssues})
			}
			if len(weaponIssues) > 0 {
				return nil, types.NewCalcError(types.ErrWeaponTypeIncompatible,
					"selection carries effects bound to a different weapon",
					map[string]any{"incompatibilities": weaponIssues})
			}
		} else {
			warnings = append(warnings, styleIssues...)
			warnings = append(warnings, weaponIssues...)
		}
	}

	summary := buildSummary(relics)
	warnings = append(warnings, summaryWarnings(summary, relics)...)

	s.log.Debug("validated %d relics (strict=%v, warnings=%d)", len(relics), strict, len(warnings))

	return &types.PreprocessBundle{Relics: relics, Summary: summary, Warnings: warnings}, nil
}

// duplicateIDs returns the ids that appear more than once, in first-seen order.
func duplicateIDs(ids []string) []string {
	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}
	var dups []string
	reported := make(map[string]bool, len(ids))
	for _, id := range ids {
		if counts[id] > 1 && !reported[id] {
			dups = append(dups, id)
			reported[id] = true
		}
	}
	return dups
}

// conflictPairs intersects every relic's declared conflicts with the
// selection. Declaring a conflict is enough to reject the pair; the relation
// is undirected, so one side's declaration condemns both.
func conflictPairs(relics []types.Relic, ids []string) []types.ConflictPair {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}

	var pairs []types.ConflictPair
	for _, r := range relics {
		var hit []string
		for _, c := range r.Conflicts {
			if selected[c] {
				hit = append(hit, c)
			}
		}
		if len(hit) > 0 {
			pairs = append(pairs, types.ConflictPair{RelicID: r.ID, ConflictingIDs: hit})
		}
	}
	return pairs
}

// relicProblems collects structural findings for one relic. Empty means valid.
func (s *Service) relicProblems(r *types.Relic) []string {
	var problems []string
	if err := s.checker.Struct(r); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("field %s fails %q", fe.Field(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}
	if !r.Category.Valid() {
		problems = append(problems, fmt.Sprintf("unknown category %q", r.Category))
	}
	if !r.Rarity.Valid() {
		problems = append(problems, fmt.Sprintf("unknown rarity %q", r.Rarity))
	}
	if !r.Quality.Valid() {
		problems = append(problems, fmt.Sprintf("unknown quality %q", r.Quality))
	}
	return problems
}

// effectProblems collects structural findings for one effect. Empty means valid.
func (s *Service) effectProblems(e *types.Effect) []string {
	var problems []string
	if err := s.checker.Struct(e); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("field %s fails %q", fe.Field(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}
	if strings.TrimSpace(e.Name) == "" {
		problems = append(problems, "blank name")
	}
	if !e.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown effect_type %q", e.Type))
	}
	if !e.Stacking.Valid() {
		problems = append(problems, fmt.Sprintf("unknown stacking_rule %q", e.Stacking))
	}
	for _, d := range e.DamageTypes {
		if !d.Valid() {
			problems = append(problems, fmt.Sprintf("unknown damage_type %q", d))
		}
	}
	return problems
}

// compatibilityIssues reports effects gated on a combat style or weapon that
// the context cannot satisfy. Findings here are informational; the engine
// still re-evaluates every condition during composition.
func compatibilityIssues(relics []types.Relic, cctx *types.CombatContext) (styleIssues, weaponIssues []string) {
	for _, r := range relics {
		for _, e := range r.ActiveEffects() {
			if sc, ok := e.Conditions.StyleRequirement(); ok && sc.Style != cctx.CombatStyle {
				styleIssues = append(styleIssues, fmt.Sprintf(
					"combat_style_incompatible: effect %s (%s) requires combat style %s, context is %s",
					e.Name, r.ID, sc.Style, cctx.CombatStyle))
			}
			if wc, ok := e.Conditions.WeaponRequirement(); ok && wc.Weapon != cctx.WeaponType {
				have := cctx.WeaponType
				if have == "" {
					have = "none"
				}
				weaponIssues = append(weaponIssues, fmt.Sprintf(
					"weapon_type_incompatible: effect %s (%s) requires weapon %s, context has %s",
					e.Name, r.ID, wc.Weapon, have))
			}
		}
	}
	return styleIssues, weaponIssues
}

// buildSummary aggregates selection statistics for the preprocessing bundle.
func buildSummary(relics []types.Relic) types.ValidationSummary {
	sum := types.ValidationSummary{
		RelicCount: len(relics),
		ByCategory: make(map[types.RelicCategory]int),
		ByRarity:   make(map[types.Rarity]int),
		ByQuality:  make(map[types.Quality]int),
	}
	for _, r := range relics {
		sum.ByCategory[r.Category]++
		sum.ByRarity[r.Rarity]++
		sum.ByQuality[r.Quality]++
		sum.TotalDifficulty += r.ObtainmentDifficulty
		sum.TotalEffects += len(r.ActiveEffects())
		if len(r.Conflicts) > 0 {
			sum.HasConflicts = true
		}
	}
	if len(relics) > 0 {
		sum.AverageDifficulty = types.Round2(float64(sum.TotalDifficulty) / float64(len(relics)))
	}
	return sum
}

// summaryWarnings derives the threshold warnings from the summary.
func summaryWarnings(sum types.ValidationSummary, relics []types.Relic) []string {
	var warnings []string
	if sum.TotalDifficulty > highDifficultyThreshold {
		warnings = append(warnings, fmt.Sprintf(
			"high_difficulty: total obtainment difficulty %d exceeds %d",
			sum.TotalDifficulty, highDifficultyThreshold))
	}
	if n := sum.ByRarity[types.RarityLegendary]; n > manyLegendariesThreshold {
		warnings = append(warnings, fmt.Sprintf(
			"many_legendaries: %d legendary relics selected, more than %d",
			n, manyLegendariesThreshold))
	}
	overloaded := 0
	for _, r := range relics {
		for _, e := range r.ActiveEffects() {
			if len(e.Conditions) > conditionsPerEffectCap {
				overloaded++
			}
		}
	}
	if overloaded > complexEffectsThreshold {
		warnings = append(warnings, fmt.Sprintf(
			"complex_conditions: %d effects carry more than %d conditions",
			overloaded, conditionsPerEffectCap))
	}
	return warnings
}
