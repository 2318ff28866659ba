// Package optimizer suggests relic swaps and additions that raise a build's
// total multiplier. Candidates come from four generation strategies; each
// survivor is evaluated through the composition engine under a wall-clock
// budget and an evaluation cap.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"relicforge/internal/analysis"
	"relicforge/internal/engine"
	"relicforge/internal/logging"
	"relicforge/internal/metrics"
	"relicforge/internal/types"
)

// Defaults for Config fields left at zero.
const (
	DefaultBudget         = 10 * time.Second
	DefaultMaxEvaluations = 1000
	DefaultMinImprovement = 0.05
	DefaultMaxSuggestions = 5
)

// Composer is the engine capability the optimizer consumes. Implemented by
// engine.Engine.
type Composer interface {
	Compose(ctx context.Context, ids []string, cctx *types.CombatContext, opts engine.Options) (*types.CompositionResult, error)
	Baseline(cctx *types.CombatContext) (*types.CompositionResult, error)
}

// Deps carries the optimizer's collaborators.
type Deps struct {
	Repo     types.RelicRepository
	Composer Composer
	Clock    types.Clock
	NewID    types.IDGenerator
}

// Config tunes generation and evaluation.
type Config struct {
	Budget         time.Duration
	MaxEvaluations int
	MinImprovement float64
	MaxSuggestions int
	// Parallelism > 1 evaluates candidates concurrently.
	Parallelism int
	// MetaBuilds maps a combat style to its canonical relic list.
	MetaBuilds map[string][]string
}

// Constraints narrow the candidate pool.
type Constraints struct {
	MaxDifficulty     int                   `json:"max_difficulty,omitempty"`
	AllowedCategories []types.RelicCategory `json:"allowed_categories,omitempty"`
	ExcludeRelicIDs   []string              `json:"exclude_relic_ids,omitempty"`
}

// Preferences bias the ordering of otherwise equal suggestions and can
// raise the improvement threshold.
type Preferences struct {
	PreferHighRarity    bool    `json:"prefer_high_rarity,omitempty"`
	PreferLowDifficulty bool    `json:"prefer_low_difficulty,omitempty"`
	MinImprovement      float64 `json:"min_improvement,omitempty"`
}

// Request describes one optimization run.
type Request struct {
	CurrentIDs  []string             `json:"current_relic_ids"`
	CombatStyle types.CombatStyle    `json:"combat_style,omitempty"`
	Constraints Constraints          `json:"constraints,omitempty"`
	Preferences Preferences          `json:"preferences,omitempty"`
	Context     *types.CombatContext `json:"context,omitempty"`
	// AllowPartial returns whatever was evaluated when the budget expires
	// instead of failing with OPTIMIZATION_TIMEOUT.
	AllowPartial bool `json:"allow_partial,omitempty"`
}

// Suggestion is one recommended relic set.
type Suggestion struct {
	ID                   string        `json:"id"`
	RelicIDs             []string      `json:"relic_ids"`
	Relics               []types.Relic `json:"relics"`
	EstimatedImprovement float64       `json:"estimated_improvement"`
	Explanation          string        `json:"explanation"`
	DifficultyRating     int           `json:"difficulty_rating"`
	Pros                 []string      `json:"pros,omitempty"`
	Cons                 []string      `json:"cons,omitempty"`
	Confidence           float64       `json:"confidence"`
}

// Metadata reports how the run went.
type Metadata struct {
	CandidatesGenerated int            `json:"candidates_generated"`
	ByStrategy          map[string]int `json:"by_strategy,omitempty"`
	Evaluated           int            `json:"evaluated"`
	Skipped             int            `json:"skipped"`
	BelowThreshold      int            `json:"below_threshold"`
	DurationMS          int64          `json:"duration_ms"`
	Partial             bool           `json:"partial,omitempty"`
	EvaluationCapHit    bool           `json:"evaluation_cap_hit,omitempty"`
}

// Result is the optimizer's answer.
type Result struct {
	Suggestions       []Suggestion `json:"suggestions"`
	CurrentMultiplier float64      `json:"current_multiplier"`
	CurrentRating     string       `json:"current_rating"`
	Metadata          Metadata     `json:"metadata"`
}

// Service generates and evaluates candidate builds.
type Service struct {
	repo     types.RelicRepository
	composer Composer
	clock    types.Clock
	newID    types.IDGenerator
	cfg      Config
	log      *logging.Logger
}

// NewService builds an optimizer. Zero Config fields take the defaults.
func NewService(deps Deps, cfg Config) *Service {
	if deps.Clock == nil {
		deps.Clock = types.SystemClock{}
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.MaxEvaluations <= 0 {
		cfg.MaxEvaluations = DefaultMaxEvaluations
	}
	if cfg.MinImprovement <= 0 {
		cfg.MinImprovement = DefaultMinImprovement
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = DefaultMaxSuggestions
	}
	return &Service{
		repo:     deps.Repo,
		composer: deps.Composer,
		clock:    deps.Clock,
		newID:    deps.NewID,
		cfg:      cfg,
		log:      logging.Get(logging.CategoryOptimizer),
	}
}

// scored pairs an evaluated candidate with its composition outcome.
type scored struct {
	cand        candidate
	result      *types.CompositionResult
	improvement float64
}

// Optimize runs the full pipeline: current rating, pool load, candidate
// generation, budgeted evaluation, threshold filter, deterministic ordering.
func (s *Service) Optimize(ctx context.Context, req Request) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryOptimizer, "optimize")
	defer timer.Stop()
	started := s.clock.Now()

	cctx, err := s.effectiveContext(req)
	if err != nil {
		return nil, err
	}

	current, currentMultiplier, err := s.currentState(ctx, req.CurrentIDs, cctx)
	if err != nil {
		return nil, err
	}

	pool, err := s.candidatePool(ctx, req)
	if err != nil {
		return nil, err
	}
	byID := indexRelics(pool, current)

	candidates, byStrategy := s.generate(req.CurrentIDs, current, pool, byID, cctx)
	s.log.Debug("generated %d candidates from pool of %d", len(candidates), len(pool))

	capHit := len(candidates) > s.cfg.MaxEvaluations
	evalSet := candidates
	if capHit {
		evalSet = candidates[:s.cfg.MaxEvaluations]
	}

	minImprovement := s.cfg.MinImprovement
	if req.Preferences.MinImprovement > 0 {
		minImprovement = req.Preferences.MinImprovement
	}

	budgetCtx, cancel := context.WithTimeout(ctx, s.cfg.Budget)
	defer cancel()

	var kept []scored
	var evaluated, skipped, belowThreshold int
	var timedOut bool
	if s.cfg.Parallelism > 1 {
		kept, evaluated, skipped, belowThreshold, timedOut = s.evaluateParallel(
			budgetCtx, evalSet, cctx, currentMultiplier, minImprovement)
	} else {
		kept, evaluated, skipped, belowThreshold, timedOut = s.evaluateSequential(
			budgetCtx, evalSet, cctx, currentMultiplier, minImprovement)
	}

	if timedOut && !req.AllowPartial {
		return nil, types.NewCalcError(types.ErrOptimizationTimeout,
			fmt.Sprintf("optimization budget of %s expired after %d of %d evaluations",
				s.cfg.Budget, evaluated, len(evalSet)),
			map[string]any{"evaluated": evaluated, "candidates": len(evalSet)})
	}

	s.order(kept, req.Preferences, byID)
	top := kept
	if len(top) > s.cfg.MaxSuggestions {
		top = top[:s.cfg.MaxSuggestions]
	}

	suggestions := make([]Suggestion, 0, len(top))
	for _, sc := range top {
		suggestions = append(suggestions, s.suggestion(sc, byID, current, currentMultiplier))
	}

	return &Result{
		Suggestions:       suggestions,
		CurrentMultiplier: currentMultiplier,
		CurrentRating:     analysis.MultiplierRating(currentMultiplier),
		Metadata: Metadata{
			CandidatesGenerated: len(candidates),
			ByStrategy:          byStrategy,
			Evaluated:           evaluated,
			Skipped:             skipped,
			BelowThreshold:      belowThreshold,
			DurationMS:          s.clock.Now().Sub(started).Milliseconds(),
			Partial:             timedOut,
			EvaluationCapHit:    capHit,
		},
	}, nil
}

// effectiveContext normalizes the request context and applies the style
// override.
func (s *Service) effectiveContext(req Request) (*types.CombatContext, error) {
	norm, err := req.Context.Normalize()
	if err != nil {
		return nil, err
	}
	if req.CombatStyle != "" {
		if !req.CombatStyle.Valid() {
			return nil, types.NewCalcError(types.ErrInvalidCombatStyle,
				fmt.Sprintf("unknown combat style %q", req.CombatStyle),
				map[string]any{"combat_style": string(req.CombatStyle)})
		}
		norm.CombatStyle = req.CombatStyle
	}
	return norm, nil
}

// currentState loads the current build and its multiplier, 1.0 for empty.
func (s *Service) currentState(ctx context.Context, ids []string, cctx *types.CombatContext) ([]types.Relic, float64, error) {
	if len(ids) == 0 {
		base, err := s.composer.Baseline(cctx)
		if err != nil {
			return nil, 0, err
		}
		return nil, base.TotalMultiplier, nil
	}

	res, err := s.composer.Compose(ctx, ids, cctx, engine.Options{})
	if err != nil {
		return nil, 0, err
	}
	relics, err := s.repo.GetRelicsByIDs(ctx, ids)
	if err != nil {
		return nil, 0, types.Internal("load current build", err)
	}
	return relics, res.TotalMultiplier, nil
}

// candidatePool lists active relics matching the constraints, minus the
// current build and explicit exclusions.
func (s *Service) candidatePool(ctx context.Context, req Request) ([]types.Relic, error) {
	active := true
	exclude := make([]string, 0, len(req.Constraints.ExcludeRelicIDs)+len(req.CurrentIDs))
	exclude = append(exclude, req.Constraints.ExcludeRelicIDs...)
	exclude = append(exclude, req.CurrentIDs...)

	pool, err := s.repo.ListRelics(ctx, types.RelicFilter{
		Active:        &active,
		Categories:    req.Constraints.AllowedCategories,
		MaxDifficulty: req.Constraints.MaxDifficulty,
		ExcludeIDs:    exclude,
	})
	if err != nil {
		return nil, types.Internal("load candidate pool", err)
	}
	return pool, nil
}

func (s *Service) evaluateSequential(ctx context.Context, evalSet []candidate, cctx *types.CombatContext, currentMultiplier, minImprovement float64) (kept []scored, evaluated, skipped, belowThreshold int, timedOut bool) {
	for _, cand := range evalSet {
		if ctx.Err() != nil {
			timedOut = true
			break
		}
		res, err := s.composer.Compose(ctx, cand.ids, cctx, engine.Options{})
		if err != nil {
			if isDeadline(err) {
				timedOut = true
				break
			}
			metrics.OptimizerEvaluations.WithLabelValues("failed").Inc()
			evaluated++
			skipped++
			continue
		}
		evaluated++

		improvement := res.TotalMultiplier - currentMultiplier
		if improvement < minImprovement {
			metrics.OptimizerEvaluations.WithLabelValues("below_threshold").Inc()
			belowThreshold++
			continue
		}
		metrics.OptimizerEvaluations.WithLabelValues("kept").Inc()
		kept = append(kept, scored{cand: cand, result: res, improvement: improvement})
	}
	return kept, evaluated, skipped, belowThreshold, timedOut
}

// errBudgetExpired stops the worker group once any evaluation hits the
// deadline.
var errBudgetExpired = errors.New("optimization budget expired")

// evaluateParallel fans candidates out to Parallelism workers. Results are
// collected under a mutex; the caller re-sorts, so arrival order does not
// matter.
func (s *Service) evaluateParallel(ctx context.Context, evalSet []candidate, cctx *types.CombatContext, currentMultiplier, minImprovement float64) (kept []scored, evaluated, skipped, belowThreshold int, timedOut bool) {
	var mu sync.Mutex
	jobs := make(chan candidate)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer close(jobs)
		for _, cand := range evalSet {
			select {
			case jobs <- cand:
			case <-egCtx.Done():
				return nil
			}
		}
		return nil
	})

	workers := s.cfg.Parallelism
	if workers > len(evalSet) {
		workers = len(evalSet)
	}
	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			for cand := range jobs {
				res, err := s.composer.Compose(egCtx, cand.ids, cctx, engine.Options{})
				if err != nil {
					if isDeadline(err) {
						mu.Lock()
						timedOut = true
						mu.Unlock()
						return errBudgetExpired
					}
					metrics.OptimizerEvaluations.WithLabelValues("failed").Inc()
					mu.Lock()
					evaluated++
					skipped++
					mu.Unlock()
					continue
				}

				improvement := res.TotalMultiplier - currentMultiplier
				mu.Lock()
				evaluated++
				if improvement < minImprovement {
					belowThreshold++
					mu.Unlock()
					metrics.OptimizerEvaluations.WithLabelValues("below_threshold").Inc()
					continue
				}
				kept = append(kept, scored{cand: cand, result: res, improvement: improvement})
				mu.Unlock()
				metrics.OptimizerEvaluations.WithLabelValues("kept").Inc()
			}
			return nil
		})
	}

	// Worker errors only signal budget expiry; timedOut already records it.
	_ = eg.Wait()
	if ctx.Err() != nil {
		timedOut = true
	}
	return kept, evaluated, skipped, belowThreshold, timedOut
}

// order sorts descending by improvement, then by the requested preferences,
// then by candidate key so equal suggestions come out in a stable order.
func (s *Service) order(kept []scored, prefs Preferences, byID map[string]*types.Relic) {
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.improvement != b.improvement {
			return a.improvement > b.improvement
		}
		if prefs.PreferHighRarity {
			ra, rb := raritySum(a.cand.ids, byID), raritySum(b.cand.ids, byID)
			if ra != rb {
				return ra > rb
			}
		}
		if prefs.PreferLowDifficulty {
			da, db := difficultySum(a.cand.ids, byID), difficultySum(b.cand.ids, byID)
			if da != db {
				return da < db
			}
		}
		return a.cand.key < b.cand.key
	})
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		types.IsCode(err, types.ErrCalculationTimeout)
}

func indexRelics(pool, current []types.Relic) map[string]*types.Relic {
	byID := make(map[string]*types.Relic, len(pool)+len(current))
	for i := range pool {
		byID[pool[i].ID] = &pool[i]
	}
	for i := range current {
		byID[current[i].ID] = &current[i]
	}
	return byID
}

func raritySum(ids []string, byID map[string]*types.Relic) int {
	total := 0
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			total += r.Rarity.Rank()
		}
	}
	return total
}

func difficultySum(ids []string, byID map[string]*types.Relic) int {
	total := 0
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			total += r.ObtainmentDifficulty
		}
	}
	return total
}

func candidateKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}
