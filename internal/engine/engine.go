// Package engine implements the effect composition engine: the deterministic
// computation that turns a validated relic selection plus a combat context
// into an attack-power multiplier, a breakdown trail, and stacking traces.
//
// Dependencies are explicit. The engine holds a Deps value built at
// construction; there are no package-level singletons. Group processing and
// value routing are table-driven: a stacking rule maps to a group processor
// and an effect type maps to a value router, both registered in NewEngine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relicforge/internal/logging"
	"relicforge/internal/metrics"
	"relicforge/internal/types"
	"relicforge/internal/validation"
)

// Version is stamped into every cache entry and cache key. Bumping it
// invalidates all previously memoized results. It is a constant on purpose:
// composition must stay a pure function of (relic set, context, version),
// so the version never comes from configuration.
const Version = "2.3.1"

// DefaultTimeout bounds a composition when the caller supplies no deadline.
const DefaultTimeout = 5 * time.Second

// Validator gates composition inputs. Implemented by validation.Service.
type Validator interface {
	Validate(ctx context.Context, ids []string, cctx *types.CombatContext, strict bool) (*types.PreprocessBundle, error)
}

// Deps carries the engine's collaborators. Repo is required; Cache is
// optional (nil disables memoization); Clock defaults to the wall clock;
// Validator defaults to a validation service over Repo.
type Deps struct {
	Repo      types.RelicRepository
	Cache     types.ResultCache
	Clock     types.Clock
	Validator Validator
}

// Config tunes the engine.
type Config struct {
	// Timeout applies when the caller's context has no deadline.
	Timeout time.Duration
	// CacheTTL is handed to the result cache on store.
	CacheTTL time.Duration
}

// Options select per-call behavior.
type Options struct {
	// ForceRecalculate skips the cache lookup but still stores the result.
	ForceRecalculate bool
	// IncludeBreakdown returns the step-by-step audit trail.
	IncludeBreakdown bool
	// SkipCache bypasses the cache entirely, lookup and store.
	SkipCache bool
}

// Engine composes relic effects into multipliers.
type Engine struct {
	repo      types.RelicRepository
	cache     types.ResultCache
	clock     types.Clock
	validator Validator
	log       *logging.Logger

	timeout  time.Duration
	cacheTTL time.Duration
	version  string

	processors map[types.StackingRule]groupProcessor
	routers    map[types.EffectType]valueRouter
}

// NewEngine builds an engine from explicit dependencies.
func NewEngine(deps Deps, cfg Config) *Engine {
	if deps.Clock == nil {
		deps.Clock = types.SystemClock{}
	}
	if deps.Validator == nil {
		deps.Validator = validation.NewService(deps.Repo)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = types.DefaultCacheTTL
	}

	e := &Engine{
		repo:      deps.Repo,
		cache:     deps.Cache,
		clock:     deps.Clock,
		validator: deps.Validator,
		log:       logging.Get(logging.CategoryEngine),
		timeout:   cfg.Timeout,
		cacheTTL:  cfg.CacheTTL,
		version:   Version,
	}
	e.processors = map[types.StackingRule]groupProcessor{
		types.StackingAdditive:       e.processAdditiveGroup,
		types.StackingMultiplicative: e.processMultiplicativeGroup,
		types.StackingOverwrite:      e.processOverwriteGroup,
		types.StackingUnique:         e.processUniqueGroup,
	}
	e.routers = defaultRouters()
	return e
}

// EngineVersion returns the version stamped into results and cache keys.
func (e *Engine) EngineVersion() string {
	return e.version
}

// Compose validates the selection, consults the cache, and computes the
// multiplier on a miss. The caller's deadline is honored; without one the
// configured timeout applies. Cache lookup failures surface as INTERNAL;
// cache store failures are logged and suppressed.
func (e *Engine) Compose(ctx context.Context, ids []string, cctx *types.CombatContext, opts Options) (*types.CompositionResult, error) {
	timer := logging.StartTimer(logging.CategoryEngine, "compose")
	defer timer.Stop()
	start := time.Now()

	res, err := e.compose(ctx, ids, cctx, opts)

	metrics.CompositionDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil && res.CacheHit:
		metrics.CompositionsTotal.WithLabelValues("hit").Inc()
	case err == nil:
		metrics.CompositionsTotal.WithLabelValues("computed").Inc()
	case types.IsCode(err, types.ErrCalculationTimeout):
		metrics.CompositionsTotal.WithLabelValues("timeout").Inc()
	default:
		metrics.CompositionsTotal.WithLabelValues("error").Inc()
	}
	return res, err
}

func (e *Engine) compose(ctx context.Context, ids []string, cctx *types.CombatContext, opts Options) (*types.CompositionResult, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	norm, err := cctx.Normalize()
	if err != nil {
		return nil, err
	}

	bundle, err := e.validator.Validate(ctx, ids, norm, false)
	if err != nil {
		return nil, asTimeout(err)
	}

	key, ctxJSON, err := CacheKey(ids, norm, e.version)
	if err != nil {
		return nil, err
	}

	if e.cache != nil && !opts.SkipCache && !opts.ForceRecalculate {
		entry, hit, err := e.cache.Lookup(ctx, key)
		if err != nil {
			return nil, types.Internal("cache lookup", err)
		}
		if hit && entry.EngineVersion == e.version {
			e.log.Debug("cache hit for key %s (hits=%d)", key, entry.HitCount)
			res := entry.Result
			res.CacheHit = true
			if !opts.IncludeBreakdown {
				res.Breakdown = nil
			}
			return &res, nil
		}
	}

	result, err := e.compute(ctx, bundle, norm)
	if err != nil {
		return nil, err
	}

	if e.cache != nil && !opts.SkipCache {
		entry := &types.CacheEntry{
			Key:           key,
			Input:         types.InputSnapshot{RelicIDs: sortedIDs(ids), Context: ctxJSON},
			Result:        *result,
			EngineVersion: e.version,
			CreatedAt:     e.clock.Now(),
		}
		if err := e.cache.Store(ctx, entry, e.cacheTTL); err != nil {
			logging.CacheWarn("store failed for key %s: %v", key, err)
		}
	}

	out := *result
	if !opts.IncludeBreakdown {
		out.Breakdown = nil
	}
	return &out, nil
}

// asTimeout maps a deadline expiry buried in err to CALCULATION_TIMEOUT,
// leaving every other error untouched.
func asTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewCalcError(types.ErrCalculationTimeout,
			"composition exceeded its deadline", nil)
	}
	return err
}

func timeoutError(elapsed string) error {
	return types.NewCalcError(types.ErrCalculationTimeout,
		fmt.Sprintf("composition exceeded its deadline during %s", elapsed), nil)
}
