// Package main implements the relicforge CLI. This file wires configuration,
// storage, cache, and the computation services into one app handle shared by
// every command.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"relicforge/internal/analysis"
	"relicforge/internal/cache"
	"relicforge/internal/config"
	"relicforge/internal/engine"
	"relicforge/internal/logging"
	"relicforge/internal/metrics"
	"relicforge/internal/optimizer"
	"relicforge/internal/store"
	"relicforge/internal/types"
	"relicforge/internal/validation"

	"go.uber.org/zap"
)

// app bundles the wired services behind every CLI command. Exactly one app
// exists per invocation; Close releases everything it opened.
type app struct {
	cfg       *config.Config
	repo      types.RelicRepository
	store     *store.Store // nil when running on the in-memory seed catalog
	cache     types.ResultCache
	engine    *engine.Engine
	validator *validation.Service
	optimizer *optimizer.Service
	analyzer  *analysis.Service
	metrics   *http.Server
	watcher   *store.SeedWatcher
}

// newApp loads configuration and stands up the service stack. Storage policy:
// a configured database path opens SQLite (importing the seed catalog into an
// empty database); with no database path the seed catalog is loaded straight
// into memory and builds are unavailable.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	if err := logging.Initialize(ws, logging.Options{
		Debug:      cfg.Logging.Debug || verbose,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.Format == "json",
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	a := &app{cfg: cfg}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}

	resultCache, err := cache.New(cache.Options{
		Backend:       cfg.Cache.Backend,
		SQLitePath:    cfg.Cache.SQLitePath,
		RedisAddr:     cfg.Cache.Redis.Addr,
		RedisPassword: cfg.Cache.Redis.Password,
		RedisDB:       cfg.Cache.Redis.DB,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open %s cache: %w", cfg.Cache.Backend, err)
	}
	a.cache = resultCache

	a.validator = validation.NewService(a.repo)
	a.engine = engine.NewEngine(engine.Deps{
		Repo:      a.repo,
		Cache:     a.cache,
		Validator: a.validator,
	}, engine.Config{
		Timeout:  cfg.GetEngineTimeout(),
		CacheTTL: cfg.GetCacheTTL(),
	})
	a.optimizer = optimizer.NewService(optimizer.Deps{
		Repo:     a.repo,
		Composer: a.engine,
	}, optimizer.Config{
		Budget:         cfg.GetOptimizerBudget(),
		MaxEvaluations: cfg.Optimizer.MaxEvaluations,
		MinImprovement: cfg.Optimizer.MinImprovement,
		MaxSuggestions: cfg.Optimizer.MaxSuggestions,
		Parallelism:    cfg.Optimizer.Parallelism,
		MetaBuilds:     cfg.Optimizer.MetaBuilds,
	})
	a.analyzer = analysis.NewService(a.engine, a.validator)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.Serve(cfg.Metrics.ListenAddr)
	}

	return a, nil
}

// openStorage picks the catalog backend from the storage config.
func (a *app) openStorage(ctx context.Context) error {
	dbPath := a.cfg.Storage.DatabasePath
	seedPath := a.cfg.Storage.SeedPath

	if dbPath == "" {
		if seedPath == "" {
			return fmt.Errorf("no catalog configured: set storage.database_path or storage.seed_path")
		}
		mem, err := store.NewMemoryRepositoryFromSeed(seedPath)
		if err != nil {
			return fmt.Errorf("failed to load seed catalog: %w", err)
		}
		a.repo = mem
		logger.Debug("Loaded in-memory catalog", zap.String("seed", seedPath))
		return nil
	}

	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	a.store = st
	a.repo = st

	if seedPath != "" {
		if _, statErr := os.Stat(seedPath); statErr == nil {
			count, err := st.CountRelics(ctx)
			if err != nil {
				return err
			}
			if count == 0 {
				n, err := store.ImportSeed(ctx, st, seedPath)
				if err != nil {
					return fmt.Errorf("failed to import seed catalog: %w", err)
				}
				logger.Info("Imported seed catalog",
					zap.String("seed", seedPath),
					zap.Int("relics", n))
			}
		}
		if a.cfg.Storage.WatchSeed {
			w, err := store.NewSeedWatcher(seedPath, st, nil)
			if err != nil {
				logger.Warn("Seed watcher unavailable", zap.Error(err))
			} else if err := w.Start(ctx); err == nil {
				a.watcher = w
			}
		}
	}
	return nil
}

// Close releases everything newApp opened. Safe on a partially built app.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metrics.Shutdown(shutdownCtx)
		cancel()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	logging.CloseAll()
}

// requireStore guards commands that persist state; the in-memory catalog
// cannot hold builds or imported relics across runs.
func (a *app) requireStore() (*store.Store, error) {
	if a.store == nil {
		return nil, fmt.Errorf("this command needs a database; set storage.database_path in %s", configPath)
	}
	return a.store, nil
}
