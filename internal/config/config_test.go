package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "relicforge", cfg.Name)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Second, cfg.GetEngineTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetOptimizerBudget())
	assert.Equal(t, time.Hour, cfg.GetCacheTTL())
	assert.NoError(t, cfg.Validate())

	// Every combat style carries a meta list.
	for _, style := range []string{"melee", "ranged", "magic", "hybrid"} {
		assert.NotEmpty(t, cfg.Optimizer.MetaBuilds[style], "meta builds for %s", style)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Cache.Backend, cfg.Cache.Backend)
}

func TestLoadParsesAndKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	body := []byte(`
engine:
  timeout: 2s
cache:
  backend: sqlite
  ttl: 30m
optimizer:
  max_evaluations: 250
`)
	require.NoError(t, os.WriteFile(path, body, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.GetEngineTimeout())
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Minute, cfg.GetCacheTTL())
	assert.Equal(t, 250, cfg.Optimizer.MaxEvaluations)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.05, cfg.Optimizer.MinImprovement)
	assert.Equal(t, "data/relicforge.db", cfg.Storage.DatabasePath)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("RELICFORGE_DB overrides database path", func(t *testing.T) {
		t.Setenv("RELICFORGE_DB", "/tmp/override.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/override.db", cfg.Storage.DatabasePath)
	})

	t.Run("RELICFORGE_CACHE_BACKEND and redis addr", func(t *testing.T) {
		t.Setenv("RELICFORGE_CACHE_BACKEND", "redis")
		t.Setenv("RELICFORGE_REDIS_ADDR", "redis.internal:6380")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "redis", cfg.Cache.Backend)
		assert.Equal(t, "redis.internal:6380", cfg.Cache.Redis.Addr)
	})

	t.Run("RELICFORGE_METRICS_ADDR enables metrics", func(t *testing.T) {
		t.Setenv("RELICFORGE_METRICS_ADDR", ":9999")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, ":9999", cfg.Metrics.ListenAddr)
	})

	t.Run("RELICFORGE_DEBUG flips debug logging", func(t *testing.T) {
		t.Setenv("RELICFORGE_DEBUG", "true")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Logging.Debug)
	})

	t.Run("malformed RELICFORGE_DEBUG is ignored", func(t *testing.T) {
		t.Setenv("RELICFORGE_DEBUG", "yes please")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.False(t, cfg.Logging.Debug)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: "invalid cache backend",
		},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Cache.Backend = "redis"
				c.Cache.Redis.Addr = ""
			},
			wantErr: "requires cache.redis.addr",
		},
		{
			name:    "nonpositive evaluations",
			mutate:  func(c *Config) { c.Optimizer.MaxEvaluations = 0 },
			wantErr: "max_evaluations",
		},
		{
			name:    "negative improvement",
			mutate:  func(c *Config) { c.Optimizer.MinImprovement = -0.1 },
			wantErr: "min_improvement",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTimeoutFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Timeout = "soon"
	cfg.Optimizer.Budget = "-3s"
	cfg.Cache.TTL = ""

	assert.Equal(t, 5*time.Second, cfg.GetEngineTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetOptimizerBudget())
	assert.Equal(t, time.Hour, cfg.GetCacheTTL())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "forge.yaml")

	cfg := DefaultConfig()
	cfg.Cache.Backend = "sqlite"
	cfg.Optimizer.Parallelism = 4
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", loaded.Cache.Backend)
	assert.Equal(t, 4, loaded.Optimizer.Parallelism)
}
