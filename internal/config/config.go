package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all relicforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Composition engine settings
	Engine EngineConfig `yaml:"engine"`

	// Optimization service settings
	Optimizer OptimizerConfig `yaml:"optimizer"`

	// Memoization cache settings
	Cache CacheConfig `yaml:"cache"`

	// Relic and build storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Prometheus metrics
	Metrics MetricsConfig `yaml:"metrics"`
}

// EngineConfig configures the composition engine.
type EngineConfig struct {
	// Timeout applied when the caller supplies no deadline
	Timeout string `yaml:"timeout"`
}

// OptimizerConfig configures the optimization service.
type OptimizerConfig struct {
	// Hard wall-clock budget for one optimization run
	Budget string `yaml:"budget"`

	// Cap on candidate evaluations per run
	MaxEvaluations int `yaml:"max_evaluations"`

	// Minimum multiplier improvement a suggestion must deliver
	MinImprovement float64 `yaml:"min_improvement"`

	// Number of suggestions returned
	MaxSuggestions int `yaml:"max_suggestions"`

	// Parallel candidate evaluations; 0 or 1 evaluates sequentially
	Parallelism int `yaml:"parallelism"`

	// Canonical relic lists per combat style for the meta strategy
	MetaBuilds map[string][]string `yaml:"meta_builds"`
}

// CacheConfig configures the memoization cache.
type CacheConfig struct {
	// Backend: memory, sqlite, redis
	Backend string `yaml:"backend"`

	// Entry time-to-live
	TTL string `yaml:"ttl"`

	// Trim target for trim_to_size
	MaxEntries int `yaml:"max_entries"`

	// SQLite backend file
	SQLitePath string `yaml:"sqlite_path"`

	// Redis backend connection
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig configures relic and build persistence.
type StorageConfig struct {
	// SQLite database file for relics and builds
	DatabasePath string `yaml:"database_path"`

	// YAML catalog imported at startup when set
	SeedPath string `yaml:"seed_path"`

	// Re-import the seed file when it changes on disk
	WatchSeed bool `yaml:"watch_seed"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`

	// Debug enables the category debug log; Categories narrows it
	Debug      bool     `yaml:"debug"`
	Categories []string `yaml:"categories"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// ValidCacheBackends lists all supported cache backends.
var ValidCacheBackends = []string{"memory", "sqlite", "redis"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "relicforge",
		Version: "1.0.0",

		Engine: EngineConfig{
			Timeout: "5s",
		},

		Optimizer: OptimizerConfig{
			Budget:         "10s",
			MaxEvaluations: 1000,
			MinImprovement: 0.05,
			MaxSuggestions: 5,
			Parallelism:    0,
			MetaBuilds: map[string][]string{
				"melee":  {"giants_ring", "warlords_banner", "berserkers_seal"},
				"ranged": {"hunters_charm", "chain_gauntlet", "duelists_band"},
				"magic":  {"archmage_focus", "scaling_idol", "moon_pendant"},
				"hybrid": {"giants_ring", "hunters_charm", "archmage_focus"},
			},
		},

		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        "1h",
			MaxEntries: 10000,
			SQLitePath: "data/relicforge-cache.db",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				DB:   0,
			},
		},

		Storage: StorageConfig{
			DatabasePath: "data/relicforge.db",
			SeedPath:     "data/relics.yaml",
			WatchSeed:    false,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "relicforge.log",
			Debug:  false,
		},

		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9143",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("RELICFORGE_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if path := os.Getenv("RELICFORGE_SEED"); path != "" {
		c.Storage.SeedPath = path
	}
	if backend := os.Getenv("RELICFORGE_CACHE_BACKEND"); backend != "" {
		c.Cache.Backend = backend
	}
	if addr := os.Getenv("RELICFORGE_REDIS_ADDR"); addr != "" {
		c.Cache.Redis.Addr = addr
	}
	if pw := os.Getenv("RELICFORGE_REDIS_PASSWORD"); pw != "" {
		c.Cache.Redis.Password = pw
	}
	if addr := os.Getenv("RELICFORGE_METRICS_ADDR"); addr != "" {
		c.Metrics.ListenAddr = addr
		c.Metrics.Enabled = true
	}
	if debug := os.Getenv("RELICFORGE_DEBUG"); debug != "" {
		if on, err := strconv.ParseBool(debug); err == nil {
			c.Logging.Debug = on
		}
	}
}

// GetEngineTimeout returns the composition timeout as a duration.
func (c *Config) GetEngineTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// GetOptimizerBudget returns the optimization wall-clock budget as a duration.
func (c *Config) GetOptimizerBudget() time.Duration {
	d, err := time.ParseDuration(c.Optimizer.Budget)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetCacheTTL returns the cache entry TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validBackend := false
	for _, b := range ValidCacheBackends {
		if c.Cache.Backend == b {
			validBackend = true
			break
		}
	}
	if !validBackend {
		return fmt.Errorf("invalid cache backend: %s (valid: %v)", c.Cache.Backend, ValidCacheBackends)
	}

	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache backend redis requires cache.redis.addr")
	}

	if c.Optimizer.MaxEvaluations <= 0 {
		return fmt.Errorf("optimizer.max_evaluations must be positive, got %d", c.Optimizer.MaxEvaluations)
	}
	if c.Optimizer.MinImprovement < 0 {
		return fmt.Errorf("optimizer.min_improvement must not be negative, got %v", c.Optimizer.MinImprovement)
	}
	if c.Optimizer.MaxSuggestions <= 0 {
		return fmt.Errorf("optimizer.max_suggestions must be positive, got %d", c.Optimizer.MaxSuggestions)
	}

	return nil
}
