// Package cache provides the composition result cache behind
// types.ResultCache. Three backends share the same contract: an in-process
// map for single runs, SQLite for persistence across runs, and Redis for
// sharing between processes. Lookups atomically bump the hit counter;
// expired entries are invisible but linger until cleanup.
package cache

import (
	"fmt"

	"relicforge/internal/types"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string
	// Redis connection settings for the redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Clock defaults to the wall clock.
	Clock types.Clock
}

// New builds the configured backend. An empty backend name means memory.
func New(opts Options) (types.ResultCache, error) {
	if opts.Clock == nil {
		opts.Clock = types.SystemClock{}
	}
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(opts.Clock), nil
	case BackendSQLite:
		return NewSQLite(opts.SQLitePath, opts.Clock)
	case BackendRedis:
		return NewRedis(RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		}, opts.Clock)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
