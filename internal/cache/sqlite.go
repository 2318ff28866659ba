package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"relicforge/internal/logging"
	"relicforge/internal/metrics"
	"relicforge/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key            TEXT PRIMARY KEY,
    input_json     TEXT NOT NULL,
    result_json    TEXT NOT NULL,
    engine_version TEXT NOT NULL,
    created_at     INTEGER NOT NULL,
    expires_at     INTEGER NOT NULL,
    hit_count      INTEGER NOT NULL DEFAULT 0,
    size_bytes     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
CREATE INDEX IF NOT EXISTS idx_cache_created ON cache_entries(created_at);
`

// SQLite persists cache entries in a local database file, so memoized
// results survive process restarts. The hit-count increment rides in the
// lookup statement itself, which keeps concurrent lookups atomic without
// a transaction.
type SQLite struct {
	db    *sql.DB
	clock types.Clock
	mu    sync.RWMutex
	path  string
}

// NewSQLite opens (creating if needed) the cache database at path.
func NewSQLite(path string, clock types.Clock) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite cache path is empty")
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	logging.CacheDebug("sqlite cache open at %s", path)
	return &SQLite{db: db, clock: clock, path: path}, nil
}

// Lookup bumps and returns the entry in one statement. Entries at or past
// their expiry never match; they stay on disk until cleanup.
func (s *SQLite) Lookup(ctx context.Context, key string) (*types.CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now().UnixMilli()
	row := s.db.QueryRowContext(ctx, `
		UPDATE cache_entries SET hit_count = hit_count + 1
		WHERE key = ? AND expires_at > ?
		RETURNING input_json, result_json, engine_version, created_at, expires_at, hit_count`,
		key, now)

	var (
		inputJSON, resultJSON, version string
		createdAt, expiresAt           int64
		hits                           int64
	)
	if err := row.Scan(&inputJSON, &resultJSON, &version, &createdAt, &expiresAt, &hits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.CacheRequests.WithLabelValues(BackendSQLite, "miss").Inc()
			return nil, false, nil
		}
		metrics.CacheRequests.WithLabelValues(BackendSQLite, "error").Inc()
		return nil, false, types.Internal("cache lookup", err)
	}

	entry := &types.CacheEntry{
		Key:           key,
		EngineVersion: version,
		CreatedAt:     time.UnixMilli(createdAt),
		ExpiresAt:     time.UnixMilli(expiresAt),
		HitCount:      hits,
	}
	if err := json.Unmarshal([]byte(inputJSON), &entry.Input); err != nil {
		return nil, false, types.Internal("decode cache input", err)
	}
	if err := json.Unmarshal([]byte(resultJSON), &entry.Result); err != nil {
		return nil, false, types.Internal("decode cache result", err)
	}
	metrics.CacheRequests.WithLabelValues(BackendSQLite, "hit").Inc()
	return entry, true, nil
}

// Store upserts the entry; the last writer wins and the hit count restarts.
func (s *SQLite) Store(ctx context.Context, entry *types.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = types.DefaultCacheTTL
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = s.clock.Now()
	}
	expires := created.Add(ttl)

	inputJSON, err := json.Marshal(entry.Input)
	if err != nil {
		return types.Internal("encode cache input", err)
	}
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return types.Internal("encode cache result", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries
			(key, input_json, result_json, engine_version, created_at, expires_at, hit_count, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(key) DO UPDATE SET
			input_json     = excluded.input_json,
			result_json    = excluded.result_json,
			engine_version = excluded.engine_version,
			created_at     = excluded.created_at,
			expires_at     = excluded.expires_at,
			hit_count      = 0,
			size_bytes     = excluded.size_bytes`,
		entry.Key, string(inputJSON), string(resultJSON), entry.EngineVersion,
		created.UnixMilli(), expires.UnixMilli(), len(inputJSON)+len(resultJSON))
	if err != nil {
		return types.Internal("cache store", err)
	}
	return nil
}

// CleanupExpired deletes entries past their TTL and returns the count.
func (s *SQLite) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, s.clock.Now().UnixMilli())
	if err != nil {
		return 0, types.Internal("cache cleanup", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, types.Internal("cache cleanup", err)
	}
	return int(n), nil
}

// TrimToSize deletes the oldest entries by creation time until at most max
// remain. A non-positive max falls back to the default cap.
func (s *SQLite) TrimToSize(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		max = types.DefaultCacheMaxEntries
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return 0, types.Internal("cache trim", err)
	}
	excess := count - max
	if excess <= 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE key IN (
			SELECT key FROM cache_entries ORDER BY created_at ASC, key ASC LIMIT ?
		)`, excess)
	if err != nil {
		return 0, types.Internal("cache trim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, types.Internal("cache trim", err)
	}
	return int(n), nil
}

// DeleteAll empties the cache table.
func (s *SQLite) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return types.Internal("cache clear", err)
	}
	return nil
}

// Stats summarizes the table, including the topN most hit entries.
func (s *SQLite) Stats(ctx context.Context, topN int) (*types.CacheStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &types.CacheStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(hit_count), 0), COALESCE(SUM(size_bytes), 0)
		FROM cache_entries`).Scan(&stats.Entries, &stats.TotalHits, &stats.SizeBytes)
	if err != nil {
		return nil, types.Internal("cache stats", err)
	}
	if stats.Entries > 0 {
		stats.AverageHits = float64(stats.TotalHits) / float64(stats.Entries)
	}

	if topN <= 0 {
		return stats, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, hit_count, input_json FROM cache_entries
		ORDER BY hit_count DESC, key ASC LIMIT ?`, topN)
	if err != nil {
		return nil, types.Internal("cache stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			top       types.CacheTopEntry
			inputJSON string
		)
		if err := rows.Scan(&top.Key, &top.HitCount, &inputJSON); err != nil {
			return nil, types.Internal("cache stats", err)
		}
		var input types.InputSnapshot
		if err := json.Unmarshal([]byte(inputJSON), &input); err == nil {
			top.RelicIDs = input.RelicIDs
		}
		stats.TopEntries = append(stats.TopEntries, top)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Internal("cache stats", err)
	}
	return stats, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
