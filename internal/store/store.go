// Package store persists the relic catalog and saved builds.
//
// The primary backend is a single SQLite database (relics, builds,
// build_slots). Structured fields such as effects, conflicts, and condition
// overrides are stored as JSON text columns. A MemoryRepository covers tests
// and seed-only deployments, and a SeedWatcher reimports the YAML catalog
// when it changes on disk.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed catalog of relic definitions and saved builds.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	now    func() time.Time
}

// NewStore initializes the SQLite database at the given path, creating the
// parent directory and schema when missing.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	relicTable := `
	CREATE TABLE IF NOT EXISTS relics (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		category TEXT NOT NULL,
		rarity TEXT NOT NULL,
		quality TEXT NOT NULL,
		icon_url TEXT DEFAULT '',
		obtainment_difficulty INTEGER NOT NULL DEFAULT 1,
		conflicts TEXT DEFAULT '[]',
		active INTEGER NOT NULL DEFAULT 1,
		effects TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_relics_category ON relics(category);
	CREATE INDEX IF NOT EXISTS idx_relics_rarity ON relics(rarity);
	CREATE INDEX IF NOT EXISTS idx_relics_active ON relics(active);
	`

	buildTable := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	// Positions within a build stay dense 0..n-1; every slot rewrite goes
	// through Build.NormalizeSlots before touching this table.
	slotTable := `
	CREATE TABLE IF NOT EXISTS build_slots (
		build_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		relic_id TEXT NOT NULL,
		condition_overrides TEXT,
		PRIMARY KEY (build_id, position),
		UNIQUE (build_id, relic_id)
	);
	CREATE INDEX IF NOT EXISTS idx_build_slots_build ON build_slots(build_id);
	`

	for _, table := range []string{relicTable, buildTable, slotTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}
