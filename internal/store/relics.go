package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"relicforge/internal/types"
)

var _ types.RelicRepository = (*Store)(nil)

const relicColumns = "id, name, description, category, rarity, quality, icon_url, obtainment_difficulty, conflicts, active, effects"

// ========== Relic Catalog ==========

// UpsertRelic inserts the relic or replaces an existing row with the same id.
func (s *Store) UpsertRelic(ctx context.Context, r *types.Relic) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("relic id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conflictsJSON, _ := json.Marshal(r.Conflicts)
	effectsJSON, _ := json.Marshal(r.Effects)
	now := s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relics (id, name, description, category, rarity, quality, icon_url, obtainment_difficulty, conflicts, active, effects, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 name = excluded.name,
		 description = excluded.description,
		 category = excluded.category,
		 rarity = excluded.rarity,
		 quality = excluded.quality,
		 icon_url = excluded.icon_url,
		 obtainment_difficulty = excluded.obtainment_difficulty,
		 conflicts = excluded.conflicts,
		 active = excluded.active,
		 effects = excluded.effects,
		 updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Description, string(r.Category), string(r.Rarity), string(r.Quality),
		r.IconURL, r.ObtainmentDifficulty, string(conflictsJSON), boolToInt(r.Active), string(effectsJSON),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert relic %s: %w", r.ID, err)
	}
	return nil
}

// GetRelic returns the relic with the given id, or nil when it does not exist.
func (s *Store) GetRelic(ctx context.Context, id string) (*types.Relic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+relicColumns+" FROM relics WHERE id = ?", id)

	relic, err := scanRelic(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return relic, nil
}

// GetRelicsByIDs returns the relics whose ids exist in the catalog, ordered
// by id. Missing ids are reported by absence, never by error.
func (s *Store) GetRelicsByIDs(ctx context.Context, ids []string) ([]types.Relic, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("SELECT %s FROM relics WHERE id IN (%s) ORDER BY id",
		relicColumns, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relics: %w", err)
	}
	defer rows.Close()

	return collectRelics(rows)
}

// ListRelics returns catalog relics matching the filter, ordered by id.
// Cheap predicates are pushed into SQL; every scanned row is still re-checked
// with filter.Matches so this backend can never drift from the in-memory one.
func (s *Store) ListRelics(ctx context.Context, filter types.RelicFilter) ([]types.Relic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conds []string
	var args []any

	if filter.Active != nil {
		conds = append(conds, "active = ?")
		args = append(args, boolToInt(*filter.Active))
	}
	if len(filter.Categories) > 0 {
		ph := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			ph[i] = "?"
			args = append(args, string(c))
		}
		conds = append(conds, fmt.Sprintf("category IN (%s)", strings.Join(ph, ", ")))
	}
	if len(filter.Rarities) > 0 {
		ph := make([]string, len(filter.Rarities))
		for i, r := range filter.Rarities {
			ph[i] = "?"
			args = append(args, string(r))
		}
		conds = append(conds, fmt.Sprintf("rarity IN (%s)", strings.Join(ph, ", ")))
	}
	if filter.MinDifficulty > 0 {
		conds = append(conds, "obtainment_difficulty >= ?")
		args = append(args, filter.MinDifficulty)
	}
	if filter.MaxDifficulty > 0 {
		conds = append(conds, "obtainment_difficulty <= ?")
		args = append(args, filter.MaxDifficulty)
	}

	query := "SELECT " + relicColumns + " FROM relics"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list relics: %w", err)
	}
	defer rows.Close()

	relics, err := collectRelics(rows)
	if err != nil {
		return nil, err
	}

	out := relics[:0]
	for i := range relics {
		if filter.Matches(&relics[i]) {
			out = append(out, relics[i])
		}
	}
	return out, nil
}

// DeleteRelic removes the relic with the given id. Deleting a missing relic
// is not an error.
func (s *Store) DeleteRelic(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM relics WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete relic %s: %w", id, err)
	}
	return nil
}

// CountRelics returns the number of relics in the catalog.
func (s *Store) CountRelics(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relics").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count relics: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRelic(row rowScanner) (*types.Relic, error) {
	var r types.Relic
	var conflictsJSON, effectsJSON string
	var active int

	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Category, &r.Rarity, &r.Quality,
		&r.IconURL, &r.ObtainmentDifficulty, &conflictsJSON, &active, &effectsJSON)
	if err != nil {
		return nil, err
	}
	r.Active = active != 0

	if conflictsJSON != "" && conflictsJSON != "[]" {
		if err := json.Unmarshal([]byte(conflictsJSON), &r.Conflicts); err != nil {
			return nil, fmt.Errorf("relic %s has corrupt conflicts column: %w", r.ID, err)
		}
	}
	if effectsJSON != "" && effectsJSON != "[]" {
		if err := json.Unmarshal([]byte(effectsJSON), &r.Effects); err != nil {
			return nil, fmt.Errorf("relic %s has corrupt effects column: %w", r.ID, err)
		}
	}
	return &r, nil
}

func collectRelics(rows *sql.Rows) ([]types.Relic, error) {
	var relics []types.Relic
	for rows.Next() {
		r, err := scanRelic(rows)
		if err != nil {
			return nil, err
		}
		relics = append(relics, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read relic rows: %w", err)
	}
	return relics, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
