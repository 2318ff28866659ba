package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"relicforge/internal/types"
)

// ========== Saved Builds ==========

// CreateBuild persists a new build with its slots. The build id must be set
// by the caller and must not already exist.
func (s *Store) CreateBuild(ctx context.Context, b *types.Build) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("build id is required")
	}
	if b.Name == "" {
		return fmt.Errorf("build name is required")
	}
	if err := b.Validate(); err != nil {
		return err
	}
	b.NormalizeSlots()

	now := s.now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO builds (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		b.ID, b.Name, b.Description, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert build %s: %w", b.ID, err)
	}

	if err := insertSlots(ctx, tx, b.ID, b.Slots); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit build %s: %w", b.ID, err)
	}
	return nil
}

// GetBuild returns the build with the given id, or nil when it does not exist.
func (s *Store) GetBuild(ctx context.Context, id string) (*types.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getBuildLocked(ctx, id)
}

func (s *Store) getBuildLocked(ctx context.Context, id string) (*types.Build, error) {
	var b types.Build
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at, updated_at FROM builds WHERE id = ?", id).
		Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load build %s: %w", id, err)
	}

	slots, err := s.loadSlots(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Slots = slots
	return &b, nil
}

func (s *Store) loadSlots(ctx context.Context, buildID string) ([]types.BuildSlot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT position, relic_id, condition_overrides FROM build_slots WHERE build_id = ? ORDER BY position",
		buildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load slots for build %s: %w", buildID, err)
	}
	defer rows.Close()

	var slots []types.BuildSlot
	for rows.Next() {
		var slot types.BuildSlot
		var overridesJSON sql.NullString
		if err := rows.Scan(&slot.Position, &slot.RelicID, &overridesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan slot for build %s: %w", buildID, err)
		}
		if overridesJSON.Valid && overridesJSON.String != "" && overridesJSON.String != "{}" {
			if err := json.Unmarshal([]byte(overridesJSON.String), &slot.ConditionOverrides); err != nil {
				return nil, fmt.Errorf("build %s slot %d has corrupt overrides: %w", buildID, slot.Position, err)
			}
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read slot rows: %w", err)
	}
	return slots, nil
}

// ListBuilds returns every saved build with its slots, oldest first.
func (s *Store) ListBuilds(ctx context.Context) ([]types.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, created_at, updated_at FROM builds ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var builds []types.Build
	for rows.Next() {
		var b types.Build
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan build row: %w", err)
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read build rows: %w", err)
	}

	for i := range builds {
		slots, err := s.loadSlots(ctx, builds[i].ID)
		if err != nil {
			return nil, err
		}
		builds[i].Slots = slots
	}
	return builds, nil
}

// DeleteBuild removes a build and its slots. Deleting a missing build is not
// an error.
func (s *Store) DeleteBuild(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM build_slots WHERE build_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete slots for build %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM builds WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete build %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of build %s: %w", id, err)
	}
	return nil
}

// AddRelicToBuild appends the relic at the next free position and returns the
// updated build. The relic must exist in the catalog, must not already be in
// the build, and the build must have room for it.
func (s *Store) AddRelicToBuild(ctx context.Context, buildID, relicID string, overrides map[string]any) (*types.Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.getBuildLocked(ctx, buildID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("build %s not found", buildID)
	}

	relic, err := s.getRelicLocked(ctx, relicID)
	if err != nil {
		return nil, err
	}
	if relic == nil {
		return nil, types.NewCalcError(types.ErrRelicNotFound,
			fmt.Sprintf("relic %s does not exist in the catalog", relicID),
			map[string]any{"relic_id": relicID})
	}

	b.Slots = append(b.Slots, types.BuildSlot{
		Position:           len(b.Slots),
		RelicID:            relicID,
		ConditionOverrides: overrides,
	})
	if err := b.Validate(); err != nil {
		return nil, err
	}
	b.NormalizeSlots()

	if err := s.rewriteSlotsLocked(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// RemoveRelicFromBuild drops the relic's slot and renumbers the remaining
// slots densely. It returns the updated build.
func (s *Store) RemoveRelicFromBuild(ctx context.Context, buildID, relicID string) (*types.Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.getBuildLocked(ctx, buildID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("build %s not found", buildID)
	}

	kept := b.Slots[:0]
	found := false
	for _, slot := range b.Slots {
		if slot.RelicID == relicID {
			found = true
			continue
		}
		kept = append(kept, slot)
	}
	if !found {
		return nil, types.NewCalcError(types.ErrRelicNotFound,
			fmt.Sprintf("relic %s is not part of build %s", relicID, buildID),
			map[string]any{"build_id": buildID, "relic_id": relicID})
	}
	b.Slots = kept
	b.NormalizeSlots()

	if err := s.rewriteSlotsLocked(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// getRelicLocked is GetRelic without taking the store lock; callers hold it.
func (s *Store) getRelicLocked(ctx context.Context, id string) (*types.Relic, error) {
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

// rewriteSlotsLocked replaces the build's slot rows with b.Slots and bumps
// updated_at, all in one transaction.
func (s *Store) rewriteSlotsLocked(ctx context.Context, b *types.Build) error {
	b.UpdatedAt = s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM build_slots WHERE build_id = ?", b.ID); err != nil {
		return fmt.Errorf("failed to clear slots for build %s: %w", b.ID, err)
	}
	if err := insertSlots(ctx, tx, b.ID, b.Slots); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE builds SET updated_at = ? WHERE id = ?", b.UpdatedAt, b.ID); err != nil {
		return fmt.Errorf("failed to touch build %s: %w", b.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit slots for build %s: %w", b.ID, err)
	}
	return nil
}

func insertSlots(ctx context.Context, tx *sql.Tx, buildID string, slots []types.BuildSlot) error {
	for _, slot := range slots {
		var overridesJSON any
		if len(slot.ConditionOverrides) > 0 {
			raw, _ := json.Marshal(slot.ConditionOverrides)
			overridesJSON = string(raw)
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO build_slots (build_id, position, relic_id, condition_overrides) VALUES (?, ?, ?, ?)",
			buildID, slot.Position, slot.RelicID, overridesJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to insert slot %d for build %s: %w", slot.Position, buildID, err)
		}
	}
	return nil
}
