package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"relicforge/internal/types"
)

// SeedFile is the shape of a YAML relic catalog.
type SeedFile struct {
	Version string        `json:"version,omitempty"`
	Relics  []types.Relic `json:"relics"`
}

// LoadSeed reads and decodes a YAML relic catalog. The document is decoded
// by way of JSON so effect conditions reuse the same envelope decoder as API
// payloads. Entries that omit "active" default to true, and entries that
// omit "obtainment_difficulty" default to the minimum.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	applySeedDefaults(doc)

	bridged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to bridge seed file %s: %w", path, err)
	}

	var sf SeedFile
	if err := json.Unmarshal(bridged, &sf); err != nil {
		return nil, fmt.Errorf("failed to decode seed file %s: %w", path, err)
	}

	if err := checkSeed(&sf); err != nil {
		return nil, err
	}
	return &sf, nil
}

// applySeedDefaults fills in omitted fields on the generic document before
// it is bridged to JSON. A bool zero value cannot distinguish "absent" from
// "false", so presence has to be checked here.
func applySeedDefaults(doc any) {
	root, ok := doc.(map[string]any)
	if !ok {
		return
	}
	relics, ok := root["relics"].([]any)
	if !ok {
		return
	}
	for _, entry := range relics {
		relic, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if _, present := relic["active"]; !present {
			relic["active"] = true
		}
		if _, present := relic["obtainment_difficulty"]; !present {
			relic["obtainment_difficulty"] = types.MinObtainmentDifficulty
		}
		effects, ok := relic["effects"].([]any)
		if !ok {
			continue
		}
		for _, raw := range effects {
			effect, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if _, present := effect["active"]; !present {
				effect["active"] = true
			}
		}
	}
}

// checkSeed verifies catalog-level integrity: required fields, known enum
// values, value bounds, and unique ids. Deeper selection rules (conflicts,
// build limits) belong to the validation service.
func checkSeed(sf *SeedFile) error {
	if len(sf.Relics) == 0 {
		return fmt.Errorf("seed file declares no relics")
	}

	seen := make(map[string]bool, len(sf.Relics))
	for i := range sf.Relics {
		r := &sf.Relics[i]
		if r.ID == "" {
			return fmt.Errorf("seed relic %d has no id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("seed relic id %s appears twice", r.ID)
		}
		seen[r.ID] = true

		if r.Name == "" {
			return fmt.Errorf("seed relic %s has no name", r.ID)
		}
		if !r.Category.Valid() {
			return fmt.Errorf("seed relic %s has unknown category %q", r.ID, r.Category)
		}
		if !r.Rarity.Valid() {
			return fmt.Errorf("seed relic %s has unknown rarity %q", r.ID, r.Rarity)
		}
		if !r.Quality.Valid() {
			return fmt.Errorf("seed relic %s has unknown quality %q", r.ID, r.Quality)
		}
		if r.ObtainmentDifficulty < types.MinObtainmentDifficulty || r.ObtainmentDifficulty > types.MaxObtainmentDifficulty {
			return fmt.Errorf("seed relic %s has difficulty %d outside %d..%d",
				r.ID, r.ObtainmentDifficulty, types.MinObtainmentDifficulty, types.MaxObtainmentDifficulty)
		}
		for j := range r.Effects {
			e := &r.Effects[j]
			if e.ID == "" {
				return fmt.Errorf("seed relic %s effect %d has no id", r.ID, j)
			}
			if !e.Type.Valid() {
				return fmt.Errorf("seed relic %s effect %s has unknown effect_type %q", r.ID, e.ID, e.Type)
			}
			if !e.Stacking.Valid() {
				return fmt.Errorf("seed relic %s effect %s has unknown stacking_rule %q", r.ID, e.ID, e.Stacking)
			}
			if e.Value <= 0 || e.Value > types.MaxEffectValue {
				return fmt.Errorf("seed relic %s effect %s has value %v outside (0, %v]",
					r.ID, e.ID, e.Value, types.MaxEffectValue)
			}
		}
	}
	return nil
}

// ImportSeed loads the catalog at path and upserts every relic into the
// store. It returns the number of relics imported.
func ImportSeed(ctx context.Context, s *Store, path string) (int, error) {
	sf, err := LoadSeed(path)
	if err != nil {
		return 0, err
	}
	for i := range sf.Relics {
		if err := s.UpsertRelic(ctx, &sf.Relics[i]); err != nil {
			return 0, err
		}
	}
	return len(sf.Relics), nil
}

// NewMemoryRepositoryFromSeed loads the catalog at path into a fresh
// in-memory repository.
func NewMemoryRepositoryFromSeed(path string) (*MemoryRepository, error) {
	sf, err := LoadSeed(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryRepository(sf.Relics...), nil
}
