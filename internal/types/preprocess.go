package types

// ValidationSummary aggregates facts about a validated relic selection.
type ValidationSummary struct {
	RelicCount        int                   `json:"relic_count"`
	ByCategory        map[RelicCategory]int `json:"by_category"`
	ByRarity          map[Rarity]int        `json:"by_rarity"`
	ByQuality         map[Quality]int       `json:"by_quality"`
	TotalDifficulty   int                   `json:"total_difficulty"`
	AverageDifficulty float64               `json:"average_difficulty"`
	TotalEffects      int                   `json:"total_effects"`
	HasConflicts      bool                  `json:"has_conflicts"`
}

// PreprocessBundle is the validation service's successful output: the loaded
// relics in caller order plus summary and advisory warnings.
type PreprocessBundle struct {
	Relics   []Relic           `json:"relics"`
	Summary  ValidationSummary `json:"summary"`
	Warnings []string          `json:"warnings,omitempty"`
}

// ConflictPair names a relic and the selected ids it conflicts with. A list
// of these rides in CONFLICTING_RELICS error details.
type ConflictPair struct {
	RelicID        string   `json:"relic_id"`
	ConflictingIDs []string `json:"conflicting_ids"`
}
