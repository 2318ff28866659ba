package types

import (
	"fmt"
	"sort"
	"time"
)

// BuildSlot links one relic into a build at a fixed position. The slot owns
// nothing but its own row; relics never reference builds.
type BuildSlot struct {
	Position           int            `json:"position"`
	RelicID            string         `json:"relic_id"`
	ConditionOverrides map[string]any `json:"condition_overrides,omitempty"`
}

// Build is a user-saved, named, ordered selection of at most nine relics with
// optional per-slot condition overrides.
type Build struct {
	ID          string      `json:"id"`
	Name        string      `json:"name" validate:"required"`
	Description string      `json:"description,omitempty"`
	Slots       []BuildSlot `json:"slots"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// RelicIDs returns the build's relic ids in slot order.
func (b *Build) RelicIDs() []string {
	ids := make([]string, 0, len(b.Slots))
	for _, s := range b.Slots {
		ids = append(ids, s.RelicID)
	}
	return ids
}

// Validate checks the build invariants: size cap, no duplicate relics, no two
// slots at the same position.
func (b *Build) Validate() error {
	if len(b.Slots) > MaxRelicsPerBuild {
		return NewCalcError(ErrInvalidBuildSize,
			fmt.Sprintf("build holds %d slots, limit is %d", len(b.Slots), MaxRelicsPerBuild),
			map[string]any{"slots": len(b.Slots), "limit": MaxRelicsPerBuild})
	}
	seenRelic := make(map[string]bool, len(b.Slots))
	seenPos := make(map[int]bool, len(b.Slots))
	for _, s := range b.Slots {
		if seenRelic[s.RelicID] {
			return NewCalcError(ErrDuplicateRelics,
				fmt.Sprintf("relic %s appears in more than one slot", s.RelicID),
				map[string]any{"relic_id": s.RelicID})
		}
		seenRelic[s.RelicID] = true
		if seenPos[s.Position] {
			return NewCalcError(ErrInvalidBuildSize,
				fmt.Sprintf("two slots share position %d", s.Position),
				map[string]any{"position": s.Position})
		}
		seenPos[s.Position] = true
	}
	return nil
}

// NormalizeSlots sorts slots by position and renumbers them densely 0..n-1.
// Every insert and remove goes through this so positions never gap.
func (b *Build) NormalizeSlots() {
	sort.SliceStable(b.Slots, func(i, j int) bool {
		return b.Slots[i].Position < b.Slots[j].Position
	})
	for i := range b.Slots {
		b.Slots[i].Position = i
	}
}

// MergedContext copies base and layers every slot's condition overrides on
// top, later slots winning. The engine itself only ever sees the finished
// context.
func (b *Build) MergedContext(base *CombatContext) *CombatContext {
	out := &CombatContext{}
	if base != nil {
		out.CombatStyle = base.CombatStyle
		out.WeaponType = base.WeaponType
		out.CharacterLevel = base.CharacterLevel
		out.BaseStats = base.BaseStats
		if len(base.Conditions) > 0 {
			out.Conditions = make(map[string]any, len(base.Conditions))
			for k, v := range base.Conditions {
				out.Conditions[k] = v
			}
		}
	}
	for _, s := range b.Slots {
		for k, v := range s.ConditionOverrides {
			out.SetCondition(k, v)
		}
	}
	return out
}
