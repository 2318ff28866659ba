// Package types provides shared type definitions used across relicforge packages.
// This package exists to break import cycles between validation, engine, optimizer,
// and store. Types in this package should be foundational data structures with no
// complex dependencies.
package types

// =============================================================================
// ENUMS
// =============================================================================

// RelicCategory classifies what a relic is for.
type RelicCategory string

const (
	CategoryAttack    RelicCategory = "attack"
	CategoryDefense   RelicCategory = "defense"
	CategoryUtility   RelicCategory = "utility"
	CategoryCritical  RelicCategory = "critical"
	CategoryElemental RelicCategory = "elemental"
)

// Valid reports whether the category is one of the known values.
func (c RelicCategory) Valid() bool {
	switch c {
	case CategoryAttack, CategoryDefense, CategoryUtility, CategoryCritical, CategoryElemental:
		return true
	}
	return false
}

// AllCategories returns the known categories in display order.
func AllCategories() []RelicCategory {
	return []RelicCategory{CategoryAttack, CategoryDefense, CategoryUtility, CategoryCritical, CategoryElemental}
}

// Rarity orders relics from common to legendary.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Valid reports whether the rarity is one of the known values.
func (r Rarity) Valid() bool {
	return r.Rank() != 0
}

// Rank returns the ordering rank 1..4, or 0 for unknown rarities.
func (r Rarity) Rank() int {
	switch r {
	case RarityCommon:
		return 1
	case RarityRare:
		return 2
	case RarityEpic:
		return 3
	case RarityLegendary:
		return 4
	}
	return 0
}

// Quality grades the physical state of a relic.
type Quality string

const (
	QualityDelicate Quality = "delicate"
	QualityPolished Quality = "polished"
	QualityGrand    Quality = "grand"
)

// Valid reports whether the quality is one of the known values.
func (q Quality) Valid() bool {
	switch q {
	case QualityDelicate, QualityPolished, QualityGrand:
		return true
	}
	return false
}

// EffectType identifies how an effect's value is interpreted by the engine.
type EffectType string

const (
	EffectAttackMultiplier   EffectType = "attack_multiplier"
	EffectAttackFlat         EffectType = "attack_flat"
	EffectAttackPercentage   EffectType = "attack_percentage"
	EffectCriticalMultiplier EffectType = "critical_multiplier"
	EffectCriticalChance     EffectType = "critical_chance"
	EffectElementalDamage    EffectType = "elemental_damage"
	EffectConditionalDamage  EffectType = "conditional_damage"
	EffectWeaponSpecific     EffectType = "weapon_specific"
	EffectUnique             EffectType = "unique"
)

// Valid reports whether the effect type is one of the known values.
func (t EffectType) Valid() bool {
	switch t {
	case EffectAttackMultiplier, EffectAttackFlat, EffectAttackPercentage,
		EffectCriticalMultiplier, EffectCriticalChance, EffectElementalDamage,
		EffectConditionalDamage, EffectWeaponSpecific, EffectUnique:
		return true
	}
	return false
}

// StackingRule defines how multiple effects of the same rule combine.
type StackingRule string

const (
	StackingAdditive       StackingRule = "additive"
	StackingMultiplicative StackingRule = "multiplicative"
	StackingOverwrite      StackingRule = "overwrite"
	StackingUnique         StackingRule = "unique"
)

// Valid reports whether the stacking rule is one of the known values.
func (s StackingRule) Valid() bool {
	switch s {
	case StackingAdditive, StackingMultiplicative, StackingOverwrite, StackingUnique:
		return true
	}
	return false
}

// StackingOrder is the fixed group processing order of the composition engine.
// The order is part of the engine contract; breakdown determinism depends on it.
var StackingOrder = [4]StackingRule{
	StackingAdditive,
	StackingMultiplicative,
	StackingOverwrite,
	StackingUnique,
}

// DamageType tags a damage flavor an effect contributes to.
type DamageType string

const (
	DamagePhysical  DamageType = "physical"
	DamageMagical   DamageType = "magical"
	DamageFire      DamageType = "fire"
	DamageIce       DamageType = "ice"
	DamageLightning DamageType = "lightning"
	DamageDark      DamageType = "dark"
	DamageHoly      DamageType = "holy"
)

// Valid reports whether the damage type is one of the known values.
func (d DamageType) Valid() bool {
	switch d {
	case DamagePhysical, DamageMagical, DamageFire, DamageIce, DamageLightning, DamageDark, DamageHoly:
		return true
	}
	return false
}

// AllDamageTypes returns the seven damage types in display order.
func AllDamageTypes() []DamageType {
	return []DamageType{
		DamagePhysical, DamageMagical, DamageFire, DamageIce,
		DamageLightning, DamageDark, DamageHoly,
	}
}

// =============================================================================
// CORE ENTITIES
// =============================================================================

// MaxRelicsPerBuild caps both composition inputs and saved builds.
const MaxRelicsPerBuild = 9

// MinObtainmentDifficulty and MaxObtainmentDifficulty bound the rated
// acquisition effort of a relic.
const (
	MinObtainmentDifficulty = 1
	MaxObtainmentDifficulty = 10
)

// MaxEffectValue is the upper bound accepted for an effect's raw value.
const MaxEffectValue = 1000.0

// Relic is a named, typed, self-contained bundle of effects selectable by the
// player. A relic with Active=false is invisible to the engine.
type Relic struct {
	ID                   string        `json:"id" validate:"required"`
	Name                 string        `json:"name" validate:"required"`
	Description          string        `json:"description,omitempty"`
	Category             RelicCategory `json:"category" validate:"required"`
	Rarity               Rarity        `json:"rarity" validate:"required"`
	Quality              Quality       `json:"quality" validate:"required"`
	IconURL              string        `json:"icon_url,omitempty"`
	ObtainmentDifficulty int           `json:"obtainment_difficulty" validate:"min=1,max=10"`
	Conflicts            []string      `json:"conflicts,omitempty"`
	Active               bool          `json:"active"`
	Effects              []Effect      `json:"effects,omitempty"`
}

// ActiveEffects returns the relic's effects with Active=false filtered out,
// preserving declaration order.
func (r *Relic) ActiveEffects() []Effect {
	var out []Effect
	for _, e := range r.Effects {
		if e.Active {
			out = append(out, e)
		}
	}
	return out
}

// ConflictsWith reports whether otherID appears in r's declared conflicts.
// Callers wanting the undirected relation must check both directions.
func (r *Relic) ConflictsWith(otherID string) bool {
	for _, id := range r.Conflicts {
		if id == otherID {
			return true
		}
	}
	return false
}

// Effect is a single stacking contribution attached to a relic.
type Effect struct {
	ID          string        `json:"id" validate:"required"`
	Name        string        `json:"name" validate:"required"`
	Description string        `json:"description,omitempty"`
	Type        EffectType    `json:"effect_type" validate:"required"`
	Value       float64       `json:"value" validate:"gt=0,lte=1000"`
	Stacking    StackingRule  `json:"stacking_rule" validate:"required"`
	Priority    int           `json:"priority" validate:"min=0,max=10"`
	DamageTypes []DamageType  `json:"damage_types,omitempty"`
	Conditions  ConditionList `json:"conditions,omitempty"`
	Active      bool          `json:"active"`
}
