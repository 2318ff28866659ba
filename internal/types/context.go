package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// CombatStyle is the stance a composition is evaluated under.
type CombatStyle string

const (
	StyleMelee  CombatStyle = "melee"
	StyleRanged CombatStyle = "ranged"
	StyleMagic  CombatStyle = "magic"
	StyleHybrid CombatStyle = "hybrid"
)

// Valid reports whether the style is one of the known values.
func (s CombatStyle) Valid() bool {
	switch s {
	case StyleMelee, StyleRanged, StyleMagic, StyleHybrid:
		return true
	}
	return false
}

// AllCombatStyles returns the known styles in display order.
func AllCombatStyles() []CombatStyle {
	return []CombatStyle{StyleMelee, StyleRanged, StyleMagic, StyleHybrid}
}

// Context defaults and bounds.
const (
	DefaultAttackPower    = 100.0
	DefaultCharacterLevel = 1
	MinCharacterLevel     = 1
	MaxCharacterLevel     = 999
)

// Symbolic condition keys recognized in CombatContext.Conditions.
const (
	condKeyHealthPercentage = "health_percentage"
	condKeyChainPosition    = "chain_position"
	condKeyEnemyType        = "enemy_type"
	condKeyEquipmentCount   = "equipment_count"
)

// BaseStats carries the attacker's raw numbers before relic effects.
type BaseStats struct {
	AttackPower float64 `json:"attack_power,omitempty"`
}

// CombatContext is the runtime situation effect conditions are evaluated
// against. All fields are optional on the wire; Normalize fills defaults.
type CombatContext struct {
	CombatStyle    CombatStyle    `json:"combat_style,omitempty"`
	WeaponType     string         `json:"weapon_type,omitempty"`
	CharacterLevel int            `json:"character_level,omitempty"`
	Conditions     map[string]any `json:"conditions,omitempty"`
	BaseStats      BaseStats      `json:"base_stats,omitempty"`
}

// DefaultContext returns the context every omitted input normalizes to:
// melee, level 1, attack power 100.
func DefaultContext() *CombatContext {
	return &CombatContext{
		CombatStyle:    StyleMelee,
		CharacterLevel: DefaultCharacterLevel,
		BaseStats:      BaseStats{AttackPower: DefaultAttackPower},
	}
}

// Normalize returns a defaulted, validated copy of the context. A nil
// receiver normalizes to DefaultContext. Condition keys are unified to
// snake_case and nil values dropped so the canonical JSON form is stable.
func (c *CombatContext) Normalize() (*CombatContext, error) {
	if c == nil {
		return DefaultContext(), nil
	}
	out := &CombatContext{
		CombatStyle:    c.CombatStyle,
		WeaponType:     strings.TrimSpace(c.WeaponType),
		CharacterLevel: c.CharacterLevel,
		BaseStats:      c.BaseStats,
	}
	if out.CombatStyle == "" {
		out.CombatStyle = StyleMelee
	}
	if !out.CombatStyle.Valid() {
		return nil, NewCalcError(ErrInvalidCombatStyle,
			fmt.Sprintf("unknown combat style %q", out.CombatStyle),
			map[string]any{"combat_style": string(out.CombatStyle), "allowed": AllCombatStyles()})
	}
	if out.CharacterLevel == 0 {
		out.CharacterLevel = DefaultCharacterLevel
	}
	if out.CharacterLevel < MinCharacterLevel || out.CharacterLevel > MaxCharacterLevel {
		return nil, NewCalcError(ErrInvalidCalculationContext,
			fmt.Sprintf("character_level %d out of range %d..%d", out.CharacterLevel, MinCharacterLevel, MaxCharacterLevel),
			map[string]any{"character_level": out.CharacterLevel})
	}
	if out.BaseStats.AttackPower == 0 {
		out.BaseStats.AttackPower = DefaultAttackPower
	}
	if out.BaseStats.AttackPower < 0 {
		return nil, NewCalcError(ErrInvalidCalculationContext,
			"base_stats.attack_power must be positive",
			map[string]any{"attack_power": out.BaseStats.AttackPower})
	}
	if len(c.Conditions) > 0 {
		out.Conditions = make(map[string]any, len(c.Conditions))
		for k, v := range c.Conditions {
			if v == nil {
				continue
			}
			out.Conditions[canonicalKey(k)] = v
		}
		if len(out.Conditions) == 0 {
			out.Conditions = nil
		}
	}
	return out, nil
}

// CanonicalJSON renders the normalized context in its canonical wire form:
// a single JSON object with sorted keys and omitted empty optionals. The
// encoder sorts map keys, which is what makes the form canonical.
func (c *CombatContext) CanonicalJSON() ([]byte, error) {
	norm, err := c.Normalize()
	if err != nil {
		return nil, err
	}
	m := map[string]any{
		"combat_style":    string(norm.CombatStyle),
		"character_level": norm.CharacterLevel,
		"base_stats":      map[string]any{"attack_power": norm.BaseStats.AttackPower},
	}
	if norm.WeaponType != "" {
		m["weapon_type"] = norm.WeaponType
	}
	if len(norm.Conditions) > 0 {
		m["conditions"] = norm.Conditions
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode canonical context: %w", err)
	}
	return data, nil
}

// AttackPower returns the effective base attack power.
func (c *CombatContext) AttackPower() float64 {
	if c == nil || c.BaseStats.AttackPower == 0 {
		return DefaultAttackPower
	}
	return c.BaseStats.AttackPower
}

// Level returns the effective character level.
func (c *CombatContext) Level() int {
	if c == nil || c.CharacterLevel == 0 {
		return DefaultCharacterLevel
	}
	return c.CharacterLevel
}

// HealthPercentage reads the symbolic health_percentage condition value.
func (c *CombatContext) HealthPercentage() (float64, bool) {
	return c.conditionNumber(condKeyHealthPercentage)
}

// ChainPosition reads the symbolic chain_position condition value.
func (c *CombatContext) ChainPosition() (int, bool) {
	f, ok := c.conditionNumber(condKeyChainPosition)
	return int(f), ok
}

// EnemyType reads the symbolic enemy_type condition value.
func (c *CombatContext) EnemyType() (string, bool) {
	if c == nil || c.Conditions == nil {
		return "", false
	}
	v, ok := c.Conditions[condKeyEnemyType]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// EquipmentCount reads the symbolic equipment_count condition value.
func (c *CombatContext) EquipmentCount() (int, bool) {
	f, ok := c.conditionNumber(condKeyEquipmentCount)
	return int(f), ok
}

// SetCondition stores a symbolic condition value under the canonical key,
// allocating the map on first use.
func (c *CombatContext) SetCondition(key string, value any) {
	if c.Conditions == nil {
		c.Conditions = make(map[string]any)
	}
	c.Conditions[canonicalKey(key)] = value
}

func (c *CombatContext) conditionNumber(key string) (float64, bool) {
	if c == nil || c.Conditions == nil {
		return 0, false
	}
	v, ok := c.Conditions[key]
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// canonicalKey unifies camelCase and snake_case condition keys to snake_case.
func canonicalKey(k string) string {
	k = strings.TrimSpace(k)
	var b strings.Builder
	b.Grow(len(k) + 4)
	for i, r := range k {
		if unicode.IsUpper(r) {
			if i > 0 && k[i-1] != '_' {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
