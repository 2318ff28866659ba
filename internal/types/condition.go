package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Condition wire tags. The set is closed; anything else decodes to
// UnknownCondition.
const (
	CondWeaponType      = "weapon_type"
	CondCombatStyle     = "combat_style"
	CondHealthThreshold = "health_threshold"
	CondChainPosition   = "chain_position"
	CondEnemyType       = "enemy_type"
	CondTimeBased       = "time_based"
	CondEquipmentCount  = "equipment_count"
)

// CharacterLevelSentinel is the literal equipment_count value that switches an
// attack_percentage effect into level-scaled mode.
const CharacterLevelSentinel = "character_level"

// Condition gates an effect on the runtime combat situation. All conditions of
// an effect must hold for the effect to apply. The implementations form a
// sealed set; unknown wire tags decode to UnknownCondition, which never matches.
type Condition interface {
	// Kind returns the wire tag of the condition.
	Kind() string
	// Matches evaluates the condition against a normalized context.
	Matches(ctx *CombatContext) bool
	// Describe returns the display string used in breakdowns and annotations.
	Describe() string

	isCondition()
}

// =============================================================================
// CONCRETE CONDITIONS
// =============================================================================

// WeaponTypeCondition passes when the context wields the named weapon.
type WeaponTypeCondition struct {
	Weapon      string
	Description string
}

func (c WeaponTypeCondition) Kind() string { return CondWeaponType }

func (c WeaponTypeCondition) Matches(ctx *CombatContext) bool {
	return ctx != nil && ctx.WeaponType == c.Weapon
}

func (c WeaponTypeCondition) Describe() string {
	if c.Description != "" {
		return c.Description
	}
	return "requires weapon " + c.Weapon
}

func (WeaponTypeCondition) isCondition() {}

// CombatStyleCondition passes when the context fights in the named style.
type CombatStyleCondition struct {
	Style       CombatStyle
	Description string
}

func (c CombatStyleCondition) Kind() string { return CondCombatStyle }

func (c CombatStyleCondition) Matches(ctx *CombatContext) bool {
	return ctx != nil && ctx.CombatStyle == c.Style
}

func (c CombatStyleCondition) Describe() string {
	if c.Description != "" {
		return c.Description
	}
	return "requires combat style " + string(c.Style)
}

func (CombatStyleCondition) isCondition() {}

// HealthThresholdCondition passes while the context's health percentage is at
// or below the threshold. A context without a health reading never passes.
type HealthThresholdCondition struct {
	MaxPercent  float64
	Description string
}

func (c HealthThresholdCondition) Kind() string { return CondHealthThreshold }

func (c HealthThresholdCondition) Matches(ctx *CombatContext) bool {
	if ctx == nil {
		return false
	}
	hp, ok := ctx.HealthPercentage()
	return ok && hp <= c.MaxPercent
}

func (c HealthThresholdCondition) Describe() string {
	if c.Description != "" {
		return c.Description
	}
	return fmt.Sprintf("requires health at or below %g%%", c.MaxPercent)
}

func (HealthThresholdCondition) isCondition() {}

// ChainPositionCondition passes when the attack sits at the given position in
// a combo chain.
type ChainPositionCondition struct {
	Position    int
	Description string
}

func (c ChainPositionCondition) Kind() string { return CondChainPosition }

func (c ChainPositionCondition) Matches(ctx *CombatContext) bool {
	if ctx == nil {
		return false
	}
	pos, ok := ctx.ChainPosition()
	return ok && pos == c.Position
}

func (c ChainPositionCondition) Describe() string {
	if c.Description != "" {
		return c.Description
	}
	return fmt.Sprintf("requires chain position %d", c.Position)
}

func (ChainPositionCondition) isCondition() {}

// EnemyTypeCondition passes against the named enemy type.
type EnemyTypeCondition struct {
	Enemy       string
	Description string
}

func (c EnemyTypeCondition) Kind() string { return CondEnemyType }

func (c EnemyTypeCondition) Matches(ctx *CombatContext) bool {
	if ctx == nil {
		return false
	}
	enemy, ok := ctx.EnemyType()
	return ok && enemy == c.Enemy
}

func (c EnemyTypeCondition) Describe() string {
	if c.Description != "" {
		return c.Description
	}
	return "requires enemy type " + c.Enemy
}

func (EnemyTypeCondition) isCondition() {}

// TimeBasedCondition gates an effect on a time window. Window evaluation is
// not implemented; the condition always passes and the engine surfaces a
// warning so results are honest about it.
type TimeBasedCondition struct {
	Window      string
	Description string
}

func (c TimeBasedCondition) Kind() string { return CondTimeBased }

func (c TimeBasedCondition) Matches(*CombatContext) bool { return true }

func (c TimeBasedCondition) Describe() string {
	if c.Description != "" {
		return c.Description
	}
	return "time window " + c.Window
}

func (TimeBasedCondition) isCondition() {}

// EquipmentCountCondition passes when the context reports at least Minimum
// equipped items. With ScalesWithLevel set (wire value "character_level") the
// condition always passes and instead marks the owning attack_percentage
// effect for level scaling.
type EquipmentCountCondition struct {
	Minimum         int
	ScalesWithLevel bool
	Description     string
}

func (c EquipmentCountCondition) Kind() string { return CondEquipmentCount }

func (c EquipmentCountCondition) Matches(ctx *CombatContext) bool {
	if c.ScalesWithLevel {
		return true
	}
	if ctx == nil {
		return false
	}
	count, ok := ctx.EquipmentCount()
	return ok && count >= c.Minimum
}

func (c EquipmentCountCondition) Describe() string {
	if c.Description != "" {
		return c.Description
	}
	if c.ScalesWithLevel {
		return "scales with character level"
	}
	return fmt.Sprintf("requires at least %d equipped items", c.Minimum)
}

func (EquipmentCountCondition) isCondition() {}

// UnknownCondition preserves a condition with an unrecognized tag. It never
// matches, disabling the owning effect without failing the composition, and
// round-trips its raw wire form untouched.
type UnknownCondition struct {
	RawType string
	Raw     json.RawMessage
}

func (c UnknownCondition) Kind() string { return c.RawType }

func (UnknownCondition) Matches(*CombatContext) bool { return false }

func (c UnknownCondition) Describe() string {
	return "unknown condition " + c.RawType
}

func (UnknownCondition) isCondition() {}

// =============================================================================
// WIRE CODEC
// =============================================================================

// conditionEnvelope is the wire form shared by every condition.
type conditionEnvelope struct {
	Type        string          `json:"type"`
	Value       json.RawMessage `json:"value,omitempty"`
	Description string          `json:"description,omitempty"`
}

// DecodeCondition parses one wire condition. Unknown tags are preserved as
// UnknownCondition rather than rejected; malformed values for known tags are
// structural errors.
func DecodeCondition(data []byte) (Condition, error) {
	var env conditionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode condition envelope: %w", err)
	}
	switch env.Type {
	case CondWeaponType:
		v, err := stringValue(env.Value)
		if err != nil {
			return nil, fmt.Errorf("weapon_type condition: %w", err)
		}
		return WeaponTypeCondition{Weapon: v, Description: env.Description}, nil
	case CondCombatStyle:
		v, err := stringValue(env.Value)
		if err != nil {
			return nil, fmt.Errorf("combat_style condition: %w", err)
		}
		return CombatStyleCondition{Style: CombatStyle(v), Description: env.Description}, nil
	case CondHealthThreshold:
		v, err := numberValue(env.Value)
		if err != nil {
			return nil, fmt.Errorf("health_threshold condition: %w", err)
		}
		return HealthThresholdCondition{MaxPercent: v, Description: env.Description}, nil
	case CondChainPosition:
		v, err := numberValue(env.Value)
		if err != nil {
			return nil, fmt.Errorf("chain_position condition: %w", err)
		}
		return ChainPositionCondition{Position: int(v), Description: env.Description}, nil
	case CondEnemyType:
		v, err := stringValue(env.Value)
		if err != nil {
			return nil, fmt.Errorf("enemy_type condition: %w", err)
		}
		return EnemyTypeCondition{Enemy: v, Description: env.Description}, nil
	case CondTimeBased:
		// Window payloads vary in the wild; keep whatever string form we got.
		v, err := stringValue(env.Value)
		if err != nil {
			v = string(env.Value)
		}
		return TimeBasedCondition{Window: v, Description: env.Description}, nil
	case CondEquipmentCount:
		if s, err := stringValue(env.Value); err == nil {
			if s != CharacterLevelSentinel {
				return nil, fmt.Errorf("equipment_count condition: unsupported string value %q", s)
			}
			return EquipmentCountCondition{ScalesWithLevel: true, Description: env.Description}, nil
		}
		v, err := numberValue(env.Value)
		if err != nil {
			return nil, fmt.Errorf("equipment_count condition: %w", err)
		}
		return EquipmentCountCondition{Minimum: int(v), Description: env.Description}, nil
	default:
		return UnknownCondition{RawType: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// EncodeCondition renders a condition back to its wire envelope.
func EncodeCondition(c Condition) ([]byte, error) {
	switch v := c.(type) {
	case UnknownCondition:
		if len(v.Raw) > 0 {
			return v.Raw, nil
		}
		return json.Marshal(conditionEnvelope{Type: v.RawType})
	case WeaponTypeCondition:
		return marshalEnvelope(CondWeaponType, v.Weapon, v.Description)
	case CombatStyleCondition:
		return marshalEnvelope(CondCombatStyle, string(v.Style), v.Description)
	case HealthThresholdCondition:
		return marshalEnvelope(CondHealthThreshold, v.MaxPercent, v.Description)
	case ChainPositionCondition:
		return marshalEnvelope(CondChainPosition, v.Position, v.Description)
	case EnemyTypeCondition:
		return marshalEnvelope(CondEnemyType, v.Enemy, v.Description)
	case TimeBasedCondition:
		return marshalEnvelope(CondTimeBased, v.Window, v.Description)
	case EquipmentCountCondition:
		if v.ScalesWithLevel {
			return marshalEnvelope(CondEquipmentCount, CharacterLevelSentinel, v.Description)
		}
		return marshalEnvelope(CondEquipmentCount, v.Minimum, v.Description)
	default:
		return nil, fmt.Errorf("cannot encode condition of type %T", c)
	}
}

func marshalEnvelope(kind string, value any, description string) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s condition value: %w", kind, err)
	}
	return json.Marshal(conditionEnvelope{Type: kind, Value: raw, Description: description})
}

func stringValue(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected string value, got %s", compactRaw(raw))
	}
	return s, nil
}

func numberValue(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	// Tolerate numbers shipped as strings, a quirk of older relic exports.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("expected numeric value, got %s", compactRaw(raw))
}

func compactRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "<empty>"
	}
	if len(raw) > 48 {
		return string(raw[:48]) + "..."
	}
	return string(raw)
}

// =============================================================================
// CONDITION LISTS
// =============================================================================

// ConditionList is the ordered condition set of an effect.
type ConditionList []Condition

// UnmarshalJSON decodes a JSON array of condition envelopes.
func (l *ConditionList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("failed to decode condition list: %w", err)
	}
	out := make(ConditionList, 0, len(raws))
	for i, raw := range raws {
		c, err := DecodeCondition(raw)
		if err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		out = append(out, c)
	}
	*l = out
	return nil
}

// MarshalJSON encodes the list back to wire envelopes.
func (l ConditionList) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(l))
	for i, c := range l {
		raw, err := EncodeCondition(c)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		raws = append(raws, raw)
	}
	return json.Marshal(raws)
}

// AllMatch reports whether every condition passes. Empty lists pass.
func (l ConditionList) AllMatch(ctx *CombatContext) bool {
	for _, c := range l {
		if !c.Matches(ctx) {
			return false
		}
	}
	return true
}

// ScalesWithCharacterLevel reports whether the list carries the
// equipment_count/"character_level" scaling marker.
func (l ConditionList) ScalesWithCharacterLevel() bool {
	for _, c := range l {
		if ec, ok := c.(EquipmentCountCondition); ok && ec.ScalesWithLevel {
			return true
		}
	}
	return false
}

// HasTimeBased reports whether the list carries a time_based condition.
func (l ConditionList) HasTimeBased() bool {
	for _, c := range l {
		if _, ok := c.(TimeBasedCondition); ok {
			return true
		}
	}
	return false
}

// WeaponRequirement returns the first weapon_type condition, if any.
func (l ConditionList) WeaponRequirement() (WeaponTypeCondition, bool) {
	for _, c := range l {
		if wc, ok := c.(WeaponTypeCondition); ok {
			return wc, true
		}
	}
	return WeaponTypeCondition{}, false
}

// StyleRequirement returns the first combat_style condition, if any.
func (l ConditionList) StyleRequirement() (CombatStyleCondition, bool) {
	for _, c := range l {
		if sc, ok := c.(CombatStyleCondition); ok {
			return sc, true
		}
	}
	return CombatStyleCondition{}, false
}

// Describe returns the display strings of all conditions in order.
func (l ConditionList) Describe() []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, 0, len(l))
	for _, c := range l {
		out = append(out, c.Describe())
	}
	return out
}
