package types

import "math"

// Operation labels a breakdown step.
type Operation string

const (
	OpBase      Operation = "base"
	OpAdd       Operation = "add"
	OpMultiply  Operation = "multiply"
	OpOverwrite Operation = "overwrite"
)

// BreakdownStep is one entry of the composition audit trail. Step indices are
// 1-based and monotonic; their order is part of the engine contract.
type BreakdownStep struct {
	Step         int       `json:"step"`
	Description  string    `json:"description"`
	Operation    Operation `json:"operation"`
	Value        float64   `json:"value"`
	RunningTotal float64   `json:"running_total"`
	RelicName    string    `json:"relic_name,omitempty"`
	EffectName   string    `json:"effect_name,omitempty"`
}

// StackingBonus records one group contribution for traceability. Applied is
// false for record-only effect types that never reach a numeric lane.
type StackingBonus struct {
	Rule       StackingRule `json:"stacking_rule"`
	EffectType EffectType   `json:"effect_type"`
	RelicID    string       `json:"relic_id,omitempty"`
	RelicName  string       `json:"relic_name,omitempty"`
	EffectID   string       `json:"effect_id,omitempty"`
	EffectName string       `json:"effect_name,omitempty"`
	Value      float64      `json:"value"`
	Applied    bool         `json:"applied"`
	Note       string       `json:"note,omitempty"`
}

// ConditionalEffect annotates a passing conditional_damage effect, which
// carries no numeric lane but matters to the client.
type ConditionalEffect struct {
	RelicID    string   `json:"relic_id"`
	RelicName  string   `json:"relic_name"`
	EffectID   string   `json:"effect_id"`
	EffectName string   `json:"effect_name"`
	Value      float64  `json:"value"`
	Conditions []string `json:"conditions,omitempty"`
}

// CompositionResult is the engine's answer for one relic set + context.
type CompositionResult struct {
	TotalMultiplier    float64                `json:"total_multiplier"`
	BaseMultiplier     float64                `json:"base_multiplier"`
	FinalAttackPower   float64                `json:"final_attack_power"`
	BaseAttackPower    float64                `json:"base_attack_power"`
	StackingBonuses    []StackingBonus        `json:"stacking_bonuses"`
	ConditionalEffects []ConditionalEffect    `json:"conditional_effects"`
	Breakdown          []BreakdownStep        `json:"breakdown,omitempty"`
	DamageByType       map[DamageType]float64 `json:"damage_by_type"`
	Warnings           []string               `json:"warnings_and_errors"`
	EngineVersion      string                 `json:"engine_version"`
	CacheHit           bool                   `json:"cache_hit,omitempty"`
}

// Efficiency is the multiplier earned per relic slot. Empty selections have
// efficiency 0 rather than dividing by zero.
func (r *CompositionResult) Efficiency(relicCount int) float64 {
	if relicCount == 0 {
		return 0
	}
	return Round3(r.TotalMultiplier / float64(relicCount))
}

// Round3 rounds to three decimal places, the multiplier precision.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Round2 rounds to two decimal places, the attack-power precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
