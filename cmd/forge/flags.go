// Package main implements the relicforge CLI. This file handles the combat
// context flags shared by every command that evaluates relics, and the
// parsing of relic id arguments.
package main

import (
	"fmt"
	"strconv"
	"strings"

	"relicforge/internal/types"

	"github.com/spf13/cobra"
)

var (
	// Combat context flags. Only one command runs per invocation, so the
	// evaluating commands can share these.
	ctxStyle      string
	ctxWeapon     string
	ctxLevel      int
	ctxBaseAttack float64
	ctxConditions []string

	// jsonOut switches a command from styled output to raw JSON.
	jsonOut bool
)

// registerContextFlags attaches the combat context flags to an evaluating
// command (compose, optimize, analyze, compare, builds eval).
func registerContextFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ctxStyle, "style", "", "Combat style: melee, ranged, magic, hybrid")
	cmd.Flags().StringVar(&ctxWeapon, "weapon", "", "Weapon type for weapon-specific effects")
	cmd.Flags().IntVar(&ctxLevel, "level", 0, "Character level (1-999)")
	cmd.Flags().Float64Var(&ctxBaseAttack, "base-attack", 0, "Base attack power before relic effects")
	cmd.Flags().StringArrayVar(&ctxConditions, "cond", nil, "Combat condition as key=value (repeatable)")
}

// registerJSONFlag attaches the --json output switch.
func registerJSONFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw JSON result")
}

// combatContextFromFlags builds the evaluation context from the shared flags.
// Unset flags keep the engine defaults (melee, level 1, attack power 100).
func combatContextFromFlags() (*types.CombatContext, error) {
	cctx := types.DefaultContext()
	if ctxStyle != "" {
		cctx.CombatStyle = types.CombatStyle(ctxStyle)
	}
	if ctxWeapon != "" {
		cctx.WeaponType = ctxWeapon
	}
	if ctxLevel > 0 {
		cctx.CharacterLevel = ctxLevel
	}
	if ctxBaseAttack > 0 {
		cctx.BaseStats.AttackPower = ctxBaseAttack
	}
	for _, pair := range ctxConditions {
		key, value, err := parseCondition(pair)
		if err != nil {
			return nil, err
		}
		cctx.SetCondition(key, value)
	}
	return cctx, nil
}

// parseCondition splits a key=value flag into a typed condition entry.
// Booleans and numbers are recognized; everything else stays a string, which
// matches how YAML seeds and JSON payloads type their condition values.
func parseCondition(pair string) (string, any, error) {
	key, raw, found := strings.Cut(pair, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", nil, fmt.Errorf("invalid condition %q: want key=value", pair)
	}
	raw = strings.TrimSpace(raw)

	if b, err := strconv.ParseBool(raw); err == nil {
		return key, b, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return key, f, nil
	}
	return key, raw, nil
}

// splitIDs flattens command arguments into relic ids, accepting both
// space-separated and comma-separated forms.
func splitIDs(args []string) []string {
	var ids []string
	for _, arg := range args {
		for _, id := range strings.Split(arg, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
