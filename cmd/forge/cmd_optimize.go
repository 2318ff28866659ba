// Package main implements the relicforge CLI. This file handles the optimize
// command.
package main

import (
	"relicforge/internal/optimizer"
	"relicforge/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	optimizeMaxDifficulty int
	optimizeCategories    []string
	optimizeExclude       []string
	optimizeHighRarity    bool
	optimizeLowDifficulty bool
	optimizeMinGain       float64
	optimizeAllowPartial  bool
)

// optimizeCmd suggests better relic combinations
var optimizeCmd = &cobra.Command{
	Use:   "optimize [relic-id...]",
	Short: "Suggest relic combinations that beat the current build",
	Long: `Generates candidate builds around the current selection and keeps the
ones that raise the total multiplier by at least the configured margin.

Candidates come from four strategies: swapping one relic, adding relics,
pairing relics whose effects reinforce each other, and the configured meta
builds for the combat style. Pass the current build as arguments; an empty
current build optimizes from the 1.0 baseline.

Examples:
  forge optimize giants_ring --style melee
  forge optimize --style magic --max-difficulty 6 --prefer-low-difficulty
  forge optimize giants_ring moon_pendant --exclude cursed_band --allow-partial`,
	RunE: runOptimize,
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cctx, err := combatContextFromFlags()
	if err != nil {
		return err
	}

	categories := make([]types.RelicCategory, 0, len(optimizeCategories))
	for _, c := range optimizeCategories {
		categories = append(categories, types.RelicCategory(c))
	}

	req := optimizer.Request{
		CurrentIDs:  splitIDs(args),
		CombatStyle: types.CombatStyle(ctxStyle),
		Constraints: optimizer.Constraints{
			MaxDifficulty:     optimizeMaxDifficulty,
			AllowedCategories: categories,
			ExcludeRelicIDs:   splitIDs(optimizeExclude),
		},
		Preferences: optimizer.Preferences{
			PreferHighRarity:    optimizeHighRarity,
			PreferLowDifficulty: optimizeLowDifficulty,
			MinImprovement:      optimizeMinGain,
		},
		Context:      cctx,
		AllowPartial: optimizeAllowPartial,
	}

	logger.Debug("Optimizing build",
		zap.Strings("current", req.CurrentIDs),
		zap.String("style", string(req.CombatStyle)))

	res, err := a.optimizer.Optimize(ctx, req)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	renderOptimization(res)
	return nil
}

func init() {
	optimizeCmd.Flags().IntVar(&optimizeMaxDifficulty, "max-difficulty", 0, "Reject candidate relics above this obtainment difficulty")
	optimizeCmd.Flags().StringSliceVar(&optimizeCategories, "categories", nil, "Restrict candidates to these relic categories")
	optimizeCmd.Flags().StringSliceVar(&optimizeExclude, "exclude", nil, "Relic ids to never suggest")
	optimizeCmd.Flags().BoolVar(&optimizeHighRarity, "prefer-high-rarity", false, "Break ties toward rarer relics")
	optimizeCmd.Flags().BoolVar(&optimizeLowDifficulty, "prefer-low-difficulty", false, "Break ties toward easier relics")
	optimizeCmd.Flags().Float64Var(&optimizeMinGain, "min-improvement", 0, "Override the minimum multiplier improvement")
	optimizeCmd.Flags().BoolVar(&optimizeAllowPartial, "allow-partial", false, "Return evaluated suggestions when the budget expires")
	registerContextFlags(optimizeCmd)
	registerJSONFlag(optimizeCmd)

	rootCmd.AddCommand(optimizeCmd)
}
