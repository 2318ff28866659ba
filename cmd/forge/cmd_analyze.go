// Package main implements the relicforge CLI. This file handles the analyze
// and compare commands.
package main

import (
	"github.com/spf13/cobra"
)

// analyzeCmd composes a selection and derives ratings and advice
var analyzeCmd = &cobra.Command{
	Use:   "analyze <relic-id>...",
	Short: "Analyze a build: rating tiers, synergies, recommendations",
	Long: `Composes the selection with a full breakdown, then derives the
multiplier and difficulty rating tiers, effect synergy groups, and build
recommendations.

Example:
  forge analyze giants_ring berserkers_seal --style melee --cond health_percentage=25`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

// compareCmd ranks alternative builds against each other
var compareCmd = &cobra.Command{
	Use:   "compare <relic-ids>...",
	Short: "Compare 2 to 10 builds under one combat context",
	Long: `Evaluates each combination under the same context and ranks them by
multiplier, efficiency (multiplier per relic), and obtainment difficulty.
Each argument is one combination: a comma-separated relic id list.

A combination that fails validation keeps its row, carries the error, and
never wins a category.

Example:
  forge compare giants_ring,berserkers_seal moon_pendant,archmage_focus --style magic`,
	Args: cobra.RangeArgs(2, 10),
	RunE: runCompare,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
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

	res, err := a.analyzer.Analyze(ctx, splitIDs(args), cctx)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	renderAnalysis(res)
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
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

	combos := make([][]string, 0, len(args))
	for _, arg := range args {
		combos = append(combos, splitIDs([]string{arg}))
	}

	res, err := a.analyzer.Compare(ctx, combos, cctx)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	renderComparison(res)
	return nil
}

func init() {
	registerContextFlags(analyzeCmd)
	registerJSONFlag(analyzeCmd)
	registerContextFlags(compareCmd)
	registerJSONFlag(compareCmd)

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(compareCmd)
}
