// Package main implements the relicforge CLI. This file handles the compose
// and validate commands.
package main

import (
	"relicforge/internal/engine"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	composeBreakdown bool
	composeForce     bool
	composeNoCache   bool
)

// composeCmd computes the damage multiplier for a relic selection
var composeCmd = &cobra.Command{
	Use:   "compose <relic-id>...",
	Short: "Compose a relic selection into its damage multiplier",
	Long: `Composes up to nine relics under a combat context.

Effects apply in the fixed group order additive, multiplicative, overwrite,
unique. The result is memoized: repeating the same selection and context
serves the cached answer unless --force or --no-cache says otherwise.

Examples:
  forge compose giants_ring berserkers_seal
  forge compose giants_ring,moon_pendant --style magic --cond enemy_type=elite
  forge compose giants_ring --breakdown`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompose,
}

// validateCmd checks a relic selection without composing it
var validateCmd = &cobra.Command{
	Use:   "validate <relic-id>...",
	Short: "Validate a relic selection without composing it",
	Long: `Runs the full validation pipeline: selection shape, existence,
active state, structural checks, conflicts, and context compatibility.

With --strict, advisory compatibility findings (combat style or weapon
mismatches) fail the selection instead of surfacing as warnings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

var validateStrict bool

func runCompose(cmd *cobra.Command, args []string) error {
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

	ids := splitIDs(args)
	logger.Debug("Composing selection", zap.Strings("relics", ids))

	res, err := a.engine.Compose(ctx, ids, cctx, engine.Options{
		IncludeBreakdown: composeBreakdown,
		ForceRecalculate: composeForce,
		SkipCache:        composeNoCache,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	renderComposition(res)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
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

	bundle, err := a.validator.Validate(ctx, splitIDs(args), cctx, validateStrict)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(bundle)
	}
	renderValidation(bundle)
	return nil
}

func init() {
	composeCmd.Flags().BoolVar(&composeBreakdown, "breakdown", false, "Include the step-by-step audit trail")
	composeCmd.Flags().BoolVar(&composeForce, "force", false, "Recompute even on a cache hit (result is re-stored)")
	composeCmd.Flags().BoolVar(&composeNoCache, "no-cache", false, "Bypass the cache entirely")
	registerContextFlags(composeCmd)
	registerJSONFlag(composeCmd)

	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Fail on compatibility warnings")
	registerContextFlags(validateCmd)
	registerJSONFlag(validateCmd)

	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(validateCmd)
}
