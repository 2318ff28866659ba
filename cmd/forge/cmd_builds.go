// Package main implements the relicforge CLI. This file handles saved build
// commands: listing, creation, slot edits, and evaluation.
package main

import (
	"fmt"

	"relicforge/internal/engine"
	"relicforge/internal/types"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	buildsDescription string
	buildsRelics      []string
	buildsOverrides   []string
	buildsBreakdown   bool
)

// buildsCmd groups the saved build commands
var buildsCmd = &cobra.Command{
	Use:   "builds",
	Short: "Manage saved relic builds",
	Long: `Saved builds are named, ordered relic selections of up to nine slots.
Each slot can carry condition overrides that are layered onto the combat
context when the build is evaluated.`,
}

// buildsListCmd lists saved builds
var buildsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved builds",
	RunE:  runBuildsList,
}

// buildsShowCmd prints one build with its slots
var buildsShowCmd = &cobra.Command{
	Use:   "show <build-id>",
	Short: "Show one saved build",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuildsShow,
}

// buildsCreateCmd saves a new build
var buildsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a saved build",
	Long: `Creates a build with the given name. --relics seeds the initial slots
in order; more can be added later with 'builds add'.

Example:
  forge builds create "Boss killer" --relics giants_ring,berserkers_seal --desc "melee burst"`,
	Args: cobra.ExactArgs(1),
	RunE: runBuildsCreate,
}

// buildsDeleteCmd removes a saved build
var buildsDeleteCmd = &cobra.Command{
	Use:   "delete <build-id>",
	Short: "Delete a saved build",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuildsDelete,
}

// buildsAddCmd appends a relic slot to a build
var buildsAddCmd = &cobra.Command{
	Use:   "add <build-id> <relic-id>",
	Short: "Add a relic to a saved build",
	Long: `Appends the relic to the build's next free slot. --cond attaches
condition overrides to the slot, applied whenever the build is evaluated.

Example:
  forge builds add 4f1f... executioners_mark --cond enemy_type=elite`,
	Args: cobra.ExactArgs(2),
	RunE: runBuildsAdd,
}

// buildsRemoveCmd removes a relic slot from a build
var buildsRemoveCmd = &cobra.Command{
	Use:   "remove <build-id> <relic-id>",
	Short: "Remove a relic from a saved build",
	Args:  cobra.ExactArgs(2),
	RunE:  runBuildsRemove,
}

// buildsEvalCmd composes a saved build
var buildsEvalCmd = &cobra.Command{
	Use:   "eval <build-id>",
	Short: "Compose a saved build under a combat context",
	Long: `Composes the build's relics. Slot condition overrides are merged into
the combat context first, later slots winning, so a saved build always
evaluates the way it was configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuildsEval,
}

func runBuildsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.requireStore()
	if err != nil {
		return err
	}

	builds, err := st.ListBuilds(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(builds)
	}
	renderBuildTable(builds)
	return nil
}

func runBuildsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.requireStore()
	if err != nil {
		return err
	}

	b, err := st.GetBuild(ctx, args[0])
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("build %s not found", args[0])
	}
	if jsonOut {
		return printJSON(b)
	}
	renderBuild(b)
	return nil
}

func runBuildsCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.requireStore()
	if err != nil {
		return err
	}

	b := &types.Build{
		ID:          uuid.NewString(),
		Name:        args[0],
		Description: buildsDescription,
	}
	for i, id := range splitIDs(buildsRelics) {
		b.Slots = append(b.Slots, types.BuildSlot{Position: i, RelicID: id})
	}

	if err := st.CreateBuild(ctx, b); err != nil {
		return err
	}
	logger.Info("Build created", zap.String("id", b.ID), zap.String("name", b.Name))
	fmt.Printf("%s Created build %s (%s) with %d relics\n",
		out.Success.Render("✓"), b.Name, b.ID, len(b.Slots))
	return nil
}

func runBuildsDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.requireStore()
	if err != nil {
		return err
	}

	if err := st.DeleteBuild(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("%s Deleted build %s\n", out.Success.Render("✓"), args[0])
	return nil
}

func runBuildsAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.requireStore()
	if err != nil {
		return err
	}

	var overrides map[string]any
	for _, pair := range buildsOverrides {
		key, value, err := parseCondition(pair)
		if err != nil {
			return err
		}
		if overrides == nil {
			overrides = make(map[string]any)
		}
		overrides[key] = value
	}

	b, err := st.AddRelicToBuild(ctx, args[0], args[1], overrides)
	if err != nil {
		return err
	}
	fmt.Printf("%s Added %s to %s (%d relics)\n",
		out.Success.Render("✓"), args[1], b.Name, len(b.Slots))
	return nil
}

func runBuildsRemove(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.requireStore()
	if err != nil {
		return err
	}

	b, err := st.RemoveRelicFromBuild(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("%s Removed %s from %s (%d relics)\n",
		out.Success.Render("✓"), args[1], b.Name, len(b.Slots))
	return nil
}

func runBuildsEval(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.requireStore()
	if err != nil {
		return err
	}

	b, err := st.GetBuild(ctx, args[0])
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("build %s not found", args[0])
	}

	base, err := combatContextFromFlags()
	if err != nil {
		return err
	}
	merged := b.MergedContext(base)

	res, err := a.engine.Compose(ctx, b.RelicIDs(), merged, engine.Options{
		IncludeBreakdown: buildsBreakdown,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	fmt.Printf("%s %s\n", out.Label.Render("Build:"), out.Bold.Render(b.Name))
	renderComposition(res)
	return nil
}

func init() {
	buildsCreateCmd.Flags().StringVar(&buildsDescription, "desc", "", "Build description")
	buildsCreateCmd.Flags().StringSliceVar(&buildsRelics, "relics", nil, "Initial relic ids, in slot order")

	buildsAddCmd.Flags().StringArrayVar(&buildsOverrides, "cond", nil, "Slot condition override as key=value (repeatable)")

	buildsEvalCmd.Flags().BoolVar(&buildsBreakdown, "breakdown", false, "Include the step-by-step audit trail")
	registerContextFlags(buildsEvalCmd)
	registerJSONFlag(buildsEvalCmd)
	registerJSONFlag(buildsListCmd)
	registerJSONFlag(buildsShowCmd)

	buildsCmd.AddCommand(buildsListCmd)
	buildsCmd.AddCommand(buildsShowCmd)
	buildsCmd.AddCommand(buildsCreateCmd)
	buildsCmd.AddCommand(buildsDeleteCmd)
	buildsCmd.AddCommand(buildsAddCmd)
	buildsCmd.AddCommand(buildsRemoveCmd)
	buildsCmd.AddCommand(buildsEvalCmd)
	rootCmd.AddCommand(buildsCmd)
}
