// Package main implements the relicforge CLI. This file handles relic
// catalog commands: listing, inspection, and seed import.
package main

import (
	"fmt"

	"relicforge/internal/store"
	"relicforge/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	relicsCategory      string
	relicsRarity        string
	relicsMaxDifficulty int
	relicsName          string
	relicsAll           bool
)

// relicsCmd groups the catalog commands
var relicsCmd = &cobra.Command{
	Use:   "relics",
	Short: "Browse and manage the relic catalog",
}

// relicsListCmd lists catalog relics with optional filters
var relicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List relics in the catalog",
	Long: `Lists catalog relics. Inactive relics are hidden unless --all is set;
the remaining flags narrow the listing.

Examples:
  forge relics list
  forge relics list --category attack --rarity legendary
  forge relics list --max-difficulty 5 --name ring`,
	RunE: runRelicsList,
}

// relicsShowCmd prints one relic with its effects
var relicsShowCmd = &cobra.Command{
	Use:   "show <relic-id>",
	Short: "Show one relic and its effects",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelicsShow,
}

// relicsSeedCmd imports a YAML catalog into the database
var relicsSeedCmd = &cobra.Command{
	Use:   "seed <path>",
	Short: "Import a YAML relic catalog into the database",
	Long: `Upserts every relic from the YAML catalog at path into the database.
Existing relics with matching ids are replaced. Requires a configured
database; the in-memory catalog cannot persist imports.`,
	Args: cobra.ExactArgs(1),
	RunE: runRelicsSeed,
}

func runRelicsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := types.RelicFilter{
		MaxDifficulty: relicsMaxDifficulty,
		NameSubstring: relicsName,
	}
	if !relicsAll {
		active := true
		filter.Active = &active
	}
	if relicsCategory != "" {
		filter.Categories = []types.RelicCategory{types.RelicCategory(relicsCategory)}
	}
	if relicsRarity != "" {
		filter.Rarities = []types.Rarity{types.Rarity(relicsRarity)}
	}

	relics, err := a.repo.ListRelics(ctx, filter)
	if err != nil {
		return err
	}
	if len(relics) == 0 {
		fmt.Println("No relics match the filter.")
		return nil
	}

	if jsonOut {
		return printJSON(relics)
	}
	renderRelicTable(relics)
	return nil
}

func runRelicsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.repo.GetRelic(ctx, args[0])
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("relic %s not found", args[0])
	}

	if jsonOut {
		return printJSON(r)
	}
	renderRelic(r)
	return nil
}

func runRelicsSeed(cmd *cobra.Command, args []string) error {
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

	n, err := store.ImportSeed(ctx, st, args[0])
	if err != nil {
		return err
	}
	logger.Info("Seed import complete", zap.String("path", args[0]), zap.Int("relics", n))
	fmt.Printf("%s Imported %d relics from %s\n", out.Success.Render("✓"), n, args[0])
	return nil
}

func init() {
	relicsListCmd.Flags().StringVar(&relicsCategory, "category", "", "Filter by category (attack, defense, utility, critical, elemental)")
	relicsListCmd.Flags().StringVar(&relicsRarity, "rarity", "", "Filter by rarity (common, rare, epic, legendary)")
	relicsListCmd.Flags().IntVar(&relicsMaxDifficulty, "max-difficulty", 0, "Hide relics above this obtainment difficulty")
	relicsListCmd.Flags().StringVar(&relicsName, "name", "", "Filter by name substring")
	relicsListCmd.Flags().BoolVar(&relicsAll, "all", false, "Include inactive relics")
	registerJSONFlag(relicsListCmd)
	registerJSONFlag(relicsShowCmd)

	relicsCmd.AddCommand(relicsListCmd)
	relicsCmd.AddCommand(relicsShowCmd)
	relicsCmd.AddCommand(relicsSeedCmd)
	rootCmd.AddCommand(relicsCmd)
}
