// Package main implements the relicforge CLI. This file handles cache
// maintenance commands.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cacheTopN    int
	cacheMaxSize int
)

// cacheCmd groups the result cache commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the composition result cache",
}

// cacheStatsCmd prints cache population statistics
var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics and hottest entries",
	RunE:  runCacheStats,
}

// cacheCleanupCmd removes expired entries
var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired cache entries",
	Long: `Removes entries past their TTL. Expired entries are already invisible
to lookups; cleanup reclaims their space.`,
	RunE: runCacheCleanup,
}

// cacheTrimCmd evicts entries down to a size cap
var cacheTrimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Evict least-hit entries down to the size cap",
	RunE:  runCacheTrim,
}

// cacheClearCmd deletes every entry
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache entry",
	RunE:  runCacheClear,
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.cache.Stats(ctx, cacheTopN)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(stats)
	}
	renderCacheStats(stats, a.cfg.Cache.Backend)
	return nil
}

func runCacheCleanup(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.cache.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s Removed %d expired entries\n", out.Success.Render("✓"), n)
	return nil
}

func runCacheTrim(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	max := cacheMaxSize
	if max <= 0 {
		max = a.cfg.Cache.MaxEntries
	}

	n, err := a.cache.TrimToSize(ctx, max)
	if err != nil {
		return err
	}
	fmt.Printf("%s Evicted %d entries (cap %d)\n", out.Success.Render("✓"), n, max)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx, cancel := newRunContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cache.DeleteAll(ctx); err != nil {
		return err
	}
	fmt.Printf("%s Cache cleared\n", out.Success.Render("✓"))
	return nil
}

func init() {
	cacheStatsCmd.Flags().IntVar(&cacheTopN, "top", 5, "Number of hottest entries to show")
	cacheTrimCmd.Flags().IntVar(&cacheMaxSize, "max", 0, "Entry cap (default: cache.max_entries from config)")
	registerJSONFlag(cacheStatsCmd)

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	cacheCmd.AddCommand(cacheTrimCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
