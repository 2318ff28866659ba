// Package main implements the relicforge CLI. This file handles terminal
// output: the color theme, the shared table component, and a renderer per
// result shape.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"relicforge/internal/analysis"
	"relicforge/internal/optimizer"
	"relicforge/internal/types"

	"github.com/charmbracelet/lipgloss"
)

// Semantic colors, identical in both themes.
var (
	colorDanger  = lipgloss.Color("#e53935") // Red
	colorSuccess = lipgloss.Color("#8BC34A") // Lime Green
	colorWarning = lipgloss.Color("#FFC107") // Yellow
	colorInfo    = lipgloss.Color("#2196F3") // Blue
)

// theme holds the per-background colors.
type theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Muted      lipgloss.Color
	IsDark     bool
}

func lightTheme() theme {
	return theme{
		Foreground: lipgloss.Color("#101F38"),
		Primary:    lipgloss.Color("#101F38"),
		Muted:      lipgloss.Color("#6b7687"),
		IsDark:     false,
	}
}

func darkTheme() theme {
	return theme{
		Foreground: lipgloss.Color("#f2f2f2"),
		Primary:    lipgloss.Color("#8BC34A"),
		Muted:      lipgloss.Color("#8a93a3"),
		IsDark:     true,
	}
}

// detectTheme picks dark mode from the terminal background or an explicit
// RELICFORGE_DARK_MODE=1, defaulting to light.
func detectTheme() theme {
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		// Format is "foreground;background"; ANSI indexes 0-6 and 8 are
		// dark backgrounds.
		parts := strings.Split(colorTerm, ";")
		if len(parts) == 2 {
			if bgIdx, err := strconv.Atoi(parts[1]); err == nil {
				if (bgIdx >= 0 && bgIdx <= 6) || bgIdx == 8 {
					return darkTheme()
				}
			}
		}
	}
	if os.Getenv("RELICFORGE_DARK_MODE") == "1" {
		return darkTheme()
	}
	return lightTheme()
}

// styles holds the styled components every renderer shares.
type styles struct {
	Theme theme

	Title   lipgloss.Style
	Label   lipgloss.Style
	Body    lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
}

func newStyles(t theme) styles {
	return styles{
		Theme: t,

		Title: lipgloss.NewStyle().
			Foreground(t.Primary).
			Bold(true),

		Label: lipgloss.NewStyle().
			Foreground(t.Muted),

		Body: lipgloss.NewStyle().
			Foreground(t.Foreground),

		Bold: lipgloss.NewStyle().
			Foreground(t.Foreground).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(t.Muted),

		Success: lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(colorDanger).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(colorInfo),
	}
}

// out is the process-wide style set.
var out = newStyles(detectTheme())

// table renders static rows with per-column sizing.
type table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

func (t *table) addRow(row ...string) {
	t.Rows = append(t.Rows, row)
}

func (t *table) render(s styles) string {
	if len(t.Rows) == 0 {
		return ""
	}

	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(s.Title.Render(t.Title))
		sb.WriteString("\n")
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				if w := lipgloss.Width(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}
	for i := range widths {
		widths[i] += 2
	}

	headerStyle := s.Bold.Padding(0, 1)
	rowStyle := s.Body.Padding(0, 1)

	total := len(t.Headers) - 1
	for i, h := range t.Headers {
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
		if i < len(t.Headers)-1 {
			sb.WriteString(s.Muted.Render("|"))
		}
		total += widths[i]
	}
	sb.WriteString("\n")
	sb.WriteString(s.Muted.Render(strings.Repeat("-", total)) + "\n")

	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				sb.WriteString(rowStyle.Width(widths[i]).Render(cell))
				if i < len(row)-1 {
					sb.WriteString(s.Muted.Render("|"))
				}
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// printJSON writes v as indented JSON, the --json output path.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// ratingBadge colors a multiplier tier name.
func ratingBadge(tier string) string {
	label := "[" + tier + "]"
	switch tier {
	case analysis.RatingExceptional, analysis.RatingExcellent:
		return out.Success.Render(label)
	case analysis.RatingGood, analysis.RatingAverage:
		return out.Info.Render(label)
	case analysis.RatingBelowAverage:
		return out.Warning.Render(label)
	case analysis.RatingPoor:
		return out.Error.Render(label)
	}
	return out.Muted.Render(label)
}

// difficultyBadge colors an obtainment difficulty tier name.
func difficultyBadge(tier string) string {
	label := "[" + tier + "]"
	switch tier {
	case analysis.DifficultyEasy:
		return out.Success.Render(label)
	case analysis.DifficultyModerate:
		return out.Info.Render(label)
	case analysis.DifficultyHard:
		return out.Warning.Render(label)
	case analysis.DifficultyVeryHard:
		return out.Error.Render(label)
	}
	return out.Muted.Render(label)
}

// renderComposition prints one composition result. The breakdown table and
// per-effect bonuses only appear when the result carries breakdown steps.
func renderComposition(res *types.CompositionResult) {
	fmt.Println(out.Title.Render("Composition Result"))

	fmt.Printf("  %s %s %s\n",
		out.Label.Render("Total multiplier:"),
		out.Bold.Render(fmt.Sprintf("%.3f", res.TotalMultiplier)),
		ratingBadge(analysis.MultiplierRating(res.TotalMultiplier)))
	fmt.Printf("  %s %.2f (base %.2f)\n",
		out.Label.Render("Final attack power:"),
		res.FinalAttackPower, res.BaseAttackPower)

	engineLine := res.EngineVersion
	if res.CacheHit {
		engineLine += " " + out.Muted.Render("(cache hit)")
	}
	fmt.Printf("  %s %s\n", out.Label.Render("Engine:"), engineLine)

	if dmg := nonZeroDamage(res.DamageByType); len(dmg) > 0 {
		fmt.Printf("  %s %s\n", out.Label.Render("Damage by type:"), strings.Join(dmg, ", "))
	}

	if len(res.ConditionalEffects) > 0 {
		fmt.Println()
		fmt.Println(out.Bold.Render("  Conditional effects"))
		for _, ce := range res.ConditionalEffects {
			line := fmt.Sprintf("    • %s (%s) +%.4g", ce.EffectName, ce.RelicName, ce.Value)
			if len(ce.Conditions) > 0 {
				line += out.Muted.Render(" requires " + strings.Join(ce.Conditions, ", "))
			}
			fmt.Println(line)
		}
	}

	if len(res.Warnings) > 0 {
		fmt.Println()
		for _, w := range res.Warnings {
			fmt.Printf("  %s %s\n", out.Warning.Render("⚠"), w)
		}
	}

	if len(res.Breakdown) > 0 {
		fmt.Println()
		tbl := table{
			Title:   "Breakdown",
			Headers: []string{"STEP", "OPERATION", "DESCRIPTION", "VALUE", "TOTAL"},
		}
		for _, step := range res.Breakdown {
			tbl.addRow(
				strconv.Itoa(step.Step),
				string(step.Operation),
				step.Description,
				fmt.Sprintf("%.4g", step.Value),
				fmt.Sprintf("%.4f", step.RunningTotal),
			)
		}
		fmt.Print(tbl.render(out))

		if len(res.StackingBonuses) > 0 {
			fmt.Println(out.Bold.Render("Stacking bonuses"))
			for _, b := range res.StackingBonuses {
				mark := out.Success.Render("✓")
				if !b.Applied {
					mark = out.Muted.Render("·")
				}
				fmt.Printf("  %s %-14s %-20s %s %.4g %s\n",
					mark, b.Rule, b.EffectType, out.Muted.Render(b.RelicName), b.Value,
					out.Muted.Render(b.Note))
			}
		}
	}
}

func nonZeroDamage(m map[types.DamageType]float64) []string {
	var parts []string
	for _, dt := range types.AllDamageTypes() {
		if v := m[dt]; v != 0 {
			parts = append(parts, fmt.Sprintf("%s %.2f", dt, v))
		}
	}
	return parts
}

// renderValidation prints a passing validation bundle.
func renderValidation(bundle *types.PreprocessBundle) {
	fmt.Printf("%s Selection valid\n", out.Success.Render("✓"))
	sum := bundle.Summary
	fmt.Printf("  %s %d (total difficulty %d, average %.1f)\n",
		out.Label.Render("Relics:"), sum.RelicCount, sum.TotalDifficulty, sum.AverageDifficulty)
	fmt.Printf("  %s %d\n", out.Label.Render("Effects:"), sum.TotalEffects)
	if line := countsLine(sum.ByRarity); line != "" {
		fmt.Printf("  %s %s\n", out.Label.Render("By rarity:"), line)
	}
	for _, w := range bundle.Warnings {
		fmt.Printf("  %s %s\n", out.Warning.Render("⚠"), w)
	}
}

func countsLine(byRarity map[types.Rarity]int) string {
	var parts []string
	for _, r := range []types.Rarity{types.RarityCommon, types.RarityRare, types.RarityEpic, types.RarityLegendary} {
		if n := byRarity[r]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", r, n))
		}
	}
	return strings.Join(parts, ", ")
}

// renderOptimization prints the optimizer's suggestions, best first.
func renderOptimization(res *optimizer.Result) {
	fmt.Printf("%s %s %s\n",
		out.Label.Render("Current build:"),
		out.Bold.Render(fmt.Sprintf("%.3f", res.CurrentMultiplier)),
		ratingBadge(res.CurrentRating))

	meta := res.Metadata
	metaLine := fmt.Sprintf("%d candidates, %d evaluated, %d below threshold, %dms",
		meta.CandidatesGenerated, meta.Evaluated, meta.BelowThreshold, meta.DurationMS)
	if meta.Partial {
		metaLine += " " + out.Warning.Render("(partial: budget expired)")
	} else if meta.EvaluationCapHit {
		metaLine += " " + out.Muted.Render("(evaluation cap hit)")
	}
	fmt.Println(out.Muted.Render("  " + metaLine))

	if len(res.Suggestions) == 0 {
		fmt.Println()
		fmt.Println("No suggestion beats the current build by the configured margin.")
		return
	}

	for i, s := range res.Suggestions {
		fmt.Println()
		fmt.Printf("%s %s %s %s\n",
			out.Title.Render(fmt.Sprintf("%d.", i+1)),
			out.Success.Render(fmt.Sprintf("+%.3f", s.EstimatedImprovement)),
			out.Muted.Render(fmt.Sprintf("confidence %.2f", s.Confidence)),
			out.Muted.Render(fmt.Sprintf("difficulty %d", s.DifficultyRating)))
		fmt.Printf("   %s %s\n", out.Label.Render("Relics:"), strings.Join(s.RelicIDs, ", "))
		fmt.Printf("   %s\n", s.Explanation)
		for _, p := range s.Pros {
			fmt.Printf("   %s %s\n", out.Success.Render("+"), p)
		}
		for _, c := range s.Cons {
			fmt.Printf("   %s %s\n", out.Error.Render("-"), c)
		}
	}
}

// renderAnalysis prints the composed build with its derived ratings,
// synergies and recommendations.
func renderAnalysis(res *analysis.Result) {
	fmt.Println(out.Title.Render("Build Analysis"))
	fmt.Printf("  %s %s %s  %s %s\n",
		out.Label.Render("Multiplier:"),
		out.Bold.Render(fmt.Sprintf("%.3f", res.Composition.TotalMultiplier)),
		ratingBadge(res.Rating.MultiplierTier),
		out.Label.Render("Difficulty:"),
		difficultyBadge(res.Rating.DifficultyTier))
	fmt.Printf("  %s %d relics, %d effects, total difficulty %d\n",
		out.Label.Render("Selection:"),
		res.Summary.RelicCount, res.Summary.TotalEffects, res.Summary.TotalDifficulty)

	if len(res.Synergies) > 0 {
		fmt.Println()
		fmt.Println(out.Bold.Render("  Synergies"))
		for _, g := range res.Synergies {
			fmt.Printf("    %s ×%d %s %s\n",
				out.Info.Render(string(g.EffectType)), g.Count,
				out.Muted.Render(fmt.Sprintf("(score %.1f)", g.Score)),
				strings.Join(g.RelicIDs, ", "))
		}
	}

	if len(res.Recommendations) > 0 {
		fmt.Println()
		fmt.Println(out.Bold.Render("  Recommendations"))
		for _, r := range res.Recommendations {
			fmt.Printf("    • %s %s\n", out.Muted.Render("["+r.Kind+"]"), r.Message)
		}
	}
}

// renderComparison prints the comparison table and category winners.
// Entry indexes display 1-based.
func renderComparison(cmp *analysis.Comparison) {
	tbl := table{
		Title:   "Comparison",
		Headers: []string{"#", "RELICS", "MULTIPLIER", "EFFICIENCY", "DIFFICULTY", ""},
	}
	for _, e := range cmp.Entries {
		note := ""
		mult, eff, diff := fmt.Sprintf("%.3f", e.TotalMultiplier),
			fmt.Sprintf("%.3f", e.Efficiency), strconv.Itoa(e.TotalDifficulty)
		if e.Error != "" {
			note = out.Error.Render("✗ " + e.Error)
			mult, eff, diff = "-", "-", "-"
		}
		tbl.addRow(strconv.Itoa(e.Index+1), strings.Join(e.RelicIDs, ","), mult, eff, diff, note)
	}
	fmt.Print(tbl.render(out))

	w := cmp.Winners
	if w.Overall < 0 {
		fmt.Println(out.Warning.Render("Every combination failed; no winners."))
		return
	}
	fmt.Printf("%s #%d   %s #%d   %s #%d\n",
		out.Label.Render("Best multiplier:"), w.Overall+1,
		out.Label.Render("Most efficient:"), w.MostEfficient+1,
		out.Label.Render("Easiest to build:"), w.EasiestToBuild+1)
	fmt.Printf("%s min %.3f, max %.3f, avg %.3f\n",
		out.Label.Render("Multiplier spread:"),
		cmp.Summary.MinMultiplier, cmp.Summary.MaxMultiplier, cmp.Summary.AvgMultiplier)
}

// renderRelicTable prints a relic catalog listing.
func renderRelicTable(relics []types.Relic) {
	tbl := table{
		Headers: []string{"ID", "NAME", "CATEGORY", "RARITY", "QUALITY", "DIFF", "EFFECTS", ""},
	}
	for i := range relics {
		r := &relics[i]
		state := ""
		if !r.Active {
			state = out.Muted.Render("inactive")
		}
		tbl.addRow(r.ID, r.Name, string(r.Category), string(r.Rarity), string(r.Quality),
			strconv.Itoa(r.ObtainmentDifficulty), strconv.Itoa(len(r.Effects)), state)
	}
	fmt.Print(tbl.render(out))
	fmt.Printf("%s\n", out.Muted.Render(fmt.Sprintf("%d relics", len(relics))))
}

// renderRelic prints one relic with its effects.
func renderRelic(r *types.Relic) {
	fmt.Printf("%s %s\n", out.Title.Render(r.Name), out.Muted.Render("("+r.ID+")"))
	if r.Description != "" {
		fmt.Printf("  %s\n", r.Description)
	}
	fmt.Printf("  %s %s %s, %s quality, difficulty %d\n",
		out.Label.Render("Relic:"), r.Rarity, r.Category, r.Quality, r.ObtainmentDifficulty)
	if !r.Active {
		fmt.Printf("  %s\n", out.Warning.Render("inactive: invisible to the engine"))
	}
	if len(r.Conflicts) > 0 {
		fmt.Printf("  %s %s\n", out.Label.Render("Conflicts with:"), strings.Join(r.Conflicts, ", "))
	}

	if len(r.Effects) > 0 {
		fmt.Println()
		tbl := table{
			Title:   "Effects",
			Headers: []string{"ID", "NAME", "TYPE", "VALUE", "STACKING", "CONDITIONS"},
		}
		for _, e := range r.Effects {
			conds := strconv.Itoa(len(e.Conditions))
			if len(e.Conditions) == 0 {
				conds = "-"
			}
			name := e.Name
			if !e.Active {
				name = out.Muted.Render(name + " (inactive)")
			}
			tbl.addRow(e.ID, name, string(e.Type), fmt.Sprintf("%.4g", e.Value), string(e.Stacking), conds)
		}
		fmt.Print(tbl.render(out))
	}
}

// renderBuildTable prints the saved builds.
func renderBuildTable(builds []types.Build) {
	if len(builds) == 0 {
		fmt.Println("No saved builds.")
		return
	}
	tbl := table{
		Headers: []string{"ID", "NAME", "RELICS", "UPDATED"},
	}
	for i := range builds {
		b := &builds[i]
		tbl.addRow(b.ID, b.Name, strings.Join(b.RelicIDs(), ","), b.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Print(tbl.render(out))
}

// renderBuild prints one saved build with its slots.
func renderBuild(b *types.Build) {
	fmt.Printf("%s %s\n", out.Title.Render(b.Name), out.Muted.Render("("+b.ID+")"))
	if b.Description != "" {
		fmt.Printf("  %s\n", b.Description)
	}
	fmt.Printf("  %s %s   %s %s\n",
		out.Label.Render("Created:"), b.CreatedAt.Format("2006-01-02 15:04"),
		out.Label.Render("Updated:"), b.UpdatedAt.Format("2006-01-02 15:04"))
	for _, s := range b.Slots {
		line := fmt.Sprintf("  %d. %s", s.Position, s.RelicID)
		if len(s.ConditionOverrides) > 0 {
			line += " " + out.Muted.Render(overridesLine(s.ConditionOverrides))
		}
		fmt.Println(line)
	}
}

func overridesLine(overrides map[string]any) string {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, overrides[k]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// renderCacheStats prints a cache backend's population summary.
func renderCacheStats(stats *types.CacheStats, backend string) {
	fmt.Println(out.Title.Render("Cache Statistics"))
	fmt.Printf("  %s %s\n", out.Label.Render("Backend:"), backend)
	fmt.Printf("  %s %d\n", out.Label.Render("Entries:"), stats.Entries)
	fmt.Printf("  %s %d (%.2f per entry)\n", out.Label.Render("Hits:"), stats.TotalHits, stats.AverageHits)
	if stats.SizeBytes > 0 {
		fmt.Printf("  %s %d bytes\n", out.Label.Render("Approx size:"), stats.SizeBytes)
	}
	if len(stats.TopEntries) > 0 {
		fmt.Println()
		tbl := table{
			Title:   "Hottest entries",
			Headers: []string{"HITS", "RELICS", "KEY"},
		}
		for _, e := range stats.TopEntries {
			key := e.Key
			if len(key) > 16 {
				key = key[:16] + "…"
			}
			tbl.addRow(strconv.FormatInt(e.HitCount, 10), strings.Join(e.RelicIDs, ","), key)
		}
		fmt.Print(tbl.render(out))
	}
}
