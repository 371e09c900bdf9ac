package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/pacelog/pacelog/internal/goal"
	"github.com/pacelog/pacelog/internal/schema"
	"github.com/pacelog/pacelog/internal/ui"
)

var goalCmd = &cobra.Command{
	Use:     "goal",
	GroupID: "inspect",
	Short:   "Goal accounting from local activity logs",
	Long: `Compute goal progress from the activity logs stored locally.

"Today" defaults to the current local date. --today accepts a date
(2026-01-15) or a phrase such as "yesterday" or "last friday".`,
}

var goalBalanceCmd = &cobra.Command{
	Use:   "balance <goal-id>",
	Short: "Show logged quantity against the daily target",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runGoal(cmd, args[0], func(r *ui.Renderer, s goal.Summary) { r.Balance(s.Balance) },
			func(s goal.Summary) any { return s.Balance })
	},
}

var goalStatsCmd = &cobra.Command{
	Use:   "stats <goal-id>",
	Short: "Show active days, averages and the longest streak",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runGoal(cmd, args[0], func(r *ui.Renderer, s goal.Summary) { r.Stats(s.Stats) },
			func(s goal.Summary) any { return s.Stats })
	},
}

var goalInactiveCmd = &cobra.Command{
	Use:   "inactive <goal-id>",
	Short: "List days without any logged quantity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runGoal(cmd, args[0], func(r *ui.Renderer, s goal.Summary) { r.InactiveDates(s.InactiveDates) },
			func(s goal.Summary) any { return s.InactiveDates })
	},
}

// runGoal loads the goal and its activity's logs, summarizes them and
// prints either the rendered view or the structured value.
func runGoal(cmd *cobra.Command, goalID string, render func(*ui.Renderer, goal.Summary), value func(goal.Summary) any) {
	todayFlag, _ := cmd.Flags().GetString("today")
	format, _ := cmd.Flags().GetString("format")

	today, err := parseDay(todayFlag, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	summary, err := summarizeGoal(ctx, a, goalID, today)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.Close()
		os.Exit(1)
	}

	if format == "" || format == "table" {
		render(ui.NewRenderer(os.Stdout), summary)
		return
	}
	if err := writeStructured(os.Stdout, format, value(summary)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.Close()
		os.Exit(1)
	}
}

func summarizeGoal(ctx context.Context, a *app, goalID, today string) (goal.Summary, error) {
	g, err := a.store.Goals.Get(ctx, goalID)
	if err != nil {
		return goal.Summary{}, fmt.Errorf("goal %s: %w", goalID, err)
	}
	rows, err := a.store.ActivityLogs.GetByActivity(ctx, g.Record.ActivityID)
	if err != nil {
		return goal.Summary{}, fmt.Errorf("failed to load activity logs: %w", err)
	}
	return goal.Summarize(g.Record, schema.Payloads(rows), today)
}

// parseDay resolves a --today value to YYYY-MM-DD. Empty means now.
func parseDay(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return goal.Today(now), nil
	}
	if t, err := time.ParseInLocation(schema.DateLayout, s, now.Location()); err == nil {
		return goal.Today(t), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, now)
	if err != nil {
		return "", fmt.Errorf("cannot parse date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("cannot parse date %q", s)
	}
	return goal.Today(r.Time), nil
}

func init() {
	for _, c := range []*cobra.Command{goalBalanceCmd, goalStatsCmd, goalInactiveCmd} {
		c.Flags().String("today", "", "Date to treat as today (YYYY-MM-DD or a phrase like \"yesterday\")")
		c.Flags().String("format", "table", "Output format: table, json or yaml")
		goalCmd.AddCommand(c)
	}
	rootCmd.AddCommand(goalCmd)
}
