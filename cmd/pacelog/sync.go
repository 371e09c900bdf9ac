package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pacelog/pacelog/internal/remote"
	pacesync "github.com/pacelog/pacelog/internal/sync"
	"github.com/pacelog/pacelog/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push pending records to the server",
	Long: `Run one sync cycle for every record family, in this order:

  activities     activities + activity kinds  (/users/activities/sync)
  goals          goals                        (/users/goals/sync)
  tasks          tasks                        (/users/tasks/sync)
  activityLogs   activity logs                (/users/activity-logs/sync)

A family that fails does not stop the others. Use --family to run only some.`,
	Run: func(cmd *cobra.Command, args []string) {
		families, _ := cmd.Flags().GetStringSlice("family")
		withIcons, _ := cmd.Flags().GetBool("icons")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		var reports []*pacesync.Report
		if len(families) == 0 {
			reports, err = a.driver.SyncAll(ctx)
		} else {
			var errs []error
			for _, name := range families {
				report, runErr := a.driver.Run(ctx, name)
				if report != nil {
					reports = append(reports, report)
				}
				errs = append(errs, runErr)
			}
			err = errors.Join(errs...)
		}

		r := ui.NewRenderer(os.Stdout)
		r.SyncReports(reports)

		if withIcons && ctx.Err() == nil {
			iconReports, iconErr := a.icons.Run(ctx)
			r.IconReports(iconReports)
			err = errors.Join(err, iconErr)
		}

		if err != nil {
			if errors.Is(err, remote.ErrUnauthorized) {
				fmt.Fprintf(os.Stderr, "Error: server rejected the token; run 'pacelog config init' to update it\n")
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			a.Close()
			os.Exit(1)
		}
	},
}

var iconsCmd = &cobra.Command{
	Use:     "icons",
	GroupID: "sync",
	Short:   "Upload queued activity icons and send icon deletions",
	Long: `Drain the icon queues.

Uploads wait until the owning activity is synced. Icons of activities that
were deleted locally are discarded. A failed upload or deletion stays queued
for the next run.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		reports, err := a.icons.Run(ctx)
		ui.NewRenderer(os.Stdout).IconReports(reports)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			a.Close()
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().StringSliceP("family", "f", nil, "Families to sync (activities, goals, tasks, activityLogs)")
	syncCmd.Flags().Bool("icons", false, "Also drain the icon queues")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(iconsCmd)
}
