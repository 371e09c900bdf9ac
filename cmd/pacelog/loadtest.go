package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pacelog/pacelog/internal/db"
	"github.com/pacelog/pacelog/internal/loadtest"
	"github.com/pacelog/pacelog/internal/remote"
	"github.com/pacelog/pacelog/internal/repo"
	"github.com/pacelog/pacelog/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Measure batch sync against a local fake server",
	Long: `Seed a throwaway database with pending records and sync it against an
in-process fake server, reporting per-chunk latency.

Your own database and server are never touched. Chunk caps come from the
config, so this shows how a given chunk configuration behaves.

Example:
  pacelog loadtest --activities 500 --logs 40 --latency 20ms --concurrent`,
	Run: func(cmd *cobra.Command, args []string) {
		plan := loadtest.DefaultPlan()
		plan.Activities, _ = cmd.Flags().GetInt("activities")
		plan.LogsPerActivity, _ = cmd.Flags().GetInt("logs")
		plan.Tasks, _ = cmd.Flags().GetInt("tasks")
		latency, _ := cmd.Flags().GetDuration("latency")
		skipEvery, _ := cmd.Flags().GetInt("skip-every")
		concurrent, _ := cmd.Flags().GetBool("concurrent")

		dir, err := os.MkdirTemp("", "pacelog-loadtest-")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(dir)

		database, err := db.Open(filepath.Join(dir, "loadtest.db"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := database.InitSchema(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		store := repo.New(database)

		fmt.Printf("Seeding %d records...\n", plan.Total())
		start := time.Now()
		if err := loadtest.Seed(ctx, store, plan); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded in %v\n\n", time.Since(start).Round(time.Millisecond))

		server := loadtest.NewServer(loadtest.ServerOptions{Latency: latency, SkipEvery: skipEvery})
		defer server.Close()

		result, err := loadtest.Run(ctx, store, remote.NewClient(nil, server.URL, "", logger), chunkSizes(cfg), concurrent, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ui.NewRenderer(os.Stdout).SyncReports(result.Reports)
		fmt.Println()
		result.Latency.Print(os.Stdout)
		fmt.Printf("\nSynced %d, failed %d in %v\n", result.Synced(), result.Failed(), result.Elapsed.Round(time.Millisecond))
	},
}

func init() {
	loadtestCmd.Flags().Int("activities", 150, "Activities to seed")
	loadtestCmd.Flags().Int("logs", 20, "Activity logs per activity")
	loadtestCmd.Flags().Int("tasks", 250, "Tasks to seed")
	loadtestCmd.Flags().Duration("latency", 0, "Latency added to every server response")
	loadtestCmd.Flags().Int("skip-every", 0, "Have the server skip every n-th record")
	loadtestCmd.Flags().Bool("concurrent", false, "Run all families at once")
	rootCmd.AddCommand(loadtestCmd)
}
