package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pacelog/pacelog/internal/daemon"
	"github.com/pacelog/pacelog/internal/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run sync in the background until interrupted",
	Long: `Run the sync daemon.

The daemon syncs everything once at startup, then:
  - syncs all record families every sync_interval
  - drains the icon queues every icon_sync_interval
  - syncs records shortly after the local database changes

With --dashboard, sync progress is also served over WebSocket on
dashboard.port (see 'pacelog dashboard --help').`,
	Run: func(cmd *cobra.Command, args []string) {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		if withDashboard {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Status: a.store,
				Logger: logger,
			})
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				a.Close()
				os.Exit(1)
			}
			defer server.Stop()

			handler := dashboard.NewHandler(server, logger)
			a.driver.AddObserver(handler)
			a.icons.AddObserver(handler)
			fmt.Printf("Dashboard: http://localhost:%d (ws://localhost:%d/ws)\n", cfg.Dashboard.Port, cfg.Dashboard.Port)
		}

		d, err := daemon.New(a.driver, a.icons, cfg.DBPath, &daemon.Config{
			SyncInterval:     cfg.SyncInterval,
			IconSyncInterval: cfg.IconSyncInterval,
			DebounceInterval: cfg.DebounceInterval,
			Logger:           logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			a.Close()
			os.Exit(1)
		}

		fmt.Printf("Syncing %s with %s\n", cfg.DBPath, cfg.ServerURL)
		fmt.Println("Press Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			a.Close()
			os.Exit(1)
		}
		fmt.Println("\nDaemon stopped")
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Serve the WebSocket dashboard while running")
	rootCmd.AddCommand(daemonCmd)
}
