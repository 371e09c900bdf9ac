package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pacelog/pacelog/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Serve sync status over WebSocket",
	Long: `Start the dashboard server without running sync.

Connected clients get a stats message on connect and every --refresh
interval. When the daemon runs with --dashboard it also sends:
- sync_complete: a family cycle sent all its chunks
- sync_aborted: a cycle stopped after a transport error
- records_failed: records the server skipped in a cycle
- icons_synced: an icon upload or delete run finished

Endpoints:
  ws://localhost:8090/ws
  http://localhost:8090/health
  http://localhost:8090/metrics   (Prometheus)`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		refresh, _ := cmd.Flags().GetDuration("refresh")
		if !cmd.Flags().Changed("port") {
			port = cfg.Dashboard.Port
		}
		if refresh <= 0 {
			fmt.Fprintf(os.Stderr, "Error: --refresh must be positive\n")
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Status: a.store,
			Logger: logger,
		})
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			a.Close()
			os.Exit(1)
		}
		handler := dashboard.NewHandler(server, logger)

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ticker := time.NewTicker(refresh)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				handler.BroadcastStats(ctx)
			}
		}

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			a.Close()
			os.Exit(1)
		}
		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8090, "Port to listen on (default from dashboard.port)")
	dashboardCmd.Flags().Duration("refresh", 10*time.Second, "How often to broadcast stats")
	rootCmd.AddCommand(dashboardCmd)
}
