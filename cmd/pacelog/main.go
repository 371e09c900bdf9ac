package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pacelog/pacelog/internal/config"
	"github.com/pacelog/pacelog/internal/logging"
)

var (
	configFile string
	logLevel   string
	verbose    bool

	cfg        *config.Config
	logger     *zap.SugaredLogger
	closeLogFn func() error
)

var rootCmd = &cobra.Command{
	Use:   "pacelog",
	Short: "Offline-first activity, goal and task tracker sync client",
	Long: `pacelog keeps a local store of activities, goals, tasks and activity logs
and syncs it with the pacelog server.

Local edits are recorded immediately and pushed in chunked batches; when the
server holds a newer version of a record, the server's copy wins.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// config init must work before a valid config exists.
		if cmd.Annotations["skipConfig"] == "true" {
			return nil
		}
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loaded

		opts := logging.DefaultOptions()
		opts.Level = cfg.Log.Level
		opts.File = cfg.Log.File
		if logLevel != "" {
			opts.Level = logLevel
		}
		if verbose {
			opts.Level = "debug"
		}
		logger, closeLogFn, err = logging.New(opts)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogFn != nil {
			_ = closeLogFn()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ~/.pacelog/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
