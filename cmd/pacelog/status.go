package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pacelog/pacelog/internal/repo"
	"github.com/pacelog/pacelog/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "inspect",
	Short:   "Show what is waiting to sync",
	Long: `Count records per entity and sync status, plus queued icon uploads and
deletions. Soft-deleted records are counted until their deletion is synced.`,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")

		ctx := context.Background()
		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		status, err := a.store.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			a.Close()
			os.Exit(1)
		}

		if err := writeStatus(os.Stdout, format, status); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			a.Close()
			os.Exit(1)
		}
	},
}

func writeStatus(w io.Writer, format string, status *repo.Status) error {
	switch format {
	case "", "table":
		ui.NewRenderer(w).Status(status)
		return nil
	default:
		return writeStructured(w, format, status)
	}
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

func init() {
	statusCmd.Flags().String("format", "table", "Output format: table, json or yaml")
	rootCmd.AddCommand(statusCmd)
}
