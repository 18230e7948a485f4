// Package cmd is the command-line surface: a rootCmd plus one file per
// flag, following the teacher's cmd/root.go shape.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/filer/filer/internal/app"
	"github.com/filer/filer/internal/config"
	"github.com/filer/filer/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:     "filer",
	Short:   "filer - a durable, continuously-updated catalog of file content digests",
	Version: "v0.1.0",
	Long:    "filer - a durable, continuously-updated catalog of file content digests",
	RunE:    runRoot,
}

func init() {
	rootCmd.Flags().Bool("config-paths", false, "print the ordered list of config paths consulted and exit")
	rootCmd.Flags().Bool("show-config", false, "print the effective configuration as JSON and exit")
	rootCmd.Flags().Bool("stats", false, "print a catalog snapshot and exit")
}

// Execute runs the root command, exiting the process with a non-zero
// status on any fatal error.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "filer: %v\n", err)
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	if ok, _ := cmd.Flags().GetBool("config-paths"); ok {
		return runConfigPaths()
	}
	if ok, _ := cmd.Flags().GetBool("show-config"); ok {
		return runShowConfig()
	}
	if ok, _ := cmd.Flags().GetBool("stats"); ok {
		return runStats(cmd.Context())
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New("filer")
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return app.Run(ctx, cfg, log)
}
