// Package cli implements the colmap command-line interface using Cobra.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/colmap/internal/logging"
)

// NewRootCmd creates the colmap root command with every sub-command
// attached.
func NewRootCmd() *cobra.Command {
	var logLevel, logFormat string

	rootCmd := &cobra.Command{
		Use:   "colmap",
		Short: "Map, transform and validate CSV columns against a schema file",
		Long: `colmap reshapes a data file into the columns of a schema file.

A mapping file (JSON or YAML, as exported by the colmap server) says which
data column fills each schema column, how to transform it and which rules
its values must pass.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), logLevel, logFormat))
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envOr("LOG_FORMAT", "text"), "Log format: text or json")

	rootCmd.AddCommand(
		newDetectCmd(),
		newPreviewCmd(),
		newProcessCmd(),
		newValidateCmd(),
	)

	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
