// Package cli holds the easy-safe-mode command tree.
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/config"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(logger *slog.Logger) *cobra.Command {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	root := &cobra.Command{
		Use:           "easy-safe-mode",
		Short:         "MCP gateway that sanitizes tool data in safe mode",
		Long:          "easy-safe-mode proxies downstream MCP tools and, when SAFE_MODE is set, rewrites every result into a bounded, array-free, finite form.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringSlice("env-file", nil, "env files to load before reading SAFE_MODE settings (default .env if present)")

	root.AddCommand(
		newServeCmd(logger),
		newSanitizeCmd(),
		newCheckCmd(),
		newVersionCmd(),
	)

	return root
}

// Execute runs the command tree with os.Args.
func Execute(ctx context.Context, logger *slog.Logger) error {
	return NewRootCmd(logger).ExecuteContext(ctx)
}

func loadEnv(cmd *cobra.Command) (config.Env, error) {
	files, _ := cmd.Flags().GetStringSlice("env-file")
	return config.LoadEnv(files...)
}
