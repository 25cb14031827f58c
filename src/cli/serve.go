package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/config"
	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/gateway"
)

func newServeCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config]",
		Short: "Run the gateway",
		Long:  "Load the gateway config (JSON or YAML, default config.json), connect downstream servers and serve their tools until interrupted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := "config.json"
			if len(args) > 0 {
				cfgPath = args[0]
			}

			env, err := loadEnv(cmd)
			if err != nil {
				return fmt.Errorf("env: %w", err)
			}

			cfg, err := config.Load(cfgPath, env)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			if err := gateway.New(cfg, logger).Run(cmd.Context()); err != nil {
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		},
	}
}
