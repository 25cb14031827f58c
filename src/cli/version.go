package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/transport"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", transport.ImplementationName, transport.Version)
			return err
		},
	}
}
