package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNonceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-nonce",
		Short: "Print a fresh validate request token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if appInstance.Nonce == nil {
				return fmt.Errorf("nonce.secret is not configured")
			}
			fmt.Fprintln(cmd.OutOrStdout(), appInstance.Nonce.Generate())
			return nil
		},
	}
}
