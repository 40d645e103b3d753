package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler tick",
		Long: `Validates the next slice of URLs exactly as the background scheduler
would, advancing the persisted cursor. Useful for driving the incremental
scan from an external cron.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Scheduler.Tick(cmd.Context()); err != nil {
				return fmt.Errorf("scheduler tick: %w", err)
			}
			return nil
		},
	}
}
