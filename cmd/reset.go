package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/scan"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all stored validation data",
		Long: `Removes every stored validation report, every error moderation record,
and the scheduler cursor. Moderation decisions are lost; the next scan
rediscovers errors as new.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to delete validation data without --yes")
			}
			ctx := cmd.Context()

			reports, err := appInstance.Reports.Reset(ctx)
			if err != nil {
				return fmt.Errorf("reset reports: %w", err)
			}
			errorsReset, err := appInstance.Classifications.Reset(ctx)
			if err != nil {
				return fmt.Errorf("reset classifications: %w", err)
			}
			for _, key := range []string{scan.OffsetKey, scan.SummaryKey, scan.LockKey} {
				if err := appInstance.KV.Delete(ctx, key); err != nil {
					appInstance.Logger.Warn("delete kv key failed", zap.String("key", key), zap.Error(err))
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d validated URL reports and %d error records.\n", reports, errorsReset)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
