package cmd

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ampscan/ampscan/internal/report"
	"github.com/ampscan/ampscan/internal/scan"
)

func newRunCmd() *cobra.Command {
	var (
		limit   int
		include []string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate a sample of the site's URLs",
		Long: `Enumerates a representative sample of the site's URLs, validates each
page, and prints a per-type validity table. Supplying --include restricts
the sample to the named template keys and implies --force.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			clock := appInstance.Clock
			sink := report.NewZapSink(appInstance.Logger)

			batchID := uuid.New()
			start := clock.Now()
			sink.Emit(report.Event{RunID: batchID, TS: start.UTC(), Stage: report.StageScanStart})
			last := start

			out := cmd.OutOrStdout()
			summary, err := appInstance.Runner.Run(cmd.Context(), scan.RunOptions{
				Limit:   limit,
				Include: include,
				Force:   force,
				OnURL: func(url, urlType string, rep scan.Report, uerr error) {
					now := clock.Now()
					evt := report.Event{
						RunID:    batchID,
						TS:       now.UTC(),
						URL:      url,
						PageType: urlType,
						Dur:      now.Sub(last),
					}
					last = now
					if uerr != nil {
						evt.Stage = report.StageURLError
						evt.Note = uerr.Error()
					} else {
						evt.Stage = report.StageURLDone
						evt.Errors = len(rep.Results)
					}
					sink.Emit(evt)
				},
			})
			switch {
			case errors.Is(err, scan.ErrNoURLs):
				return fmt.Errorf("no URLs available to validate; pass --force or --include to widen the template sample")
			case errors.Is(err, scan.ErrLocked):
				return fmt.Errorf("another scan is already validating URLs; try again once it finishes")
			case err != nil:
				return fmt.Errorf("run scan: %w", err)
			}

			done := clock.Now()
			sink.Emit(report.Event{
				RunID: batchID,
				TS:    done.UTC(),
				Stage: report.StageScanDone,
				Dur:   done.Sub(start),
			})

			counters := summary.Counters
			if err := report.RenderValidityTable(out, &counters); err != nil {
				return fmt.Errorf("render validity table: %w", err)
			}
			fmt.Fprintln(out)
			report.RenderSummary(out, &counters)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum URLs per content type")
	cmd.Flags().StringSliceVar(&include, "include", nil, "template keys to validate (authoritative; implies --force)")
	cmd.Flags().BoolVar(&force, "force", false, "treat every template and post as supported")

	return cmd
}

func newCountCmd() *cobra.Command {
	var (
		limit   int
		include []string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Report how many URLs a scan would validate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := appInstance.Runner.CountURLs(cmd.Context(), scan.RunOptions{
				Limit:   limit,
				Include: include,
				Force:   force,
			})
			if err != nil {
				return fmt.Errorf("count urls: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum URLs per content type")
	cmd.Flags().StringSliceVar(&include, "include", nil, "template keys to validate (authoritative; implies --force)")
	cmd.Flags().BoolVar(&force, "force", false, "treat every template and post as supported")

	return cmd
}
