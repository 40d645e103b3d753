package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/api"
)

func newServeCmd() *cobra.Command {
	var noCron bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger
			cfg := appInstance.Config

			home, err := appInstance.HomeURL(cmd.Context())
			if err != nil {
				return err
			}

			server := api.NewServer(
				appInstance.Runner,
				appInstance.Oracle,
				appInstance.Classifications,
				appInstance.KV,
				home,
				cfg,
				logger.Named("api"),
			)
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           server.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if !noCron {
				go func() {
					logger.Info("scheduler started",
						zap.Duration("interval", cfg.Scan.CronInterval),
						zap.Int("stride", cfg.Scan.CronStride),
					)
					appInstance.Scheduler.Run(ctx, cfg.Scan.CronInterval)
				}()
			}

			go func() {
				logger.Info("http server started", zap.Int("port", cfg.Server.Port))
				if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(serr))
					cancel()
				}
			}()

			<-ctx.Done()
			logger.Info("shutdown initiated")

			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
			logger.Info("shutdown complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCron, "no-cron", false, "serve the API without the background scheduler")
	return cmd
}
