// Package cmd defines and implements the CLI commands for the ampscan
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ampscan/ampscan/internal/app"
	"github.com/ampscan/ampscan/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType struct{}

var appKey appKeyType

// newApp is the application factory. It is a variable so tests can replace
// it with a mock factory.
var newApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ampscan",
		Short: "Site-wide AMP validation scanner",
		Long: `ampscan walks a representative sample of a site's URLs, validates each
page's markup against the AMP rules, and records every distinct validation
error with its moderation status.`,

		// Runs after flags are parsed but before the subcommand's RunE; the
		// app is built here and injected through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close(cmd.Context())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ampscan.yaml in the working directory)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCountCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newCheckURLCmd())
	cmd.AddCommand(newNonceCmd())
	cmd.AddCommand(newTickCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point. A SIGINT or SIGTERM cancels the command
// context so long-running subcommands shut down cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}
