package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/ampscan/ampscan/internal/scan"
)

func newCheckURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-url <url>",
		Short: "Validate a single URL and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			home, err := appInstance.HomeURL(cmd.Context())
			if err != nil {
				return err
			}
			target, err := resolveSiteURL(home, args[0])
			if err != nil {
				return err
			}

			rep, err := appInstance.Oracle.Validate(cmd.Context(), target)
			if err != nil {
				var fe *scan.FetchError
				if errors.As(err, &fe) {
					return fmt.Errorf("URL could not be fetched: %w", fe)
				}
				return fmt.Errorf("validate url: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	return cmd
}

// resolveSiteURL resolves a path-only argument against the site home URL
// and rejects absolute URLs that do not belong to the configured site.
func resolveSiteURL(home, candidate string) (string, error) {
	h, err := url.Parse(home)
	if err != nil {
		return "", fmt.Errorf("parse home url: %w", err)
	}
	c, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if c.Scheme == "" && c.Host == "" {
		return h.ResolveReference(c).String(), nil
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return "", fmt.Errorf("url must be http or https, got %q", c.Scheme)
	}
	if h.Host == "" || h.Host != c.Host {
		return "", fmt.Errorf("url host %q does not match the site host %q", c.Host, h.Host)
	}
	return candidate, nil
}
