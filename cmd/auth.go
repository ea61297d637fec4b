package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/calbridge/internal/credentials"
	"github.com/teemow/calbridge/internal/google"
	"github.com/teemow/calbridge/internal/instrumentation"
)

func newAuthCmd(c *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Connect a Google account and manage its token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "url",
		Short: "Print the Google consent URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *c, func(ctx context.Context, a *app) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.flow.AuthorizationURL())
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "exchange <code>",
		Short: "Exchange an authorization code and store the tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *c, func(ctx context.Context, a *app) error {
				creds, err := a.flow.Exchange(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Authentication successful.")
				printCredentials(cmd.OutOrStdout(), creds)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *c, func(ctx context.Context, a *app) error {
				creds, err := a.flow.Refresh(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token refreshed.")
				printCredentials(cmd.OutOrStdout(), creds)
				return nil
			})
		},
	})

	return cmd
}

// withApp builds the components for a one-shot CLI command, runs fn and
// releases them. Credential changes are audited with the cli source.
func withApp(cmd *cobra.Command, c Config, fn func(ctx context.Context, a *app) error) error {
	ctx := google.WithSource(cmd.Context(), instrumentation.SourceCLI)

	a, err := newApp(ctx, c, cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	return fn(ctx, a)
}

func printCredentials(w io.Writer, creds *credentials.Credentials) {
	if creds == nil {
		return
	}
	if !creds.Expiry.IsZero() {
		fmt.Fprintf(w, "Access token expires: %s\n", creds.Expiry.Local().Format(time.RFC1123))
	}
	if creds.HasRefreshToken() {
		fmt.Fprintln(w, "Refresh token: stored")
	} else {
		fmt.Fprintln(w, "Refresh token: none (re-run the consent flow to obtain one)")
	}
}
