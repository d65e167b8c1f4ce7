package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/servicehub/internal/httpclient"
)

// NewRootCmd builds the servicehub command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "servicehub",
		Short: "Sign in to and work with the servicehub marketplace",
		Long: `servicehub is the command-line client for the servicehub service marketplace.

It signs you in with email, Google, Apple or your phone number, keeps the
session on disk between runs, and talks to the marketplace API on your behalf.
Requests that fail with a server error or a network timeout are retried.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is $HOME/.servicehub/config.yaml)")
	flags.String("base-url", "", "override api.base_url")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	flags.StringP("format", "o", "text", "output format: text, json or yaml")
	flags.Bool("no-color", false, "disable colored output")
	flags.Bool("ephemeral", false, "keep the session in memory only")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(
		newAuthCmd(),
		newAccountCmd(),
		newCategoriesCmd(),
		newFavoritesCmd(),
		newMessagesCmd(),
		newRatingsCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx. Pipeline failures are
// returned with an error code attached so the exit code reflects them.
func ExecuteContext(ctx context.Context) error {
	return httpclient.AsAppError(NewRootCmd().ExecuteContext(ctx))
}
