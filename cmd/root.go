package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the version command and --version
func SetVersion(v string) {
	version = v
}

// newRootCmd builds the command tree. Every command shares one Config,
// filled from flags and then from the environment.
func newRootCmd() *cobra.Command {
	c := defaultConfig()

	root := &cobra.Command{
		Use:   "calbridge",
		Short: "Google Calendar proxy backend",
		Long: `calbridge connects a single Google account via OAuth and exposes its
calendar over a small REST API for a browser client.

It can run as:
  - An HTTP server (default)
  - A command-line client for listing, adding and deleting events
  - An MCP (Model Context Protocol) server for AI assistants

Settings come from flags, environment variables or a .env file in the
working directory.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvVars(cmd, &c)
		},
	}
	root.SetVersionTemplate(`{{printf "calbridge version %s\n" .Version}}`)

	addConfigFlags(root, &c)

	root.AddCommand(newServeCmd(&c))
	root.AddCommand(newAuthCmd(&c))
	root.AddCommand(newEventsCmd(&c))
	root.AddCommand(newMCPCmd(&c))
	root.AddCommand(newGenerateDocsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// loadDotEnv reads .env from the working directory. Variables already set in
// the environment win. A missing file is not an error.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Execute is the main entry point for the CLI application
func Execute() {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
