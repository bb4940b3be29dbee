// Package commands implements the CLI commands for memo.
package commands

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.trai.ch/memo/internal/adapters/config"
	"go.trai.ch/memo/internal/app"
	"go.trai.ch/memo/internal/build"
)

// Loader builds the application components, applying overrides on top of the
// settings read from memo.yaml and the environment.
type Loader func(ctx context.Context, overrides map[string]any) (*app.Components, error)

// CLI represents the command line interface for memo.
type CLI struct {
	load       Loader
	components *app.Components
	rootCmd    *cobra.Command
	out        io.Writer
}

// New creates a new CLI instance. Components are built by load right before a
// command that needs them runs, once flags are parsed.
func New(load Loader) *CLI {
	rootCmd := &cobra.Command{
		Use:           "memo",
		Short:         "Incremental task runner with a shared build cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().String("state-dir", "", "Directory holding history and the local cache (default .memo)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	c := &CLI{
		load:    load,
		rootCmd: rootCmd,
		out:     os.Stdout,
	}

	rootCmd.AddCommand(c.newRunCmd())
	rootCmd.AddCommand(c.newStatusCmd())
	rootCmd.AddCommand(c.newHistoryCmd())
	rootCmd.AddCommand(c.newCacheCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects plain command output such as the version line and help.
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
	c.rootCmd.SetOut(w)
}

// Components returns the components built for the last command, or nil when
// none were needed or building them failed.
func (c *CLI) Components() *app.Components {
	return c.components
}

// Close releases the components, if any were built.
func (c *CLI) Close(ctx context.Context) error {
	if c.components == nil {
		return nil
	}
	return c.components.Close(ctx)
}

// loadComponents is used as PersistentPreRunE by every command that talks to
// the application. It turns changed flags into settings overrides.
func (c *CLI) loadComponents(cmd *cobra.Command, _ []string) error {
	overrides := make(map[string]any)

	if f := cmd.Flags().Lookup("state-dir"); f != nil && f.Changed {
		overrides[config.KeyStateDir] = f.Value.String()
	}
	if f := cmd.Flags().Lookup("log-json"); f != nil && f.Changed {
		overrides[config.KeyLogJSON] = f.Value.String() == "true"
	}
	if f := cmd.Flags().Lookup("offline"); f != nil && f.Changed {
		overrides[config.KeyCacheOffline] = f.Value.String() == "true"
	}

	components, err := c.load(cmd.Context(), overrides)
	if err != nil {
		return err
	}
	c.components = components
	return nil
}

func (c *CLI) application() *app.App {
	return c.components.App
}
