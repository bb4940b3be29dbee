package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the local execution history",
	}

	cmd.AddCommand(&cobra.Command{
		Use:               "forget <task>...",
		Short:             "Drop the recorded history of tasks so they are evaluated from scratch",
		Args:              cobra.MinimumNArgs(1),
		PersistentPreRunE: c.loadComponents,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.application().Forget(cmd.Context(), args)
		},
	})
	return cmd
}

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local build cache",
	}

	clean := &cobra.Command{
		Use:               "clean",
		Short:             "Remove cache entries that were not used recently",
		Args:              cobra.NoArgs,
		PersistentPreRunE: c.loadComponents,
		RunE: func(cmd *cobra.Command, _ []string) error {
			maxAge, _ := cmd.Flags().GetDuration("max-age")
			_, err := c.application().CleanCache(cmd.Context(), maxAge)
			return err
		},
	}
	clean.Flags().Duration("max-age", 0, "Remove entries unused for longer than this (default: cache.maxAge)")

	cmd.AddCommand(clean)
	return cmd
}
