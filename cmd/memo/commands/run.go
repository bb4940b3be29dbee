package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/memo/internal/app"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "run [targets...]",
		Short:             "Run specified tasks",
		Args:              cobra.ArbitraryArgs,
		PersistentPreRunE: c.loadComponents,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}
			noCache, _ := cmd.Flags().GetBool("no-cache")
			jobs, _ := cmd.Flags().GetInt("jobs")
			return c.application().Run(cmd.Context(), args, app.RunOptions{
				NoCache: noCache,
				Jobs:    jobs,
			})
		},
	}
	cmd.Flags().Bool("offline", false, "Do not read from or write to the build cache")
	cmd.Flags().BoolP("no-cache", "n", false, "Execute every task, ignoring history and the build cache")
	cmd.Flags().IntP("jobs", "j", 0, "Number of tasks to run in parallel (default: number of CPUs)")
	return cmd
}

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "status [targets...]",
		Short:             "Explain what a run would do, without running anything",
		Args:              cobra.ArbitraryArgs,
		PersistentPreRunE: c.loadComponents,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := c.application().Status(cmd.Context(), args)
			return err
		},
	}
}
