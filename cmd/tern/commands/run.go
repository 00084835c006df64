package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/tern/internal/app"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [patterns...]",
		Short: "Run the tests matching the patterns, or every test",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workers, _ := cmd.Flags().GetInt("workers")
			failFast, _ := cmd.Flags().GetBool("fail-fast")
			failed, _ := cmd.Flags().GetBool("failed")
			trace, _ := cmd.Flags().GetString("trace")
			journal, _ := cmd.Flags().GetString("journal")
			tui, _ := cmd.Flags().GetBool("tui")
			inspect, _ := cmd.Flags().GetBool("inspect")

			return c.app.Run(cmd.Context(), app.RunOptions{
				Options:     options(cmd),
				Patterns:    args,
				OnlyFailed:  failed,
				Workers:     workers,
				FailFast:    failFast,
				TracePath:   trace,
				JournalPath: journal,
				TUI:         tui || inspect,
				Inspect:     inspect,
			})
		},
	}
	cmd.Flags().IntP("workers", "j", 0, "Maximum number of tests running at once (default: suite setting or CPU count)")
	cmd.Flags().Bool("fail-fast", false, "Stop the session after the first failing test")
	cmd.Flags().Bool("failed", false, "Only run tests whose last recorded run did not pass")
	cmd.Flags().String("trace", "", "Write OpenTelemetry spans as JSON lines to this file")
	cmd.Flags().String("journal", "", "Write progress updates as JSON lines to this file")
	cmd.Flags().Bool("tui", false, "Show the interactive terminal interface")
	cmd.Flags().BoolP("inspect", "i", false, "Keep the terminal interface open after the run (implies --tui)")
	return cmd
}
