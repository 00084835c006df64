package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/tern/internal/app"
)

func (c *CLI) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [patterns...]",
		Short: "Print the resolved plan without running it",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.List(cmd.Context(), app.ListOptions{
				Options:  options(cmd),
				Patterns: args,
			})
		},
	}
}
