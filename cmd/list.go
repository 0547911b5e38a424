package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists tracked categories and their budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			sources := appInstance.Tracker().List()
			if len(sources) == 0 {
				fmt.Fprintln(out, "No categories are tracked, use track.")
				return nil
			}
			fmt.Fprintln(out, "Tracked categories:")
			for _, s := range sources {
				if s.Budget != nil && *s.Budget > 0 {
					fmt.Fprintf(out, "- %s (Max: €%d)\n", s.Category, *s.Budget)
					continue
				}
				fmt.Fprintf(out, "- %s\n", s.Category)
			}
			return nil
		},
	}
}
