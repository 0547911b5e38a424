package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dealwatch/internal/watch"
)

func newTrackCmd() *cobra.Command {
	var (
		channelID string
		budget    int
	)
	cmd := &cobra.Command{
		Use:   "track URL",
		Short: "Starts tracking a marktplaats category page",
		Long: `Fetches the category page once to learn its name and stores it in the
tracking file. Tracking a URL again replaces its channel and budget.

This command rewrites the tracking file directly. Run it only while serve is
stopped; a running server keeps its own copy and overwrites the file on its
next change. Use POST /v1/sources against a running server instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			label, err := appInstance.Tracker().Track(cmd.Context(), args[0], channelID, watch.IntPtr(budget))
			if err != nil {
				return fmt.Errorf("track: %w", err)
			}
			if budget > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now being tracked with a budget of €%d\n", label, budget)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now being tracked\n", label)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channelID, "channel", "", "channel that receives notifications")
	cmd.Flags().IntVar(&budget, "budget", 0, "maximum price in whole euros (0 for no limit)")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}
