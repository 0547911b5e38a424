package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Runs one sweep over every tracked category and exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			results, err := appInstance.Tracker().SweepAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			out := cmd.OutOrStdout()
			var notified, failed int
			for _, res := range results {
				status := "ok"
				if res.EmptyFetch {
					status = "empty"
				}
				fmt.Fprintf(out, "%s\tfetched=%d notified=%d failed=%d %s\n",
					res.Source, res.Fetched, res.Notified, res.Failed, status)
				notified += res.Notified
				failed += res.Failed
			}
			fmt.Fprintf(out, "swept %d sources, %d notifications sent, %d failed\n", len(results), notified, failed)
			return nil
		},
	}
}
