package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dealwatch/internal/tracking"
)

func newUntrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "untrack LABEL",
		Short: "Stops tracking the category with the given label",
		Long: `Removes the first tracked category with the given label from the tracking
file and discards its seen links.

This command rewrites the tracking file directly. Run it only while serve is
stopped; a running server keeps its own copy and overwrites the file on its
next change. Use DELETE /v1/sources?category=LABEL against a running server
instead.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			src, err := appInstance.Tracker().Untrack(cmd.Context(), args[0])
			if errors.Is(err, tracking.ErrNotFound) {
				return fmt.Errorf("category %q is not being tracked: %w", args[0], err)
			}
			if err != nil {
				return fmt.Errorf("untrack: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is no longer tracked\n", src.Category)
			return nil
		},
	}
}
