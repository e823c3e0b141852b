package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearScratchCmd = &cobra.Command{
	Use:   "clear-scratch",
	Short: "Remove the pages of the preview item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id := app.Config().Storage.ScratchID
		if err := app.Pages().ClearAll(id); err != nil {
			return err
		}
		fmt.Printf("Cleared %s\n", app.Pages().Folder(id))
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove partial files left by interrupted downloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAge, _ := cmd.Flags().GetDuration("max-age")
		if maxAge <= 0 {
			maxAge = app.Config().Jobs.PartialMaxAge
		}
		removed, err := app.Pages().SweepPartials(maxAge)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d partial files older than %s\n", removed, maxAge)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Duration("max-age", 0, "minimum age of a partial file (default: jobs.partial_max_age)")
}
