package cli

import (
	"github.com/spf13/cobra"

	"swap-price-alerts/internal/app"
)

var backfillDryRun bool

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Copy the state document price history into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BackfillOptions{DryRun: backfillDryRun}
		return getApp().Backfill(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Report what would be written without touching storage")
}
