package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"swap-price-alerts/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export buy/sell price history as CSV and/or PNG chart",
	Long: `Export buy/sell price history as CSV and/or PNG chart.

Prices come from the history database when database.dsn is set, otherwise from
the latest_prices kept in the state document. --from and --to bound that price
window; without them the window ends now and spans max-points driver intervals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := parseExportWindow(exportFrom, exportTo)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			From:      from,
			To:        to,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

// parseExportWindow reads the optional RFC3339 bounds; empty means unset.
func parseExportWindow(fromRaw, toRaw string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if fromRaw != "" {
		t, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --from value: %w", err)
		}
		from = &t
	}
	if toRaw != "" {
		t, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --to value: %w", err)
		}
		to = &t
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, fmt.Errorf("--from must be before --to")
	}
	return from, to, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start of the price window, RFC3339, inclusive (history DB or state document prices)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End of the price window, RFC3339, exclusive (defaults to now)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart of buy, sell and spread")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV price rows")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum price points to export, downsampled evenly (defaults to export.max_data_points)")
}
