package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var checkOnceCmd = &cobra.Command{
	Use:   "check-once",
	Short: "Run a single price and RSI check, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := getApp().CheckOnce(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "cycle: %s\n", report.CycleID)
		if report.Sample != nil {
			fmt.Fprintf(out, "buy price:  %s\n", report.Sample.BuyPrice.StringFixed(8))
			fmt.Fprintf(out, "sell price: %s\n", report.Sample.SellPrice.StringFixed(8))
		}
		if report.Reading != nil {
			fmt.Fprintf(out, "rsi: %.2f (%s)\n", report.Reading.Value, report.Reading.Time.UTC().Format("2006-01-02T15:04:05Z"))
		}
		for _, fire := range report.PriceFires {
			fmt.Fprintf(out, "fired %s at %s\n", fire.Threshold, fire.Price.StringFixed(8))
		}
		for _, key := range report.RSI.Fired {
			fmt.Fprintf(out, "fired rsi %s\n", key.Key())
		}
		for _, key := range report.RSI.Rearmed {
			fmt.Fprintf(out, "re-armed rsi %s\n", key.Key())
		}
		if len(report.Failures) > 0 {
			fmt.Fprintf(out, "failures: %s\n", strings.Join(report.Failures, "; "))
		}
		return nil
	},
}
