package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"swap-price-alerts/internal/app"
	"swap-price-alerts/internal/model"
)

var (
	resetSide  string
	resetPrice string
	resetRSI   string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Re-arm a triggered price or RSI alert",
	Example: `  swapwatch reset --side sell --price 0.0125
  swapwatch reset --rsi above:75`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ResetOptions{RSI: resetRSI}
		if resetPrice != "" {
			side, err := model.ParseSide(resetSide)
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(resetPrice)
			if err != nil {
				return fmt.Errorf("invalid --price value: %w", err)
			}
			opts.Side = side
			opts.Price = &price
		} else if resetSide != "" {
			return errors.New("--side requires --price")
		}
		return getApp().Reset(cmd.OutOrStdout(), opts)
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetSide, "side", "", "Price alert side (buy or sell)")
	resetCmd.Flags().StringVar(&resetPrice, "price", "", "Price alert threshold")
	resetCmd.Flags().StringVar(&resetRSI, "rsi", "", "RSI alert, e.g. above:75")
}
