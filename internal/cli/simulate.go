package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"swap-price-alerts/internal/app"
)

var (
	simulateBuy    string
	simulateSell   string
	simulateRSI    float64
	simulateDryRun bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "用静态价格/RSI 模拟一次告警判断",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{DryRun: simulateDryRun}
		if simulateBuy != "" {
			v, err := decimal.NewFromString(simulateBuy)
			if err != nil {
				return fmt.Errorf("invalid --buy value: %w", err)
			}
			opts.Buy = &v
		}
		if simulateSell != "" {
			v, err := decimal.NewFromString(simulateSell)
			if err != nil {
				return fmt.Errorf("invalid --sell value: %w", err)
			}
			opts.Sell = &v
		}
		if cmd.Flags().Changed("rsi") {
			v := simulateRSI
			opts.RSI = &v
		}
		return getApp().SimulateAlert(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateBuy, "buy", "", "买入价 (USD per token)")
	simulateCmd.Flags().StringVar(&simulateSell, "sell", "", "卖出价 (USD per token)")
	simulateCmd.Flags().Float64Var(&simulateRSI, "rsi", 0, "RSI 数值")
	simulateCmd.Flags().BoolVar(&simulateDryRun, "dry-run", false, "只打印，不发送通知")
}
