package cli

import (
	"github.com/spf13/cobra"

	"market-resolver/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次结算结果并通过已配置的通道推送",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.MarketID, "market", "", "市场 ID (0x condition id 或 slug)")
	simulateCmd.Flags().StringVar(&simulateOpts.Outcome, "outcome", "condition_true", "condition_true, condition_false, tie 或 unresolved")
	simulateCmd.Flags().StringVar(&simulateOpts.Subject, "subject", "", "消息中展示的问题描述")
}
