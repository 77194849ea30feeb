package cli

import (
	"github.com/spf13/cobra"

	"market-resolver/internal/app"
)

var (
	thresholdOpts   app.ThresholdOptions
	thresholdWindow windowFlags
)

var thresholdCmd = &cobra.Command{
	Use:   "threshold",
	Short: "Resolve whether a candle field crossed a bound",
	Example: `  resolver threshold --symbol BTCUSDT --date 2025-01-02 --field low --op lte --bound 90000
  resolver threshold --symbol ETHUSDT --date 2025-01-02 --time 12:00 --field close --op gte --bound 3500 --mode single_point`,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := thresholdWindow.options()
		if err != nil {
			return err
		}
		opts := thresholdOpts
		opts.Window = window
		return getApp().Threshold(cmd.Context(), opts)
	},
}

func init() {
	fs := thresholdCmd.Flags()
	fs.StringVar(&thresholdOpts.MarketID, "market", "", "Market id (0x condition id or slug) recorded with the result")
	fs.StringVar(&thresholdOpts.Symbol, "symbol", "", "Instrument symbol, e.g. BTCUSDT")
	fs.StringVar(&thresholdOpts.Interval, "interval", "", "Candle interval (defaults to candles.interval)")
	fs.StringVar(&thresholdOpts.Field, "field", "low", "Candle field: open, high, low or close")
	fs.StringVar(&thresholdOpts.Op, "op", "lte", "Comparison: gte, lte, eq, gt or lt")
	fs.StringVar(&thresholdOpts.Bound, "bound", "", "Threshold value")
	fs.StringVar(&thresholdOpts.Mode, "mode", "any_in_range", "any_in_range or single_point")
	fs.BoolVar(&thresholdOpts.UntilResolved, "until-resolved", false, "Keep re-resolving on the scheduler until the outcome is determinable")
	thresholdWindow.register(fs)

	_ = thresholdCmd.MarkFlagRequired("symbol")
	_ = thresholdCmd.MarkFlagRequired("bound")
}
