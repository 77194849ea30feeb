package cli

import (
	"github.com/spf13/cobra"

	"market-resolver/internal/app"
)

var (
	compareOpts     app.CompareOptions
	compareDate1    string
	compareDate2    string
	compareTime1    string
	compareTime2    string
	compareTimezone string
)

var compareCmd = &cobra.Command{
	Use:     "compare",
	Short:   "Resolve whether a candle field is higher at the second point than at the first",
	Example: `  resolver compare --symbol BTCUSDT --date1 2025-01-02 --date2 2025-01-03 --time 12:00`,
	RunE: func(cmd *cobra.Command, args []string) error {
		second := compareTime2
		if second == "" {
			second = compareTime1
		}
		opts := compareOpts
		opts.First = app.WindowOptions{Date: compareDate1, Clock: compareTime1, Timezone: compareTimezone}
		opts.Second = app.WindowOptions{Date: compareDate2, Clock: second, Timezone: compareTimezone}
		return getApp().Compare(cmd.Context(), opts)
	},
}

func init() {
	fs := compareCmd.Flags()
	fs.StringVar(&compareOpts.MarketID, "market", "", "Market id (0x condition id or slug) recorded with the result")
	fs.StringVar(&compareOpts.Symbol, "symbol", "", "Instrument symbol, e.g. BTCUSDT")
	fs.StringVar(&compareOpts.Interval, "interval", "", "Candle interval (defaults to candles.interval)")
	fs.StringVar(&compareOpts.Field, "field", "close", "Candle field: open, high, low or close")
	fs.StringVar(&compareDate1, "date1", "", "Local date of the first point (YYYY-MM-DD)")
	fs.StringVar(&compareDate2, "date2", "", "Local date of the second point (YYYY-MM-DD)")
	fs.StringVar(&compareTime1, "time", "12:00", "Local time of day of the first point (HH:MM)")
	fs.StringVar(&compareTime2, "time2", "", "Local time of day of the second point (defaults to --time)")
	fs.StringVar(&compareTimezone, "tz", "", "IANA timezone (defaults to resolution.timezone)")
	fs.BoolVar(&compareOpts.UntilResolved, "until-resolved", false, "Keep re-resolving on the scheduler until the outcome is determinable")

	_ = compareCmd.MarkFlagRequired("symbol")
	_ = compareCmd.MarkFlagRequired("date1")
	_ = compareCmd.MarkFlagRequired("date2")
}
