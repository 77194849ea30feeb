package cli

import (
	"github.com/spf13/cobra"

	"market-resolver/internal/app"
)

var (
	exportOpts   app.ExportOptions
	exportWindow windowFlags
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a candle window as CSV and/or PNG evidence",
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := exportWindow.options()
		if err != nil {
			return err
		}
		opts := exportOpts
		opts.Window = window
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	fs := exportCmd.Flags()
	fs.StringVar(&exportOpts.Symbol, "symbol", "", "Instrument symbol, e.g. BTCUSDT")
	fs.StringVar(&exportOpts.Interval, "interval", "", "Candle interval (defaults to candles.interval)")
	fs.StringVar(&exportOpts.Field, "field", "close", "Candle field plotted in the chart")
	fs.StringVar(&exportOpts.Bound, "bound", "", "Threshold drawn as a reference line")
	fs.StringVar(&exportOpts.PNGPath, "png", "", "Path to write PNG chart")
	fs.StringVar(&exportOpts.CSVPath, "csv", "", "Path to write CSV data")
	fs.IntVar(&exportOpts.MaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	exportWindow.register(fs)
}
