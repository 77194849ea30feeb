package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"market-resolver/internal/evaluator"
	"market-resolver/internal/fetcher"
)

// Export fetches a candle window and renders it as CSV and/or PNG evidence.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if strings.TrimSpace(opts.Symbol) == "" {
		return errors.New("--symbol is required")
	}

	interval, err := a.interval(opts.Interval)
	if err != nil {
		return err
	}
	field, err := parseField(opts.Field)
	if err != nil {
		return err
	}
	var bound *decimal.Decimal
	if opts.Bound != "" {
		b, err := decimal.NewFromString(strings.TrimSpace(opts.Bound))
		if err != nil {
			return err
		}
		bound = &b
	}
	window, err := a.buildWindow(opts.Window, interval)
	if err != nil {
		return err
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	endpoints, err := a.Config.CandleEndpoints()
	if err != nil {
		return err
	}
	candles := fetcher.NewCandles(fetcher.CandleOptions{
		Path:     a.Config.Candles.Path,
		MaxPages: a.Config.Candles.MaxPages,
	}, a.newFallback(), a.Logger)

	records, err := candles.Fetch(ctx, fetcher.FetchRequest{
		InstrumentID: strings.ToUpper(strings.TrimSpace(opts.Symbol)),
		Interval:     interval,
		Window:       window,
		PageSize:     a.Config.Candles.PageSize,
	}, endpoints)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("window", window.String()).Msg("no candles found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting candles")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(a.exportPath(opts.CSVPath), downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		title := strings.ToUpper(opts.Symbol) + " " + string(interval)
		if err := writeRecordsPNG(a.exportPath(opts.PNGPath), title, downsampled, field, bound); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []fetcher.Record, max int) []fetcher.Record {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[:1]
	}

	result := make([]fetcher.Record, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []fetcher.Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"open_time", "close_time_ms", "open", "high", "low", "close", "volume"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			msTime(rec.OpenTime).Format(time.RFC3339),
			strconv.FormatInt(rec.CloseTime, 10),
			rec.Open.String(),
			rec.High.String(),
			rec.Low.String(),
			rec.Close.String(),
			rec.Volume.String(),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeRecordsPNG(path, title string, records []fetcher.Record, field evaluator.Field, bound *decimal.Decimal) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	values := make([]float64, len(records))
	for i, rec := range records {
		x[i] = msTime(rec.OpenTime)
		values[i] = evaluator.Value(rec, field).InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	series := []chart.Series{
		chart.TimeSeries{
			Name:    strings.ToUpper(string(field[:1])) + string(field[1:]),
			XValues: x,
			YValues: values,
		},
	}
	if bound != nil {
		line := make([]float64, len(records))
		for i := range line {
			line[i] = bound.InexactFloat64()
		}
		series = append(series, chart.TimeSeries{
			Name:    "Bound " + bound.String(),
			XValues: x,
			YValues: line,
			Style: chart.Style{
				StrokeColor:     chart.ColorRed,
				StrokeDashArray: []float64{5, 5},
			},
		})
	}

	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// exportPath places relative paths under export.directory.
func (a *App) exportPath(path string) string {
	dir := a.Config.Export.Directory
	if filepath.IsAbs(path) || dir == "" || dir == "." {
		return path
	}
	return filepath.Join(dir, path)
}

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
