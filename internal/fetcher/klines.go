package fetcher

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"market-resolver/internal/upstream"
)

// kline column positions.
const (
	colOpenTime = iota
	colOpen
	colHigh
	colLow
	colClose
	colVolume
	colCloseTime
	minColumns
)

// parseKlines is the only place that indexes klines rows by position.
func parseKlines(endpoint string, body []byte) ([]Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, upstream.DataErrorf(endpoint, "klines payload is not valid json")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, upstream.DataErrorf(endpoint, "klines payload is not an array")
	}

	rows := root.Array()
	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		if !row.IsArray() {
			return nil, upstream.DataErrorf(endpoint, "kline %d is not an array", i)
		}
		cols := row.Array()
		if len(cols) < minColumns {
			return nil, upstream.DataErrorf(endpoint, "kline %d has %d columns, want at least %d", i, len(cols), minColumns)
		}
		if cols[colOpenTime].Type != gjson.Number || cols[colCloseTime].Type != gjson.Number {
			return nil, upstream.DataErrorf(endpoint, "kline %d has non-numeric timestamps", i)
		}

		rec := Record{
			OpenTime:  cols[colOpenTime].Int(),
			CloseTime: cols[colCloseTime].Int(),
		}
		fields := []struct {
			dst *decimal.Decimal
			col int
		}{
			{&rec.Open, colOpen},
			{&rec.High, colHigh},
			{&rec.Low, colLow},
			{&rec.Close, colClose},
			{&rec.Volume, colVolume},
		}
		for _, f := range fields {
			v, err := decimal.NewFromString(cols[f.col].String())
			if err != nil {
				return nil, upstream.DataErrorf(endpoint, "kline %d column %d: %v", i, f.col, err)
			}
			*f.dst = v
		}
		if rec.CloseTime < rec.OpenTime {
			return nil, upstream.DataErrorf(endpoint, "kline %d closes before it opens", i)
		}
		out = append(out, rec)
	}
	return out, nil
}
