package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"market-resolver/internal/timewindow"
	"market-resolver/internal/upstream"
)

// MaxPageSize is the documented per-request ceiling of the klines API.
const MaxPageSize = 1000

// Interval is a candle width as understood by the klines API.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
)

var intervalWidths = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval6h:  6 * time.Hour,
	Interval12h: 12 * time.Hour,
	Interval1d:  24 * time.Hour,
}

// ParseInterval validates a user-supplied interval string.
func ParseInterval(v string) (Interval, error) {
	iv := Interval(strings.TrimSpace(v))
	if _, ok := intervalWidths[iv]; !ok {
		return "", fmt.Errorf("unsupported interval %q", v)
	}
	return iv, nil
}

// Duration returns the width of one candle.
func (i Interval) Duration() time.Duration {
	return intervalWidths[i]
}

// Record is one candle, populated once at the API boundary.
type Record struct {
	OpenTime  int64
	CloseTime int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// FetchRequest describes one paginated candle retrieval.
type FetchRequest struct {
	InstrumentID string
	Interval     Interval
	Window       timewindow.Window
	PageSize     int
}

// RecordFetcher retrieves every record of a window.
type RecordFetcher interface {
	Fetch(ctx context.Context, req FetchRequest, endpoints upstream.EndpointSet) ([]Record, error)
}

// GameFetcher retrieves all games scheduled on a local date.
type GameFetcher interface {
	FetchGames(ctx context.Context, date string, endpoints upstream.EndpointSet) ([]Game, error)
}
