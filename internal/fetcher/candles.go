package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"market-resolver/internal/upstream"
)

const defaultMaxPages = 10000

// CandleOptions parameterise the paginated klines fetcher.
type CandleOptions struct {
	Path     string
	MaxPages int
}

// Candles pages through a klines endpoint set.
type Candles struct {
	opts     CandleOptions
	fallback *upstream.Fallback
	logger   zerolog.Logger
}

// NewCandles constructs a paginated fetcher on top of a fallback client.
func NewCandles(opts CandleOptions, fallback *upstream.Fallback, logger zerolog.Logger) *Candles {
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	opts.Path = strings.Trim(opts.Path, "/")
	if opts.Path == "" {
		opts.Path = "klines"
	}
	return &Candles{
		opts:     opts,
		fallback: fallback,
		logger:   logger.With().Str("component", "candle_fetcher").Logger(),
	}
}

// Fetch returns every record of req.Window in strictly increasing time order.
// Any failure discards what was collected so far.
func (c *Candles) Fetch(ctx context.Context, req FetchRequest, endpoints upstream.EndpointSet) ([]Record, error) {
	if req.PageSize <= 0 || req.PageSize > MaxPageSize {
		panic(fmt.Sprintf("fetcher: page size %d outside (0, %d]", req.PageSize, MaxPageSize))
	}
	if req.Window.EndMs <= req.Window.StartMs {
		return nil, upstream.DataErrorf("", "empty window %s", req.Window)
	}

	start, end := req.Window.StartMs, req.Window.EndMs
	cursor := start
	lastClose := start - 1
	var records []Record

	for page := 1; ; page++ {
		if page > c.opts.MaxPages {
			return nil, &upstream.Failure{
				Kind: upstream.KindPageLimit,
				Err:  fmt.Errorf("%s %s: more than %d pages", req.InstrumentID, req.Interval, c.opts.MaxPages),
			}
		}

		params := url.Values{}
		params.Set("symbol", req.InstrumentID)
		params.Set("interval", string(req.Interval))
		params.Set("startTime", strconv.FormatInt(cursor, 10))
		params.Set("endTime", strconv.FormatInt(end, 10))
		params.Set("limit", strconv.Itoa(req.PageSize))

		resp, err := c.fallback.Get(ctx, endpoints, c.opts.Path, params)
		if err != nil {
			return nil, err
		}
		if resp.Empty {
			break
		}
		batch, err := parseKlines(resp.Endpoint, resp.Body)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		accepted := 0
		for _, rec := range batch {
			if rec.OpenTime < start || rec.CloseTime >= end || rec.OpenTime <= lastClose {
				continue
			}
			records = append(records, rec)
			lastClose = rec.CloseTime
			accepted++
		}

		c.logger.Debug().
			Str("symbol", req.InstrumentID).
			Int("page", page).
			Int("batch", len(batch)).
			Int("accepted", accepted).
			Int64("cursor", cursor).
			Msg("fetched page")

		if len(batch) < req.PageSize {
			break
		}
		next := batch[len(batch)-1].CloseTime + 1
		if next <= cursor {
			return nil, upstream.DataErrorf(resp.Endpoint, "cursor did not advance past %d", cursor)
		}
		cursor = next
		if cursor >= end {
			break
		}
	}

	return records, nil
}

var _ RecordFetcher = (*Candles)(nil)
