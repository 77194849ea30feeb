package upstream

import (
	"context"
	"errors"
	"net/url"

	"github.com/rs/zerolog"
)

// Fallback walks an EndpointSet in order, one retrying call per entry.
type Fallback struct {
	client *Client
	logger zerolog.Logger
}

// NewFallback wires a fallback walker around client.
func NewFallback(client *Client, logger zerolog.Logger) *Fallback {
	return &Fallback{client: client, logger: logger.With().Str("component", "endpoint_fallback").Logger()}
}

// Get returns the first usable response. When every entry fails the last
// failure is returned as-is so callers can tell which condition ended the walk.
// A data error ends the walk at once: the request itself is wrong, not the endpoint.
func (f *Fallback) Get(ctx context.Context, endpoints EndpointSet, suffix string, params url.Values) (*Response, error) {
	if len(endpoints) == 0 {
		return nil, &Failure{Kind: KindData, Err: errors.New("no endpoints configured")}
	}

	var last error
	for i, ep := range endpoints {
		if i > 0 && ctx.Err() != nil {
			break
		}
		resp, err := f.client.Get(ctx, ep.join(suffix), params, ep.Header)
		if err == nil {
			if i > 0 {
				f.logger.Info().Int("index", i).Str("endpoint", resp.Endpoint).Msg("served by fallback endpoint")
			}
			return resp, nil
		}
		last = err
		f.logger.Warn().Err(err).Int("index", i).Str("kind", string(KindOf(err))).Msg("endpoint failed")
		if KindOf(err) == KindData {
			break
		}
	}
	return nil, last
}
