package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const maxBodyBytes = 32 << 20

// Options parameterise the retrying client.
type Options struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	MaxTotalWait time.Duration
	Timeout      time.Duration
	UserAgent    string
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option tweaks a Client after defaults are applied.
type Option func(*Client)

// WithSleeper replaces the backoff sleep, mainly for tests.
func WithSleeper(fn SleepFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithHTTPClient overrides the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Response is a usable upstream answer. Empty marks a 404, which callers treat as "no data".
type Response struct {
	Endpoint   string
	StatusCode int
	Body       []byte
	Empty      bool
	Attempts   int
}

// Client performs one logical GET with bounded retries and error classification.
type Client struct {
	opts   Options
	http   *http.Client
	sleep  SleepFunc
	logger zerolog.Logger
}

// NewClient constructs a retrying client. Each resolution should own its client.
func NewClient(opts Options, logger zerolog.Logger, options ...Option) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 1500 * time.Millisecond
	}
	if opts.MaxTotalWait <= 0 {
		opts.MaxTotalWait = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "market-resolver/1.0"
	}

	c := &Client{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		sleep:  sleepContext,
		logger: logger.With().Str("component", "upstream_client").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Get issues a GET for rawURL with params, retrying transient failures.
// The returned error is always a *Failure.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values, header http.Header) (*Response, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, DataErrorf(rawURL, "parse url: %v", err)
	}
	if len(params) > 0 {
		q := target.Query()
		for key, values := range params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		target.RawQuery = q.Encode()
	}
	label := endpointLabel(target)

	schedule := c.schedule()
	var waited time.Duration
	var last *Failure
	attempt := 0
	for attempt < c.opts.MaxAttempts {
		attempt++
		resp, failure, retryAfter := c.do(ctx, target, header)
		if failure == nil {
			resp.Attempts = attempt
			return resp, nil
		}
		failure.Endpoint = label
		failure.Attempts = attempt
		if !failure.Kind.Retryable() {
			return nil, failure
		}
		last = failure
		if ctx.Err() != nil || attempt == c.opts.MaxAttempts {
			break
		}

		delay := schedule.NextBackOff()
		if retryAfter > 0 {
			delay = retryAfter
		}
		if waited+delay > c.opts.MaxTotalWait {
			c.logger.Warn().Str("endpoint", label).Dur("waited", waited).Dur("next_delay", delay).
				Msg("retry wait budget exhausted")
			break
		}

		c.logger.Warn().Str("endpoint", label).
			Str("kind", string(failure.Kind)).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("transient upstream failure, backing off")

		if err := c.sleep(ctx, delay); err != nil {
			break
		}
		waited += delay
	}

	return nil, &Failure{Kind: KindExhausted, Endpoint: label, StatusCode: last.StatusCode, Attempts: attempt, Err: last}
}

func (c *Client) do(ctx context.Context, target *url.URL, header http.Header) (*Response, *Failure, time.Duration) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &Failure{Kind: KindData, Err: fmt.Errorf("create request: %w", err)}, 0
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Failure{Kind: classifyTransport(err), Err: err}, 0
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Failure{Kind: classifyTransport(err), StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}, 0
	}

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return &Response{Endpoint: endpointLabel(target), StatusCode: status, Body: body}, nil, 0
	case status == http.StatusNotFound:
		c.logger.Debug().Str("endpoint", endpointLabel(target)).Msg("upstream returned 404, treating as empty")
		return &Response{Endpoint: endpointLabel(target), StatusCode: status, Empty: true}, nil, 0
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &Failure{Kind: KindAuth, StatusCode: status, Err: parseHTTPError(status, body)}, 0
	case status == http.StatusTooManyRequests:
		return nil, &Failure{Kind: KindRateLimited, StatusCode: status, Err: parseHTTPError(status, body)}, retryAfter(resp.Header, time.Now())
	case status >= 500:
		return nil, &Failure{Kind: KindNetwork, StatusCode: status, Err: parseHTTPError(status, body)}, 0
	default:
		return nil, &Failure{Kind: KindData, StatusCode: status, Err: parseHTTPError(status, body)}, 0
	}
}

// schedule yields base, 2*base, 4*base, ... with no jitter.
func (c *Client) schedule() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.opts.MaxTotalWait
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// parseHTTPError pulls the message out of the usual error envelopes
// ({"code":..,"msg":..} for exchanges, {"Message":..} for the game API).
func parseHTTPError(status int, payload []byte) error {
	if gjson.ValidBytes(payload) {
		for _, path := range []string{"msg", "message", "Message", "error"} {
			if msg := gjson.GetBytes(payload, path); msg.Exists() && msg.String() != "" {
				return fmt.Errorf("api error (%d): %s", status, msg.String())
			}
		}
	}
	if text := strings.TrimSpace(string(payload)); text != "" {
		if len(text) > 256 {
			text = text[:256]
		}
		return fmt.Errorf("api error (%d): %s", status, text)
	}
	return fmt.Errorf("api error (%d)", status)
}

func endpointLabel(u *url.URL) string {
	return u.Scheme + "://" + u.Host + u.Path
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
