package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"market-resolver/internal/alerting"
	"market-resolver/internal/evaluator"
	"market-resolver/internal/fetcher"
	"market-resolver/internal/resolution"
	"market-resolver/internal/scheduler"
	"market-resolver/internal/storage"
	"market-resolver/internal/timewindow"
	"market-resolver/internal/upstream"
)

// Profiles name the kind of question a run answered.
const (
	ProfileThreshold  = "threshold"
	ProfileComparison = "comparison"
	ProfileGame       = "game"
)

// Options wires the resolver to its upstreams.
type Options struct {
	Client          upstream.Options
	ClientHooks     []upstream.Option
	Candles         fetcher.CandleOptions
	PageSize        int
	CandleEndpoints upstream.EndpointSet
	// GameEndpoints may carry a {sport} placeholder.
	GameEndpoints upstream.EndpointSet
	DefaultSport  string
	Channels      []string
}

// ThresholdRequest asks whether a candle field crossed a bound within a window.
type ThresholdRequest struct {
	MarketID string
	Symbol   string
	Interval fetcher.Interval
	Window   timewindow.Window
	Spec     evaluator.ThresholdSpec
}

// ComparisonRequest asks whether a field rose between two single-point windows.
type ComparisonRequest struct {
	MarketID string
	Symbol   string
	Interval fetcher.Interval
	First    timewindow.Window
	Second   timewindow.Window
	Field    evaluator.Field
}

// GameRequest asks whether Team beat Opponent on Date.
type GameRequest struct {
	MarketID string
	Sport    string
	Date     string
	Team     string
	Opponent string
}

// Result is what a resolution run produced. Code is always set.
type Result struct {
	RunID    uuid.UUID
	MarketID string
	Profile  string
	Subject  string
	Window   *timewindow.Window
	Outcome  evaluator.Outcome
	Code     resolution.Code
	Failure  error
	Records  []fetcher.Record
	Evidence map[string]any
	Resolved time.Time
}

// Resolver runs the fetch, evaluate, map pipeline and records the result.
type Resolver struct {
	opts     Options
	mapper   *resolution.Mapper
	store    storage.ResolutionStore
	notifier alerting.Notifier
	logger   zerolog.Logger
}

// New constructs the resolver. store and notifier may be nil.
func New(opts Options, mapper *resolution.Mapper, store storage.ResolutionStore, notifier alerting.Notifier, logger zerolog.Logger) *Resolver {
	if opts.PageSize <= 0 {
		opts.PageSize = fetcher.MaxPageSize
	}
	return &Resolver{
		opts:     opts,
		mapper:   mapper,
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// fallback builds a fresh client per run so no connection state crosses invocations.
func (r *Resolver) fallback() *upstream.Fallback {
	client := upstream.NewClient(r.opts.Client, r.logger, r.opts.ClientHooks...)
	return upstream.NewFallback(client, r.logger)
}

// ResolveThreshold answers a dip/rise or single-point threshold question.
func (r *Resolver) ResolveThreshold(ctx context.Context, req ThresholdRequest) Result {
	res := r.begin(ProfileThreshold, req.MarketID, fmt.Sprintf("%s %s", req.Symbol, req.Spec))
	window := req.Window
	if req.Spec.Mode == evaluator.ModeSinglePoint {
		window = window.Align(req.Interval.Duration())
	}
	res.Window = &window

	candles := fetcher.NewCandles(r.opts.Candles, r.fallback(), r.logger)
	records, err := candles.Fetch(ctx, r.fetchRequest(req.Symbol, req.Interval, window), r.opts.CandleEndpoints)
	if err != nil {
		return r.finish(ctx, res, evaluator.Unresolved, err)
	}

	res.Records = records
	res.Evidence = thresholdEvidence(records, req.Spec)
	return r.finish(ctx, res, evaluator.Evaluate(records, req.Spec), nil)
}

// ResolveComparison answers "is the value at Second above the value at First".
func (r *Resolver) ResolveComparison(ctx context.Context, req ComparisonRequest) Result {
	res := r.begin(ProfileComparison, req.MarketID, fmt.Sprintf("%s %s %s vs %s", req.Symbol, req.Field, req.First, req.Second))
	firstPoint := req.First.Align(req.Interval.Duration())
	secondPoint := req.Second.Align(req.Interval.Duration())
	span, err := timewindow.FromUTC(firstPoint.Start(), secondPoint.End())
	if err == nil {
		res.Window = &span
	}

	candles := fetcher.NewCandles(r.opts.Candles, r.fallback(), r.logger)
	first, err := candles.Fetch(ctx, r.fetchRequest(req.Symbol, req.Interval, firstPoint), r.opts.CandleEndpoints)
	if err != nil {
		return r.finish(ctx, res, evaluator.Unresolved, err)
	}
	second, err := candles.Fetch(ctx, r.fetchRequest(req.Symbol, req.Interval, secondPoint), r.opts.CandleEndpoints)
	if err != nil {
		return r.finish(ctx, res, evaluator.Unresolved, err)
	}
	res.Records = append(append([]fetcher.Record{}, first...), second...)

	a, okA := evaluator.SinglePoint(first, req.Field)
	b, okB := evaluator.SinglePoint(second, req.Field)
	if !okA || !okB {
		res.Evidence = map[string]any{"first_records": len(first), "second_records": len(second)}
		return r.finish(ctx, res, evaluator.Unresolved, nil)
	}
	res.Evidence = map[string]any{"first": a.String(), "second": b.String()}
	return r.finish(ctx, res, evaluator.Compare(a, b), nil)
}

// ResolveGame answers "did Team beat Opponent" from the GamesByDate listing.
func (r *Resolver) ResolveGame(ctx context.Context, req GameRequest) Result {
	res := r.begin(ProfileGame, req.MarketID, fmt.Sprintf("%s vs %s on %s", req.Team, req.Opponent, req.Date))

	sport := req.Sport
	if sport == "" {
		sport = r.opts.DefaultSport
	}
	endpoints := r.opts.GameEndpoints.Expand(map[string]string{"sport": strings.ToLower(sport)})

	games, err := fetcher.NewGames(r.fallback(), r.logger).FetchGames(ctx, req.Date, endpoints)
	if err != nil {
		return r.finish(ctx, res, evaluator.Unresolved, err)
	}
	res.Evidence = gameEvidence(games, req.Team, req.Opponent)
	return r.finish(ctx, res, evaluator.Winner(games, req.Team, req.Opponent), nil)
}

// UntilResolved re-runs resolve on the scheduler until it yields a determinable code.
// The last result is returned together with any scheduler error.
func (r *Resolver) UntilResolved(ctx context.Context, sched *scheduler.Scheduler, resolve func(context.Context) Result) (Result, error) {
	var last Result
	err := sched.Run(ctx, func(ctx context.Context, _ time.Time) (bool, error) {
		last = resolve(ctx)
		if r.mapper.IsUnresolved(last.Code) {
			return false, fmt.Errorf("still unresolved: %s", last.Outcome)
		}
		return true, nil
	})
	return last, err
}

func (r *Resolver) fetchRequest(symbol string, interval fetcher.Interval, window timewindow.Window) fetcher.FetchRequest {
	return fetcher.FetchRequest{
		InstrumentID: strings.ToUpper(strings.TrimSpace(symbol)),
		Interval:     interval,
		Window:       window,
		PageSize:     r.opts.PageSize,
	}
}

func (r *Resolver) begin(profile, marketID, subject string) Result {
	normalized, err := NormalizeMarketID(marketID)
	if err != nil {
		r.logger.Warn().Err(err).Msg("keeping market id as given")
		normalized = strings.TrimSpace(marketID)
	}
	return Result{RunID: uuid.New(), MarketID: normalized, Profile: profile, Subject: subject}
}

func (r *Resolver) finish(ctx context.Context, res Result, outcome evaluator.Outcome, failure error) Result {
	if failure != nil {
		outcome = evaluator.Unresolved
		res.Records = nil
	}
	res.Outcome = outcome
	res.Failure = failure
	res.Code = r.mapper.Resolve(outcome, failure)
	res.Resolved = time.Now().UTC()

	var event *zerolog.Event
	if failure != nil {
		event = r.logger.Warn().Err(failure).Str("failure_kind", string(upstream.KindOf(failure)))
	} else {
		event = r.logger.Info()
	}
	event.Str("run_id", res.RunID.String()).
		Str("market_id", res.MarketID).
		Str("profile", res.Profile).
		Str("subject", res.Subject).
		Int("records", len(res.Records)).
		Str("outcome", string(res.Outcome)).
		Str("code", string(res.Code)).
		Msg("resolution complete")

	r.persist(ctx, res)
	r.notify(ctx, res)
	return res
}

func (r *Resolver) persist(ctx context.Context, res Result) {
	if r.store == nil {
		return
	}
	rec := storage.ResolutionRecord{
		RunID:       res.RunID,
		MarketID:    res.MarketID,
		Profile:     res.Profile,
		Subject:     res.Subject,
		Outcome:     string(res.Outcome),
		Code:        string(res.Code),
		RecordCount: len(res.Records),
	}
	if res.Window != nil {
		start, end := res.Window.Start(), res.Window.End()
		rec.WindowStart, rec.WindowEnd = &start, &end
	}
	if res.Failure != nil {
		kind := string(upstream.KindOf(res.Failure))
		if kind == "" {
			kind = "error"
		}
		msg := res.Failure.Error()
		rec.FailureKind, rec.FailureMsg = &kind, &msg
	}
	if len(res.Evidence) > 0 {
		if raw, err := json.Marshal(res.Evidence); err == nil {
			rec.Evidence = raw
		}
	}
	if _, err := r.store.InsertResolution(ctx, rec); err != nil {
		r.logger.Error().Err(err).Str("run_id", res.RunID.String()).Msg("failed to persist resolution")
	}
}

func (r *Resolver) notify(ctx context.Context, res Result) {
	if r.notifier == nil {
		return
	}
	note := alerting.Notification{
		RunID:       res.RunID.String(),
		MarketID:    res.MarketID,
		Profile:     res.Profile,
		Subject:     res.Subject,
		Outcome:     string(res.Outcome),
		Code:        string(res.Code),
		FailureKind: string(upstream.KindOf(res.Failure)),
		ResolvedAt:  res.Resolved,
		Channels:    r.opts.Channels,
	}
	if res.Window != nil {
		start, end := res.Window.Start(), res.Window.End()
		note.WindowStart, note.WindowEnd = &start, &end
	}
	if err := r.notifier.Notify(ctx, note); err != nil {
		r.logger.Error().Err(err).Str("run_id", res.RunID.String()).Msg("failed to dispatch resolution")
	}
}

func thresholdEvidence(records []fetcher.Record, spec evaluator.ThresholdSpec) map[string]any {
	evidence := map[string]any{"records": len(records), "bound": spec.Bound.String()}
	if len(records) == 0 {
		return evidence
	}
	lo, hi := evaluator.Value(records[0], spec.Field), evaluator.Value(records[0], spec.Field)
	for _, rec := range records[1:] {
		v := evaluator.Value(rec, spec.Field)
		if v.LessThan(lo) {
			lo = v
		}
		if v.GreaterThan(hi) {
			hi = v
		}
	}
	evidence["min"] = lo.String()
	evidence["max"] = hi.String()
	return evidence
}

func gameEvidence(games []fetcher.Game, team, opponent string) map[string]any {
	evidence := map[string]any{"games": len(games)}
	for _, g := range games {
		if !g.Involves(team, opponent) {
			continue
		}
		evidence["game_id"] = g.GameID
		evidence["status"] = g.Status
		evidence["home"] = g.HomeTeam
		evidence["away"] = g.AwayTeam
		if g.HomeScore != nil {
			evidence["home_score"] = *g.HomeScore
		}
		if g.AwayScore != nil {
			evidence["away_score"] = *g.AwayScore
		}
		break
	}
	return evidence
}
