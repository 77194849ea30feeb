package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"market-resolver/internal/evaluator"
	"market-resolver/internal/fetcher"
	"market-resolver/internal/scheduler"
	"market-resolver/internal/service"
	"market-resolver/internal/timewindow"
)

// Threshold resolves a dip/rise or single-point threshold question and prints the code.
func (a *App) Threshold(ctx context.Context, opts ThresholdOptions) error {
	interval, err := a.interval(opts.Interval)
	if err != nil {
		return err
	}
	spec, err := evaluator.ParseSpec(opts.Field, opts.Op, opts.Bound, opts.Mode)
	if err != nil {
		return err
	}
	windowOpts := opts.Window
	if spec.Mode == evaluator.ModeSinglePoint {
		if windowOpts.Clock == "" && windowOpts.From == nil {
			return errors.New("--mode single_point needs a time of day (--time) or --from")
		}
		windowOpts.Width = interval.Duration()
	}
	window, err := a.buildWindow(windowOpts, interval)
	if err != nil {
		return err
	}
	if strings.TrimSpace(opts.Symbol) == "" {
		return errors.New("--symbol is required")
	}

	req := service.ThresholdRequest{
		MarketID: opts.MarketID,
		Symbol:   opts.Symbol,
		Interval: interval,
		Window:   window,
		Spec:     spec,
	}
	return a.resolve(ctx, opts.UntilResolved, func(ctx context.Context, r *service.Resolver) service.Result {
		return r.ResolveThreshold(ctx, req)
	})
}

// Compare resolves "did the field rise between two points" and prints the code.
func (a *App) Compare(ctx context.Context, opts CompareOptions) error {
	interval, err := a.interval(opts.Interval)
	if err != nil {
		return err
	}
	field, err := parseField(opts.Field)
	if err != nil {
		return err
	}
	if strings.TrimSpace(opts.Symbol) == "" {
		return errors.New("--symbol is required")
	}

	points := [2]timewindow.Window{}
	for i, w := range []WindowOptions{opts.First, opts.Second} {
		if w.Clock == "" && w.From == nil {
			return fmt.Errorf("point %d: a time of day is required", i+1)
		}
		w.Width = interval.Duration()
		if points[i], err = a.buildWindow(w, interval); err != nil {
			return fmt.Errorf("point %d: %w", i+1, err)
		}
	}

	req := service.ComparisonRequest{
		MarketID: opts.MarketID,
		Symbol:   opts.Symbol,
		Interval: interval,
		First:    points[0],
		Second:   points[1],
		Field:    field,
	}
	return a.resolve(ctx, opts.UntilResolved, func(ctx context.Context, r *service.Resolver) service.Result {
		return r.ResolveComparison(ctx, req)
	})
}

// Game resolves a winner question and prints the code.
func (a *App) Game(ctx context.Context, opts GameOptions) error {
	if strings.TrimSpace(opts.Team) == "" || strings.TrimSpace(opts.Opponent) == "" {
		return errors.New("--team and --opponent are required")
	}
	if _, err := time.Parse(timewindow.DateLayout, opts.Date); err != nil {
		return fmt.Errorf("invalid --date %q: %w", opts.Date, err)
	}

	req := service.GameRequest{
		MarketID: opts.MarketID,
		Sport:    opts.Sport,
		Date:     opts.Date,
		Team:     opts.Team,
		Opponent: opts.Opponent,
	}
	return a.resolve(ctx, opts.UntilResolved, func(ctx context.Context, r *service.Resolver) service.Result {
		return r.ResolveGame(ctx, req)
	})
}

// resolve runs one resolution, or keeps re-running it on the scheduler, and prints the final code.
// Fetch failures never surface as command errors; they are already folded into the code.
func (a *App) resolve(ctx context.Context, untilResolved bool, fn func(context.Context, *service.Resolver) service.Result) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	resolver, cleanup, err := a.newResolver(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var res service.Result
	if untilResolved {
		res, err = resolver.UntilResolved(ctx, a.newScheduler(), func(ctx context.Context) service.Result {
			return fn(ctx, resolver)
		})
		switch {
		case err == nil:
		case errors.Is(err, scheduler.ErrMaxRuns):
			a.Logger.Warn().Int("max_runs", a.Config.Scheduler.MaxRuns).Msg("gave up before a determinable outcome")
		case errors.Is(err, context.Canceled):
			a.Logger.Info().Msg("re-resolve loop interrupted")
		default:
			a.Logger.Warn().Err(err).Msg("re-resolve loop stopped")
		}
	} else {
		res = fn(ctx, resolver)
	}

	code := res.Code
	if code == "" {
		code = a.Config.Vocabulary().Unresolved
	}
	fmt.Fprintf(a.Out, "recommendation: %s\n", code)
	return nil
}

func (a *App) interval(value string) (fetcher.Interval, error) {
	if strings.TrimSpace(value) == "" {
		value = a.Config.Candles.Interval
	}
	return fetcher.ParseInterval(value)
}

// buildWindow prefers an explicit UTC range, then a time of day, then whole local days.
func (a *App) buildWindow(opts WindowOptions, interval fetcher.Interval) (timewindow.Window, error) {
	if opts.From != nil || opts.To != nil {
		if opts.From == nil || opts.To == nil {
			return timewindow.Window{}, errors.New("--from and --to must be given together")
		}
		return timewindow.FromUTC(*opts.From, *opts.To)
	}
	if strings.TrimSpace(opts.Date) == "" {
		return timewindow.Window{}, errors.New("--date is required")
	}

	tz := opts.Timezone
	if tz == "" {
		tz = a.Config.Resolution.Timezone
	}

	if opts.Clock != "" {
		hour, minute, err := timewindow.ParseClock(opts.Clock)
		if err != nil {
			return timewindow.Window{}, err
		}
		width := opts.Width
		if width <= 0 {
			width = interval.Duration()
		}
		return timewindow.Build(opts.Date, hour, minute, tz, width)
	}

	end := opts.EndDate
	if end == "" {
		end = opts.Date
	}
	return timewindow.BuildRange(opts.Date, end, tz)
}

func parseField(value string) (evaluator.Field, error) {
	field := evaluator.Field(strings.ToLower(strings.TrimSpace(value)))
	switch field {
	case "":
		return evaluator.FieldClose, nil
	case evaluator.FieldOpen, evaluator.FieldHigh, evaluator.FieldLow, evaluator.FieldClose:
		return field, nil
	default:
		return "", fmt.Errorf("unsupported field %q", value)
	}
}
