package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrMaxRuns is returned when the tick budget is spent before the job reports done.
var ErrMaxRuns = errors.New("scheduler: max runs reached")

// TickFunc is invoked on every aligned interval. Returning done=true stops the loop.
type TickFunc func(ctx context.Context, bucket time.Time) (done bool, err error)

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// Immediate runs the first tick right away instead of waiting for the next bucket.
	Immediate bool
	// MaxRuns bounds the number of ticks; zero means unbounded.
	MaxRuns int
}

// Scheduler drives aligned re-resolution attempts.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks, invoking tick until it reports done, MaxRuns is spent, or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := wait(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	runs := 0
	if s.opts.Immediate {
		runs++
		if s.execute(ctx, tick, s.now()) {
			return nil
		}
	}

	next := s.nextTick(s.now())
	for {
		if s.opts.MaxRuns > 0 && runs >= s.opts.MaxRuns {
			return ErrMaxRuns
		}

		delay := next.Sub(s.now())
		if delay < 0 {
			next = s.nextTick(s.now())
			delay = next.Sub(s.now())
		}

		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")
		if err := wait(ctx, delay); err != nil {
			return err
		}

		runs++
		if s.execute(ctx, tick, s.bucketStart(next)) {
			return nil
		}
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, bucket time.Time) bool {
	s.logger.Info().Time("bucket", bucket).Msg("executing scheduled tick")
	done, err := tick(ctx, bucket)
	if err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
	}
	return done
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
