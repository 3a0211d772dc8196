package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled interval.
type TickFunc func(ctx context.Context, tick time.Time) error

// Options tune scheduler behaviour. Jitter adds a random delay before
// each tick so runs against the same shops do not land on a fixed beat.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	Jitter       time.Duration
}

// Scheduler drives periodic execution of monitoring runs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function at each interval until ctx is
// cancelled. Tick errors are logged, never fatal.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}
		if s.opts.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(s.opts.Jitter)))
		}

		s.logger.Debug().Time("next_tick", next).Dur("delay", delay).Msg("waiting for next tick")
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		s.logger.Info().Time("tick", next).Msg("executing scheduled run")
		if err := tick(ctx, next); err != nil {
			s.logger.Error().Err(err).Time("tick", next).Msg("scheduled run failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	next := now.Truncate(s.opts.Interval)
	if !next.After(now) {
		next = next.Add(s.opts.Interval)
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
