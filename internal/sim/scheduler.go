package sim

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"planetfall-server/internal/telemetry"
)

const DefaultTickRate = 60

// Stepper is advanced once per tick
type Stepper interface {
	Step(dt float64)
}

// Scheduler calls a Stepper at a fixed rate until its context is cancelled.
type Scheduler struct {
	Logger  zerolog.Logger
	Metrics *telemetry.Metrics

	target Stepper
	rate   int
	tick   uint64
}

func NewScheduler(target Stepper, rate int, logger zerolog.Logger) *Scheduler {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return &Scheduler{
		Logger: logger.With().Str("component", "scheduler").Logger(),
		target: target,
		rate:   rate,
	}
}

// Frame is the wall-clock budget of one tick
func (s *Scheduler) Frame() time.Duration {
	return time.Second / time.Duration(s.rate)
}

// Ticks returns how many ticks have run. Only safe once Run returned.
func (s *Scheduler) Ticks() uint64 {
	return s.tick
}

// Run blocks, stepping the target every frame. Each step gets the fixed dt;
// when a step overruns the schedule is re-based instead of bursting to catch
// up.
func (s *Scheduler) Run(ctx context.Context) {
	frame := s.Frame()
	dt := frame.Seconds()
	s.Logger.Info().Int("rate", s.rate).Msg("tick loop started")

	t := time.NewTimer(frame)
	defer t.Stop()

	next := time.Now()
	for {
		start := time.Now()
		s.step(dt)
		s.tick++
		s.Metrics.Tick(time.Since(start))

		next = next.Add(frame)
		wait := time.Until(next)
		if wait < 0 {
			if -wait > frame {
				s.Logger.Warn().Dur("behind", -wait).Msg("tick overran, skipping ahead")
			}
			next = time.Now()
			wait = 0
		}
		t.Reset(wait)
		select {
		case <-ctx.Done():
			s.Logger.Info().Uint64("ticks", s.tick).Msg("tick loop stopped")
			return
		case <-t.C:
		}
	}
}

func (s *Scheduler) step(dt float64) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error().Interface("panic", r).Uint64("tick", s.tick).Msg("tick panicked")
		}
	}()
	s.target.Step(dt)
}
