package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rajchodisetti/market-monitor/internal/observ"
)

// TickFunc performs one tier cycle over the watchlist.
type TickFunc func(ctx context.Context, now time.Time)

type tierState struct {
	name     string
	interval time.Duration
	run      TickFunc
	running  atomic.Bool
}

// Scheduler runs registered tiers on independent cadences. Every tick first
// checks the exchange calendar, and a tier never overlaps itself: if the
// previous tick is still in flight the new one is skipped and logged.
type Scheduler struct {
	calendar Calendar
	clock    func() time.Time
	tiers    []*tierState
	wg       sync.WaitGroup
}

type Option func(*Scheduler)

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func New(cal Calendar, opts ...Option) *Scheduler {
	s := &Scheduler{
		calendar: cal,
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) AddTier(name string, interval time.Duration, run TickFunc) {
	s.tiers = append(s.tiers, &tierState{name: name, interval: interval, run: run})
}

// Run blocks until ctx is canceled, then waits for in-flight ticks to drain.
func (s *Scheduler) Run(ctx context.Context) {
	for _, tier := range s.tiers {
		s.wg.Add(1)
		go func(t *tierState) {
			defer s.wg.Done()
			ticker := time.NewTicker(t.interval)
			defer ticker.Stop()
			log.Info().Str("tier", t.name).Dur("interval", t.interval).Msg("tier started")
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.fire(ctx, t)
				}
			}
		}(tier)
	}
	<-ctx.Done()
	s.wg.Wait()
}

// fire runs one tick of a tier unless the market is closed or the previous
// tick has not finished. The tick itself runs on its own goroutine so a slow
// watchlist walk never delays the other tiers.
func (s *Scheduler) fire(ctx context.Context, t *tierState) {
	now := s.clock()
	if !s.calendar.IsOpen(now) {
		observ.TicksSkipped.WithLabelValues(t.name, "market_closed").Inc()
		log.Debug().Str("tier", t.name).Time("at", now).Msg("market closed, tick skipped")
		return
	}
	if !t.running.CompareAndSwap(false, true) {
		observ.TicksSkipped.WithLabelValues(t.name, "previous_tick_running").Inc()
		log.Warn().Str("tier", t.name).Msg("previous tick still running, skipping")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.running.Store(false)
		start := time.Now()
		t.run(ctx, now)
		observ.ObserveTick(t.name, time.Since(start))
	}()
}
