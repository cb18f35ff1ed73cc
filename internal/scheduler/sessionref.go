package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Rajchodisetti/market-monitor/internal/marketdata"
)

// BarSource is the slice of the market data gateway the tiers consume for
// historical bars.
type BarSource interface {
	GetBars(ctx context.Context, ticker string, periodSeconds int, start, end time.Time) (*marketdata.BarSeries, error)
}

// QuoteSource is the real-time slice of the gateway.
type QuoteSource interface {
	GetQuote(ctx context.Context, ticker string) (*marketdata.Quote, error)
}

// MarketData combines both capabilities; *marketdata.Gateway satisfies it.
type MarketData interface {
	QuoteSource
	BarSource
}

// SessionRef carries a ticker's session reference prices: the prior session's
// close and today's true session open. A zero field with a nil error means
// "unknown"; evaluators then skip the gap indicator rather than scoring
// against a bogus reference.
type SessionRef struct {
	PrevClose   float64
	SessionOpen float64
}

// SessionRefSource resolves session reference prices for a ticker.
type SessionRefSource interface {
	SessionRef(ctx context.Context, ticker string, now time.Time) (SessionRef, error)
}

// barSessionRefs derives both references from bars and caches them per ticker
// per session day, so resolution costs at most two bar requests a day. The
// session open stays unknown until the first bar of the session exists, and
// is retried on the next call rather than cached at zero.
type barSessionRefs struct {
	bars BarSource
	loc  *time.Location

	mu    sync.Mutex
	cache map[string]dayRef
}

type dayRef struct {
	day string
	ref SessionRef
}

func NewSessionRefSource(bars BarSource) SessionRefSource {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &barSessionRefs{bars: bars, loc: loc, cache: make(map[string]dayRef)}
}

func (p *barSessionRefs) SessionRef(ctx context.Context, ticker string, now time.Time) (SessionRef, error) {
	local := now.In(p.loc)
	day := local.Format("2006-01-02")

	p.mu.Lock()
	cached, ok := p.cache[ticker]
	p.mu.Unlock()

	var ref SessionRef
	if ok && cached.day == day {
		ref = cached.ref
		if ref.PrevClose > 0 && ref.SessionOpen > 0 {
			return ref, nil
		}
	}

	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)

	if ref.PrevClose == 0 {
		// Bars up to local midnight cover the prior session; the window is
		// wide enough to span a long weekend.
		series, err := p.bars.GetBars(ctx, ticker, 1800, dayStart.Add(-96*time.Hour), dayStart)
		if err != nil {
			return SessionRef{}, err
		}
		if latest, found := series.Latest(); found {
			ref.PrevClose = latest.Close
		}
	}

	if ref.SessionOpen == 0 {
		series, err := p.bars.GetBars(ctx, ticker, 1800, dayStart, now)
		if err != nil {
			return SessionRef{}, err
		}
		if series.Len() > 0 {
			ref.SessionOpen = series.Bars[0].Open
		}
	}

	p.mu.Lock()
	p.cache[ticker] = dayRef{day: day, ref: ref}
	p.mu.Unlock()
	return ref, nil
}
