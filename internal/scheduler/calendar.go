// Package scheduler drives the monitoring tiers: each tier ticks on its own
// cadence, gates on the exchange calendar, and walks the watchlist with a
// bounded worker pool.
package scheduler

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scmhub/calendar"
)

// Calendar answers whether the market is open at an instant. Ticks that land
// outside the session are skipped without touching any provider.
type Calendar interface {
	IsOpen(t time.Time) bool
}

// ExchangeCalendar wraps the ISO 10383 exchange calendars, defaulting to NYSE.
// When the calendar for the configured MIC cannot be loaded it falls back to
// plain Mon-Fri 09:30-16:00 New York hours.
type ExchangeCalendar struct {
	cal      *calendar.Calendar
	fallback bool
	loc      *time.Location
}

func NewExchangeCalendar(mic string) *ExchangeCalendar {
	if mic == "" {
		mic = "xnys"
	}
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}
	if cal == nil {
		log.Warn().Str("mic", mic).Msg("exchange calendar unavailable, using Mon-Fri 09:30-16:00 fallback")
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
		return &ExchangeCalendar{fallback: true, loc: loc}
	}
	return &ExchangeCalendar{cal: cal, loc: cal.Loc}
}

func (c *ExchangeCalendar) IsOpen(t time.Time) bool {
	t = t.In(c.loc)
	if c.fallback {
		if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			return false
		}
		mins := t.Hour()*60 + t.Minute()
		return mins >= 9*60+30 && mins < 16*60
	}
	return c.cal.IsOpen(t)
}
