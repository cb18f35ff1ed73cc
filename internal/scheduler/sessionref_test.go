package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/market-monitor/internal/marketdata"
)

// windowedBars answers the prior-session window and the current-session
// window with different fixtures, the way a real gateway would.
type windowedBars struct {
	mu       sync.Mutex
	dayStart time.Time
	prior    *marketdata.BarSeries
	today    *marketdata.BarSeries
	calls    int
}

func (w *windowedBars) GetBars(_ context.Context, _ string, _ int, start, end time.Time) (*marketdata.BarSeries, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if !end.After(w.dayStart) {
		return w.prior, nil
	}
	return w.today, nil
}

func (w *windowedBars) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func sessionFixture(t *testing.T) (*windowedBars, time.Time) {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, 6, 3, 13, 0, 0, 0, ny)
	dayStart := time.Date(2025, 6, 3, 0, 0, 0, 0, ny)

	prior := &marketdata.BarSeries{Ticker: "AAPL", Bars: []marketdata.Bar{
		{Open: 99, High: 100.5, Low: 98.8, Close: 100, Volume: 1_000_000,
			Timestamp: dayStart.Add(-8 * time.Hour), PeriodSeconds: 1800},
	}}
	// The session opened at 103; by now the tape has drifted to 105.
	today := &marketdata.BarSeries{Ticker: "AAPL", Bars: []marketdata.Bar{
		{Open: 103, High: 103.5, Low: 102.8, Close: 103.2, Volume: 900_000,
			Timestamp: dayStart.Add(9*time.Hour + 30*time.Minute), PeriodSeconds: 1800},
		{Open: 104.8, High: 105.2, Low: 104.5, Close: 105, Volume: 800_000,
			Timestamp: dayStart.Add(10 * time.Hour), PeriodSeconds: 1800},
	}}
	return &windowedBars{dayStart: dayStart, prior: prior, today: today}, now
}

func TestSessionRef_ResolvesOpenAndPrevClose(t *testing.T) {
	bars, now := sessionFixture(t)
	src := NewSessionRefSource(bars)

	ref, err := src.SessionRef(context.Background(), "AAPL", now)
	require.NoError(t, err)
	assert.Equal(t, 100.0, ref.PrevClose)
	assert.Equal(t, 103.0, ref.SessionOpen, "session open is the first bar of the session, not the latest price")
}

func TestSessionRef_CachesPerDay(t *testing.T) {
	bars, now := sessionFixture(t)
	src := NewSessionRefSource(bars)

	_, err := src.SessionRef(context.Background(), "AAPL", now)
	require.NoError(t, err)
	fetched := bars.callCount()

	_, err = src.SessionRef(context.Background(), "AAPL", now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, fetched, bars.callCount(), "a resolved day must not refetch")
}

func TestSessionRef_RetriesUnknownOpen(t *testing.T) {
	bars, now := sessionFixture(t)
	today := bars.today
	bars.today = &marketdata.BarSeries{Ticker: "AAPL"}
	src := NewSessionRefSource(bars)

	ref, err := src.SessionRef(context.Background(), "AAPL", now)
	require.NoError(t, err)
	assert.Equal(t, 100.0, ref.PrevClose)
	assert.Zero(t, ref.SessionOpen, "no bars yet means the open is unknown")

	// Once the first bar exists the next call resolves the open without
	// refetching the prior session.
	bars.mu.Lock()
	bars.today = today
	bars.mu.Unlock()

	ref, err = src.SessionRef(context.Background(), "AAPL", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 103.0, ref.SessionOpen)
	assert.Equal(t, 100.0, ref.PrevClose)
}
