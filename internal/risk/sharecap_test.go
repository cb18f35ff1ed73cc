package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Rajchodisetti/market-monitor/internal/marketdata"
)

func seriesWithRange(n int, price, barRange float64) *marketdata.BarSeries {
	base := time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC)
	bars := make([]marketdata.Bar, n)
	for i := range bars {
		bars[i] = marketdata.Bar{
			Open: price, High: price + barRange/2, Low: price - barRange/2, Close: price,
			Volume:    1_000_000,
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute), PeriodSeconds: 300,
		}
	}
	return &marketdata.BarSeries{Ticker: "AAPL", Bars: bars}
}

func TestMaxShares_DollarCapWithoutSeries(t *testing.T) {
	c := NewCalculator(Config{MaxPositionUSD: 10_000})
	assert.Equal(t, int64(100), c.MaxShares(nil, 100.0))
}

func TestMaxShares_ZeroPriceCapsAtZero(t *testing.T) {
	c := NewCalculator(Config{})
	assert.Zero(t, c.MaxShares(nil, 0))
	assert.Zero(t, c.MaxShares(nil, -5))
}

func TestMaxShares_HighVolatilityShrinksCap(t *testing.T) {
	c := NewCalculator(Config{MaxPositionUSD: 10_000, BaselineATRPct: 0.01})

	// ATR 4 on a 100 stock is 4x the 1% baseline, clamped at the 0.25 floor.
	wild := seriesWithRange(30, 100.0, 4.0)
	assert.Equal(t, int64(25), c.MaxShares(wild, 100.0))
}

func TestMaxShares_QuietTapeClampedAtCeiling(t *testing.T) {
	c := NewCalculator(Config{MaxPositionUSD: 10_000, BaselineATRPct: 0.01})

	// ATR 0.1 on a 100 stock is a tenth of baseline; ceiling 1.5x applies.
	quiet := seriesWithRange(30, 100.0, 0.1)
	assert.Equal(t, int64(150), c.MaxShares(quiet, 100.0))
}

func TestMaxShares_BaselineVolatilityUnadjusted(t *testing.T) {
	c := NewCalculator(Config{MaxPositionUSD: 10_000, BaselineATRPct: 0.01})

	normal := seriesWithRange(30, 100.0, 1.0)
	assert.Equal(t, int64(100), c.MaxShares(normal, 100.0))
}
