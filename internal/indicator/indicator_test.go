package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Rajchodisetti/market-monitor/internal/marketdata"
)

func series(t *testing.T, bars ...marketdata.Bar) *marketdata.BarSeries {
	t.Helper()
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	for i := range bars {
		bars[i].Timestamp = base.Add(time.Duration(i) * 5 * time.Minute)
		bars[i].PeriodSeconds = 300
	}
	return &marketdata.BarSeries{Ticker: "TEST", Bars: bars}
}

func flatBars(n int, close float64, volume int64) []marketdata.Bar {
	out := make([]marketdata.Bar, n)
	for i := range out {
		out[i] = marketdata.Bar{Open: close, High: close, Low: close, Close: close, Volume: volume}
	}
	return out
}

func TestGap(t *testing.T) {
	v := Gap(103, 100, 0.02)
	assert.InDelta(t, 0.03, v.Metric, 1e-9)
	assert.True(t, v.Triggered)

	v = Gap(103, 100, 0.05)
	assert.False(t, v.Triggered)

	// A missing reference means no signal, not a crash.
	assert.False(t, Gap(103, 0, 0.02).Triggered)
	assert.False(t, Gap(0, 100, 0.02).Triggered)
}

func TestVelocity(t *testing.T) {
	bars := flatBars(4, 100, 1000)
	bars[3].Close = 102 // +2% over 3 bars = 15 minutes
	s := series(t, bars...)

	v := Velocity(s, 3, 0.001)
	assert.InDelta(t, 0.02/15, v.Metric, 1e-9)
	assert.True(t, v.Triggered)
}

func TestVolumeRatio(t *testing.T) {
	bars := flatBars(11, 100, 1000)
	bars[10].Volume = 3860
	s := series(t, bars...)

	v := VolumeRatio(s, 10, 1.5)
	assert.InDelta(t, 3.86, v.Metric, 1e-9)
	assert.True(t, v.Triggered)

	v = VolumeRatio(s, 10, 4.0)
	assert.False(t, v.Triggered)
}

func TestBreakout(t *testing.T) {
	bars := flatBars(6, 100, 1000)
	for i := range bars {
		bars[i].High = 101
		bars[i].Low = 99
	}
	bars[5].Close = 102.5 // above prior running high of 101
	s := series(t, bars...)

	v := Breakout(s, 0.005)
	assert.True(t, v.Triggered)
	assert.Greater(t, v.Metric, 0.0)

	// Downside breach triggers too, with negative metric.
	bars[5].Close = 97.5
	s = series(t, bars...)
	v = Breakout(s, 0.005)
	assert.True(t, v.Triggered)
	assert.Less(t, v.Metric, 0.0)
}

func TestBollingerPosition_ExtremeOutsideBand(t *testing.T) {
	bars := flatBars(20, 100, 1000)
	for i := range bars {
		// alternate a little so the band has width
		if i%2 == 0 {
			bars[i].Close = 100.5
		} else {
			bars[i].Close = 99.5
		}
	}
	bars[19].Close = 110
	s := series(t, bars...)

	v := BollingerPosition(s, 20, 2)
	assert.True(t, v.Triggered)
	assert.Greater(t, v.Metric, 1.0)
}

func TestATRExpansion(t *testing.T) {
	bars := flatBars(30, 100, 1000)
	for i := range bars {
		bars[i].High = 100.5
		bars[i].Low = 99.5
	}
	// Last 5 bars triple their range.
	for i := 25; i < 30; i++ {
		bars[i].High = 101.5
		bars[i].Low = 98.5
	}
	s := series(t, bars...)

	v := ATRExpansion(s, 5, 2.0)
	assert.True(t, v.Triggered)
	assert.Greater(t, v.Metric, 2.0)
}

func TestRSI_Bounds(t *testing.T) {
	up := flatBars(15, 100, 1000)
	for i := range up {
		up[i].Close = 100 + float64(i)
	}
	assert.InDelta(t, 100, RSI(series(t, up...), 14), 1e-9)

	down := flatBars(15, 100, 1000)
	for i := range down {
		down[i].Close = 100 - float64(i)
	}
	assert.InDelta(t, 0, RSI(series(t, down...), 14), 1e-9)

	assert.Equal(t, 50.0, RSI(series(t, flatBars(3, 100, 1)...), 14))
}

func TestAlignment(t *testing.T) {
	upFast := flatBars(10, 100, 1000)
	upConfirm := flatBars(10, 100, 1000)
	for i := range upFast {
		upFast[i].Close = 100 + float64(i)*0.2
		upConfirm[i].Close = 100 + float64(i)*0.5
	}
	v := Alignment(series(t, upFast...), series(t, upConfirm...))
	assert.True(t, v.Triggered)

	downConfirm := flatBars(10, 100, 1000)
	for i := range downConfirm {
		downConfirm[i].Close = 100 - float64(i)*0.5
	}
	v = Alignment(series(t, upFast...), series(t, downConfirm...))
	assert.False(t, v.Triggered)
}

func TestIndicators_PureOnRepeatedCalls(t *testing.T) {
	bars := flatBars(25, 100, 1000)
	bars[24].Close = 103
	bars[24].Volume = 5000
	s := series(t, bars...)

	first := VolumeRatio(s, 10, 1.5)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, VolumeRatio(s, 10, 1.5))
	}
}
