// Package indicator computes the technical indicator battery over bar series.
//
// Every indicator is a pure function: same series and threshold in, same
// value out. Thresholds are injected by the caller so the one engine serves
// all monitoring tiers with tier-specific sensitivity.
package indicator

import (
	"math"

	"github.com/Rajchodisetti/market-monitor/internal/marketdata"
)

// Value is a computed metric paired with its threshold verdict.
type Value struct {
	Metric    float64
	Triggered bool
}

// Gap returns (sessionOpen - previousClose) / previousClose. The caller
// resolves the true session open; the first bar of an arbitrary lookback
// window is a mid-day price, not an open. Triggered when the absolute gap
// meets the threshold.
func Gap(sessionOpen, previousClose, threshold float64) Value {
	if sessionOpen <= 0 || previousClose <= 0 {
		return Value{}
	}
	gap := (sessionOpen - previousClose) / previousClose
	return Value{Metric: gap, Triggered: math.Abs(gap) >= threshold}
}

// Velocity returns the fractional price change per elapsed minute between the
// latest close and the close nBars earlier.
func Velocity(series *marketdata.BarSeries, nBars int, threshold float64) Value {
	n := series.Len()
	if nBars <= 0 || n <= nBars {
		return Value{}
	}
	latest := series.Bars[n-1]
	past := series.Bars[n-1-nBars]
	if past.Close <= 0 {
		return Value{}
	}
	elapsed := latest.Timestamp.Sub(past.Timestamp).Minutes()
	if elapsed <= 0 {
		return Value{}
	}
	v := (latest.Close - past.Close) / past.Close / elapsed
	return Value{Metric: v, Triggered: math.Abs(v) >= threshold}
}

// VolumeRatio returns latest volume over the moving average of volume across
// the preceding lookback bars.
func VolumeRatio(series *marketdata.BarSeries, lookback int, threshold float64) Value {
	n := series.Len()
	if lookback <= 0 || n <= lookback {
		return Value{}
	}
	var sum float64
	for _, b := range series.Bars[n-1-lookback : n-1] {
		sum += float64(b.Volume)
	}
	avg := sum / float64(lookback)
	if avg <= 0 {
		return Value{}
	}
	ratio := float64(series.Bars[n-1].Volume) / avg
	return Value{Metric: ratio, Triggered: ratio >= threshold}
}

// VolumeVelocity returns the rate of change of the volume ratio across the
// last three bars; a positive value means volume is still accelerating.
func VolumeVelocity(series *marketdata.BarSeries, lookback int, threshold float64) Value {
	n := series.Len()
	if lookback <= 0 || n < lookback+3 {
		return Value{}
	}
	ratioAt := func(end int) float64 {
		var sum float64
		for _, b := range series.Bars[end-lookback : end] {
			sum += float64(b.Volume)
		}
		avg := sum / float64(lookback)
		if avg <= 0 {
			return 0
		}
		return float64(series.Bars[end].Volume) / avg
	}
	prev := ratioAt(n - 3)
	curr := ratioAt(n - 1)
	vel := (curr - prev) / 2
	return Value{Metric: vel, Triggered: vel >= threshold}
}

// VWAPDeviation returns how many standard deviations of typical price the
// latest close sits from the series VWAP.
func VWAPDeviation(series *marketdata.BarSeries, threshold float64) Value {
	n := series.Len()
	if n < 2 {
		return Value{}
	}
	var pvSum, vSum float64
	typicals := make([]float64, n)
	for i, b := range series.Bars {
		tp := (b.High + b.Low + b.Close) / 3
		typicals[i] = tp
		pvSum += tp * float64(b.Volume)
		vSum += float64(b.Volume)
	}
	if vSum <= 0 {
		return Value{}
	}
	vwap := pvSum / vSum
	sd := stddev(typicals)
	if sd <= 0 {
		return Value{}
	}
	dev := (series.Bars[n-1].Close - vwap) / sd
	return Value{Metric: dev, Triggered: math.Abs(dev) >= threshold}
}

// Breakout checks whether the latest close breaches the running high/low of
// all prior bars in the series. Metric is the fractional breach beyond the
// breached level, signed (positive above the high, negative below the low).
func Breakout(series *marketdata.BarSeries, threshold float64) Value {
	n := series.Len()
	if n < 2 {
		return Value{}
	}
	priorHigh := series.Bars[0].High
	priorLow := series.Bars[0].Low
	for _, b := range series.Bars[1 : n-1] {
		priorHigh = math.Max(priorHigh, b.High)
		priorLow = math.Min(priorLow, b.Low)
	}
	latest := series.Bars[n-1].Close
	switch {
	case priorHigh > 0 && latest > priorHigh:
		breach := (latest - priorHigh) / priorHigh
		return Value{Metric: breach, Triggered: breach >= threshold}
	case priorLow > 0 && latest < priorLow:
		breach := (latest - priorLow) / priorLow
		return Value{Metric: breach, Triggered: -breach >= threshold}
	default:
		return Value{}
	}
}

// BollingerPosition returns (close - lowerBand) / (upperBand - lowerBand)
// with bands SMA(n) +/- k*stddev(n). Position outside [0,1] is extreme and
// trips the trigger.
func BollingerPosition(series *marketdata.BarSeries, n int, k float64) Value {
	length := series.Len()
	if n < 2 || length < n {
		return Value{}
	}
	window := series.Closes()[length-n:]
	mid := mean(window)
	sd := stddev(window)
	if sd <= 0 {
		return Value{}
	}
	upper := mid + k*sd
	lower := mid - k*sd
	pos := (series.Bars[length-1].Close - lower) / (upper - lower)
	return Value{Metric: pos, Triggered: pos < 0 || pos > 1}
}

// ATRExpansion returns ATR(n) over its own trailing average; a ratio at or
// above the multiplier flags a volatility regime shift.
func ATRExpansion(series *marketdata.BarSeries, n int, multiplier float64) Value {
	length := series.Len()
	if n < 1 || length < 2*n+1 {
		return Value{}
	}
	trs := trueRanges(series)
	recent := mean(trs[len(trs)-n:])
	trailing := mean(trs[:len(trs)-n])
	if trailing <= 0 {
		return Value{}
	}
	ratio := recent / trailing
	return Value{Metric: ratio, Triggered: ratio >= multiplier}
}

// ATR is the plain average true range over the last n bars, in price units.
// Returns 0 when the series is too short.
func ATR(series *marketdata.BarSeries, n int) float64 {
	if n < 1 || series.Len() < n+1 {
		return 0
	}
	trs := trueRanges(series)
	return mean(trs[len(trs)-n:])
}

// RSI computes the Wilder relative strength index over the last n bars.
// Value only; the caller decides floor/ceiling semantics per tier.
func RSI(series *marketdata.BarSeries, n int) float64 {
	closes := series.Closes()
	if n < 1 || len(closes) < n+1 {
		return 50
	}
	var gains, losses float64
	for i := len(closes) - n; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// TrendSlope returns the sign-carrying slope of a least-squares fit through
// the close prices, normalized by the mean price so series of different price
// levels are comparable.
func TrendSlope(closes []float64) float64 {
	n := len(closes)
	if n < 2 {
		return 0
	}
	m := mean(closes)
	if m <= 0 {
		return 0
	}
	var num, den float64
	xMean := float64(n-1) / 2
	for i, c := range closes {
		dx := float64(i) - xMean
		num += dx * (c - m)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return (num / den) / m
}

// Alignment reports whether trend direction agrees across the fast and
// confirm resolutions. Metric is the confirm-resolution slope.
func Alignment(fast, confirm *marketdata.BarSeries) Value {
	fastSlope := TrendSlope(fast.Closes())
	confirmSlope := TrendSlope(confirm.Closes())
	agree := fastSlope != 0 && confirmSlope != 0 &&
		math.Signbit(fastSlope) == math.Signbit(confirmSlope)
	return Value{Metric: confirmSlope, Triggered: agree}
}

func trueRanges(series *marketdata.BarSeries) []float64 {
	out := make([]float64, 0, series.Len()-1)
	for i := 1; i < series.Len(); i++ {
		b, prev := series.Bars[i], series.Bars[i-1]
		tr := math.Max(b.High-b.Low,
			math.Max(math.Abs(b.High-prev.Close), math.Abs(b.Low-prev.Close)))
		out = append(out, tr)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
