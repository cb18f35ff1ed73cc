package signal

import (
	"math"
	"time"

	"github.com/Rajchodisetti/market-monitor/internal/indicator"
	"github.com/Rajchodisetti/market-monitor/internal/marketdata"
)

// Evaluate runs the full indicator battery over a bar series and combines the
// triggered indicators into a scored result. It is a pure function of its
// inputs: repeated calls with the same series and config produce identical
// results (the timestamp excepted).
//
// fastSeries is the faster-resolution series for the alignment indicator; it
// may be nil, in which case alignment simply contributes nothing. sessionOpen
// and previousClose are the session reference prices for the gap indicator;
// either at zero skips it.
func Evaluate(series *marketdata.BarSeries, fastSeries *marketdata.BarSeries, sessionOpen, previousClose float64, cfg Config) Result {
	res := Result{
		Ticker:      series.Ticker,
		Metrics:     make(map[string]float64),
		Priority:    PriorityLow,
		EvaluatedAt: time.Now().UTC(),
	}

	w := cfg.Weights
	if w.total() == 0 {
		w = WeightsV1
	}
	var score float64

	gap := indicator.Gap(sessionOpen, previousClose, cfg.GapThreshold)
	res.Metrics["gap_pct"] = gap.Metric
	if gap.Triggered {
		if gap.Metric >= 0 {
			res.Reasons = append(res.Reasons, ReasonGapUp)
		} else {
			res.Reasons = append(res.Reasons, ReasonGapDown)
		}
		score += w.Gap * strength(gap.Metric, cfg.GapThreshold)
	}

	vel := indicator.Velocity(series, cfg.VelocityBars, cfg.VelocityThreshold)
	res.Metrics["velocity_per_min"] = vel.Metric
	if vel.Triggered {
		res.Reasons = append(res.Reasons, ReasonRapidMovement)
		score += w.Velocity * strength(vel.Metric, cfg.VelocityThreshold)
	}

	volRatio := indicator.VolumeRatio(series, cfg.VolumeLookback, cfg.VolumeRatioThreshold)
	res.Metrics["volume_ratio"] = volRatio.Metric
	if volRatio.Triggered {
		res.Reasons = append(res.Reasons, ReasonVolumeSpike)
		score += w.VolumeRatio * strength(volRatio.Metric, cfg.VolumeRatioThreshold)
	}

	volVel := indicator.VolumeVelocity(series, cfg.VolumeLookback, cfg.VolumeVelocityThreshold)
	res.Metrics["volume_velocity"] = volVel.Metric
	if volVel.Triggered {
		res.Reasons = append(res.Reasons, ReasonVolumeAcceleration)
		score += w.VolumeVelocity * strength(volVel.Metric, cfg.VolumeVelocityThreshold)
	}

	vwap := indicator.VWAPDeviation(series, cfg.VWAPSigmaThreshold)
	res.Metrics["vwap_deviation_sigma"] = vwap.Metric
	if vwap.Triggered {
		res.Reasons = append(res.Reasons, ReasonVWAPExtension)
		score += w.VWAPDeviation * strength(vwap.Metric, cfg.VWAPSigmaThreshold)
	}

	brk := indicator.Breakout(series, cfg.BreakoutThreshold)
	res.Metrics["breakout_pct"] = brk.Metric
	if brk.Triggered {
		res.Reasons = append(res.Reasons, ReasonBreakout)
		score += w.Breakout * strength(brk.Metric, cfg.BreakoutThreshold)
	}

	boll := indicator.BollingerPosition(series, cfg.BollingerWindow, cfg.BollingerK)
	res.Metrics["bollinger_position"] = boll.Metric
	if boll.Triggered {
		res.Reasons = append(res.Reasons, ReasonBollingerExtreme)
		score += w.Bollinger * bollingerStrength(boll.Metric)
	}

	atr := indicator.ATRExpansion(series, cfg.ATRWindow, cfg.ATRMultiplier)
	res.Metrics["atr_expansion"] = atr.Metric
	if atr.Triggered {
		res.Reasons = append(res.Reasons, ReasonVolatilityShift)
		score += w.ATRExpansion * strength(atr.Metric, cfg.ATRMultiplier)
	}

	if fastSeries != nil {
		align := indicator.Alignment(fastSeries, series)
		res.Metrics["trend_slope"] = align.Metric
		if align.Triggered {
			res.Reasons = append(res.Reasons, ReasonTrendAlignment)
			score += w.Alignment
		}
	}

	res.Confidence = clamp01(score / w.total())
	res.Priority = PriorityFor(len(res.Reasons), res.Confidence)
	res.Triggered = len(res.Reasons) > 0 && res.Confidence >= cfg.ConfidenceFloor
	return res
}

// EvaluateQuote is the fast tier's cheap two-indicator path: instant percent
// change against the previous close, and price velocity against the last
// observation for the same ticker (nil when there is none yet).
func EvaluateQuote(quote *marketdata.Quote, previousClose float64, prev *marketdata.Quote, cfg FastConfig) Result {
	res := Result{
		Ticker:      quote.Ticker,
		Metrics:     make(map[string]float64),
		Priority:    PriorityLow,
		EvaluatedAt: time.Now().UTC(),
	}

	var score, weightTotal float64

	if previousClose > 0 {
		weightTotal += 0.6
		change := (quote.Price - previousClose) / previousClose
		res.Metrics["percent_change"] = change
		if math.Abs(change) >= cfg.PercentChangeThreshold {
			if change >= 0 {
				res.Reasons = append(res.Reasons, ReasonGapUp)
			} else {
				res.Reasons = append(res.Reasons, ReasonGapDown)
			}
			score += 0.6 * strength(change, cfg.PercentChangeThreshold)
		}
	}

	if prev != nil && prev.Price > 0 {
		weightTotal += 0.4
		elapsed := quote.Timestamp.Sub(prev.Timestamp).Minutes()
		if elapsed > 0 {
			v := (quote.Price - prev.Price) / prev.Price / elapsed
			res.Metrics["velocity_per_min"] = v
			if math.Abs(v) >= cfg.VelocityThreshold {
				res.Reasons = append(res.Reasons, ReasonRapidMovement)
				score += 0.4 * strength(v, cfg.VelocityThreshold)
			}
		}
	}

	if weightTotal > 0 {
		res.Confidence = clamp01(score / weightTotal)
	}
	res.Priority = PriorityFor(len(res.Reasons), res.Confidence)
	res.Triggered = len(res.Reasons) > 0 && res.Confidence >= cfg.ConfidenceFloor
	return res
}

// ValidationScore computes the validate tier's lightweight confirmation score
// in [0,100]: trend persistence plus RSI placement. A collapsing trend with
// an exhausted RSI scores low, signalling the entry thesis is invalidated.
func ValidationScore(series *marketdata.BarSeries, cfg ValidateConfig) float64 {
	closes := series.Closes()
	trendBars := cfg.TrendBars
	if trendBars <= 0 || trendBars > len(closes) {
		trendBars = len(closes)
	}
	slope := indicator.TrendSlope(closes[len(closes)-trendBars:])

	// Trend half: map the normalized slope to [0,50]; +0.1%/bar saturates.
	trendScore := clamp01(0.5+slope/0.002) * 50

	// RSI half: 50 means intact momentum, extremes mean exhaustion or reversal.
	rsi := indicator.RSI(series, cfg.RSIWindow)
	var rsiScore float64
	switch {
	case rsi >= 45 && rsi <= 75:
		rsiScore = 50
	case rsi > 75:
		rsiScore = 50 - (rsi - 75) // overbought decay
	default:
		rsiScore = rsi / 45 * 50 // momentum fading below 45
	}
	if rsiScore < 0 {
		rsiScore = 0
	}

	return trendScore + rsiScore
}

// strength normalizes a triggered indicator's magnitude to [0,1]: meeting the
// threshold exactly scores 0.5, doubling it scores 1.
func strength(metric, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	return clamp01(math.Abs(metric) / (2 * threshold))
}

// bollingerStrength scores distance outside the [0,1] band position.
func bollingerStrength(position float64) float64 {
	switch {
	case position > 1:
		return clamp01(position - 1 + 0.5)
	case position < 0:
		return clamp01(-position + 0.5)
	default:
		return 0
	}
}

// PriorityFor is the step function mapping reason count and confidence to a
// priority bucket. Critical demands both breadth and strength.
func PriorityFor(reasonCount int, confidence float64) Priority {
	switch {
	case reasonCount >= 4 && confidence >= 0.80:
		return PriorityCritical
	case reasonCount >= 3 && confidence >= 0.70:
		return PriorityHigh
	case reasonCount >= 2 && confidence >= 0.60:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
