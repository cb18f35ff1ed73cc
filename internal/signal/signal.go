// Package signal turns indicator outputs into scored, dispatchable results.
package signal

import "time"

// Priority buckets a result for downstream triage.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Reason labels. These travel on the queue message, so they are part of the
// external contract and must stay stable.
const (
	ReasonGapUp              = "gap_up"
	ReasonGapDown            = "gap_down"
	ReasonRapidMovement      = "rapid_movement"
	ReasonVolumeSpike        = "volume_spike"
	ReasonVolumeAcceleration = "volume_acceleration"
	ReasonVWAPExtension      = "vwap_extension"
	ReasonBreakout           = "breakout"
	ReasonBollingerExtreme   = "bollinger_extreme"
	ReasonVolatilityShift    = "volatility_expansion"
	ReasonTrendAlignment     = "trend_alignment"
)

// Result is the immutable output of one evaluation call.
type Result struct {
	Ticker      string             `json:"ticker"`
	Triggered   bool               `json:"triggered"`
	Reasons     []string           `json:"reasons"`
	Confidence  float64            `json:"confidence"` // [0,1]
	Priority    Priority           `json:"priority"`
	Metrics     map[string]float64 `json:"metrics"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
}

// HasReason reports whether the result carries the given reason label.
func (r Result) HasReason(reason string) bool {
	for _, got := range r.Reasons {
		if got == reason {
			return true
		}
	}
	return false
}

// Weights are the named, versioned confidence weights. Changing behavior
// means cutting a new version, never editing an old one in place, so scoring
// stays reproducible against recorded results.
type Weights struct {
	Version        string
	Gap            float64
	Velocity       float64
	VolumeRatio    float64
	VolumeVelocity float64
	VWAPDeviation  float64
	Breakout       float64
	Bollinger      float64
	ATRExpansion   float64
	Alignment      float64
}

// WeightsV1 is the initial production weighting: volume and price movement
// carry the battery, confirmation indicators top up.
var WeightsV1 = Weights{
	Version:        "v1",
	Gap:            0.15,
	Velocity:       0.18,
	VolumeRatio:    0.22,
	VolumeVelocity: 0.08,
	VWAPDeviation:  0.10,
	Breakout:       0.12,
	Bollinger:      0.05,
	ATRExpansion:   0.05,
	Alignment:      0.05,
}

func (w Weights) total() float64 {
	return w.Gap + w.Velocity + w.VolumeRatio + w.VolumeVelocity +
		w.VWAPDeviation + w.Breakout + w.Bollinger + w.ATRExpansion + w.Alignment
}

// Config holds one tier's indicator thresholds and scoring weights. All
// thresholds are injected; nothing here is hard-coded into the engine.
type Config struct {
	GapThreshold            float64
	VelocityBars            int
	VelocityThreshold       float64 // fraction per minute
	VolumeLookback          int
	VolumeRatioThreshold    float64
	VolumeVelocityThreshold float64
	VWAPSigmaThreshold      float64
	BreakoutThreshold       float64
	BollingerWindow         int
	BollingerK              float64
	ATRWindow               int
	ATRMultiplier           float64
	ConfidenceFloor         float64 // overall trigger floor for the tier
	Weights                 Weights
}

// FastConfig is the quote-only fast tier's two-indicator configuration.
type FastConfig struct {
	PercentChangeThreshold float64 // vs previous close
	VelocityThreshold      float64 // fraction per minute between observations
	ConfidenceFloor        float64
}

// ValidateConfig tunes the validate tier's confirmation scoring.
type ValidateConfig struct {
	RSIWindow         int
	TrendBars         int
	InvalidationFloor float64 // score in [0,100] below which the signal is invalidated
}
