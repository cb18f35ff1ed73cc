// Package dispatch serializes confirmed signals into queue messages and
// publishes them with at-least-once delivery.
package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rajchodisetti/market-monitor/internal/signal"
)

const (
	KindEntry = "entry_signal"
	KindExit  = "exit_position"

	SourceConfirmTier  = "confirm_tier"
	SourceValidateTier = "validate_tier"

	ReasonInvalidated = "signal_invalidated"
)

// AnalysisWindow bounds the bar series a message was evaluated over.
type AnalysisWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// QueueMessage is the envelope handed to the downstream decision worker.
// Delivery is at-least-once, so consumers dedupe on (tickers, triggered_at).
type QueueMessage struct {
	Kind            string             `json:"kind"`
	Tickers         []string           `json:"tickers"`
	AnalysisWindow  AnalysisWindow     `json:"analysis_window"`
	Signals         []string           `json:"signals"`
	MarketSnapshot  map[string]float64 `json:"market_snapshot"`
	Confidence      float64            `json:"confidence"`
	Priority        string             `json:"priority"`
	TriggeredAt     time.Time          `json:"triggered_at"`
	Source          string             `json:"source"`
	Reason          string             `json:"reason,omitempty"`
	ValidationScore float64            `json:"validation_score,omitempty"`
}

// NewEntryMessage builds an entry envelope from a confirm-tier evaluation.
func NewEntryMessage(res signal.Result, window AnalysisWindow) QueueMessage {
	return QueueMessage{
		Kind:           KindEntry,
		Tickers:        []string{res.Ticker},
		AnalysisWindow: window,
		Signals:        append([]string(nil), res.Reasons...),
		MarketSnapshot: res.Metrics,
		Confidence:     res.Confidence,
		Priority:       string(res.Priority),
		TriggeredAt:    res.EvaluatedAt,
		Source:         SourceConfirmTier,
	}
}

// NewExitMessage builds an exit envelope for a position whose confirmation
// score fell below the invalidation floor.
func NewExitMessage(ticker string, score float64, window AnalysisWindow, now time.Time) QueueMessage {
	return QueueMessage{
		Kind:            KindExit,
		Tickers:         []string{ticker},
		AnalysisWindow:  window,
		Signals:         []string{ReasonInvalidated},
		Reason:          ReasonInvalidated,
		ValidationScore: score,
		TriggeredAt:     now,
		Source:          SourceValidateTier,
	}
}

func (m QueueMessage) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode queue message: %w", err)
	}
	return b, nil
}
