package marketdata

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Quote represents a normalized real-time price point from any provider
type Quote struct {
	Ticker    string    `json:"ticker"`    // Normalized ticker (uppercase, trimmed)
	Price     float64   `json:"price"`     // Last traded price
	Volume    int64     `json:"volume"`    // Daily volume
	Timestamp time.Time `json:"timestamp"` // Quote timestamp from provider
	Source    string    `json:"source"`    // Provider id, e.g. "alphavantage"|"polygon"|"mock"
}

// Bar is one OHLCV sample over a fixed period. Immutable once produced.
type Bar struct {
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
	PeriodSeconds int       `json:"period_seconds"`
}

// BarSeries is a time-ascending sequence of bars for one ticker.
// Timestamps are strictly increasing; gaps are tolerated, not corrected.
type BarSeries struct {
	Ticker string `json:"ticker"`
	Bars   []Bar  `json:"bars"`
	Source string `json:"source"`
}

func (s *BarSeries) Len() int { return len(s.Bars) }

// Latest returns the most recent bar, or false if the series is empty.
func (s *BarSeries) Latest() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Closes returns the close prices in series order.
func (s *BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Validate checks the series invariant: non-empty, strictly increasing timestamps.
func (s *BarSeries) Validate() error {
	if len(s.Bars) == 0 {
		return fmt.Errorf("empty bar series for %s", s.Ticker)
	}
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i].Timestamp.After(s.Bars[i-1].Timestamp) {
			return fmt.Errorf("bar series for %s not strictly increasing at index %d", s.Ticker, i)
		}
	}
	return nil
}

// NormalizeTicker uppercases and trims a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// ValidateQuote performs fail-closed quote validation: a quote that fails here
// is treated as a provider error so the gateway can fall back.
func ValidateQuote(q *Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}
	q.Ticker = NormalizeTicker(q.Ticker)
	if q.Ticker == "" {
		return fmt.Errorf("empty ticker")
	}
	if q.Price <= 0 {
		return fmt.Errorf("invalid price: %.4f", q.Price)
	}
	if q.Volume < 0 {
		return fmt.Errorf("negative volume: %d", q.Volume)
	}
	if q.Timestamp.After(time.Now().Add(5 * time.Minute)) {
		return fmt.Errorf("quote timestamp too far in future: %v", q.Timestamp)
	}
	return nil
}

// ErrNoData is returned when every provider has been exhausted for a ticker
// this cycle. Callers must treat it as "skip this ticker", never as fatal.
var ErrNoData = errors.New("no data available from any provider")

// ProviderError wraps a single provider's failure with enough context to log
// the skip verbatim (ticker + provider + cause).
type ProviderError struct {
	Kind     string // "network", "rate_limit", "provider_error", "bad_symbol", "empty_payload"
	Provider string
	Ticker   string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error from %s for %s: %s (%v)", e.Kind, e.Provider, e.Ticker, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error from %s for %s: %s", e.Kind, e.Provider, e.Ticker, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

func NewNetworkError(provider, ticker, message string, cause error) *ProviderError {
	return &ProviderError{Kind: "network", Provider: provider, Ticker: ticker, Message: message, Cause: cause}
}

func NewRateLimitError(provider, ticker, message string) *ProviderError {
	return &ProviderError{Kind: "rate_limit", Provider: provider, Ticker: ticker, Message: message}
}

func NewProviderError(provider, ticker, message string, cause error) *ProviderError {
	return &ProviderError{Kind: "provider_error", Provider: provider, Ticker: ticker, Message: message, Cause: cause}
}

func NewBadSymbolError(provider, ticker, message string) *ProviderError {
	return &ProviderError{Kind: "bad_symbol", Provider: provider, Ticker: ticker, Message: message}
}

func NewEmptyPayloadError(provider, ticker string) *ProviderError {
	return &ProviderError{Kind: "empty_payload", Provider: provider, Ticker: ticker, Message: "provider returned no rows"}
}
