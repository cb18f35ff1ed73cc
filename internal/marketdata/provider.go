package marketdata

import (
	"context"
	"time"
)

// QuoteProvider serves real-time quotes. Implementations must be safe for
// concurrent use and honor the context deadline on every call.
type QuoteProvider interface {
	Name() string
	GetQuote(ctx context.Context, ticker string) (*Quote, error)
}

// BarProvider serves historical OHLCV bars. Bars require a consistent,
// backfillable source, so the gateway never blends BarProviders mid-series.
type BarProvider interface {
	Name() string
	GetBars(ctx context.Context, ticker string, periodSeconds int, start, end time.Time) (*BarSeries, error)
}
