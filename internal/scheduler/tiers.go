package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rajchodisetti/market-monitor/internal/cooldown"
	"github.com/Rajchodisetti/market-monitor/internal/dispatch"
	"github.com/Rajchodisetti/market-monitor/internal/marketdata"
	"github.com/Rajchodisetti/market-monitor/internal/observ"
	"github.com/Rajchodisetti/market-monitor/internal/signal"
)

// Tier names as recorded in cooldown rows, metrics, and queue messages.
const (
	TierFast     = "fast"
	TierConfirm  = "confirm"
	TierValidate = "validate"
)

// forEachTicker walks the watchlist with at most maxWorkers concurrent
// workers. A ticker's failure is contained inside its own fn call; the walk
// always visits the rest of the list.
func forEachTicker(ctx context.Context, tickers []string, maxWorkers int, fn func(ctx context.Context, ticker string)) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(tk string) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, tk)
		}(ticker)
	}
	wg.Wait()
}

// FastTier is the quote-only early-warning pass. On a trigger it records a
// candidate in the cooldown store so the confirm tier picks the ticker up
// sooner; it never publishes to the queue.
type FastTier struct {
	Quotes     QuoteSource
	Store      cooldown.Store
	Refs       SessionRefSource
	Watchlist  []string
	Cfg        signal.FastConfig
	Cooldown   time.Duration
	MaxWorkers int

	mu         sync.Mutex
	lastQuotes map[string]*marketdata.Quote
}

func (t *FastTier) Run(ctx context.Context, now time.Time) {
	forEachTicker(ctx, t.Watchlist, t.MaxWorkers, func(ctx context.Context, ticker string) {
		t.evaluateTicker(ctx, ticker, now)
	})
}

func (t *FastTier) evaluateTicker(ctx context.Context, ticker string, now time.Time) {
	quote, err := t.Quotes.GetQuote(ctx, ticker)
	if err != nil {
		observ.TickersSkipped.WithLabelValues(TierFast, "quote_error").Inc()
		log.Warn().Err(err).Str("tier", TierFast).Str("ticker", ticker).Msg("ticker skipped")
		return
	}

	prevClose := 0.0
	if t.Refs != nil {
		if ref, err := t.Refs.SessionRef(ctx, ticker, now); err == nil {
			prevClose = ref.PrevClose
		}
	}

	res := signal.EvaluateQuote(quote, prevClose, t.swapLastQuote(ticker, quote), t.Cfg)
	if !res.Triggered {
		return
	}

	ok, err := t.Store.CheckAndSet(ctx, ticker, TierFast, res.Reasons, now, t.Cooldown)
	if err != nil {
		// Store trouble means we cannot prove the candidate is fresh; skip it.
		observ.TickersSkipped.WithLabelValues(TierFast, "cooldown_error").Inc()
		log.Error().Err(err).Str("tier", TierFast).Str("ticker", ticker).Msg("cooldown store unavailable, candidate dropped")
		return
	}
	if !ok {
		observ.CooldownBlocks.WithLabelValues(TierFast).Inc()
		return
	}

	observ.SignalsTriggered.WithLabelValues(TierFast, string(res.Priority)).Inc()
	log.Info().
		Str("tier", TierFast).
		Str("ticker", ticker).
		Strs("reasons", res.Reasons).
		Float64("confidence", res.Confidence).
		Msg("fast candidate recorded")
}

func (t *FastTier) swapLastQuote(ticker string, quote *marketdata.Quote) *marketdata.Quote {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastQuotes == nil {
		t.lastQuotes = make(map[string]*marketdata.Quote)
	}
	prev := t.lastQuotes[ticker]
	t.lastQuotes[ticker] = quote
	return prev
}

// ConfirmTier runs the full indicator battery over recent bars. It is the
// only tier that publishes entry messages, and only for triggers that clear
// the cooldown window.
type ConfirmTier struct {
	Data       MarketData
	Store      cooldown.Store
	Publisher  dispatch.Publisher
	Refs       SessionRefSource
	Watchlist  []string
	Cfg        signal.Config
	Cooldown   time.Duration
	Lookback   time.Duration
	BarPeriod  int // seconds
	FastPeriod int // seconds, finer series for timeframe alignment
	MaxWorkers int
}

func (t *ConfirmTier) Run(ctx context.Context, now time.Time) {
	forEachTicker(ctx, t.Watchlist, t.MaxWorkers, func(ctx context.Context, ticker string) {
		t.evaluateTicker(ctx, ticker, now)
	})
}

func (t *ConfirmTier) evaluateTicker(ctx context.Context, ticker string, now time.Time) {
	start := now.Add(-t.Lookback)
	series, err := t.Data.GetBars(ctx, ticker, t.BarPeriod, start, now)
	if err != nil {
		observ.TickersSkipped.WithLabelValues(TierConfirm, "bars_error").Inc()
		log.Warn().Err(err).Str("tier", TierConfirm).Str("ticker", ticker).Msg("ticker skipped")
		return
	}

	// The finer series only feeds timeframe alignment; evaluation proceeds
	// without it when the fetch fails.
	var fastSeries *marketdata.BarSeries
	if t.FastPeriod > 0 {
		fastSeries, err = t.Data.GetBars(ctx, ticker, t.FastPeriod, now.Add(-30*time.Minute), now)
		if err != nil {
			log.Debug().Err(err).Str("ticker", ticker).Msg("alignment series unavailable")
			fastSeries = nil
		}
	}

	var ref SessionRef
	if t.Refs != nil {
		if r, err := t.Refs.SessionRef(ctx, ticker, now); err == nil {
			ref = r
		}
	}

	res := signal.Evaluate(series, fastSeries, ref.SessionOpen, ref.PrevClose, t.Cfg)
	res.Ticker = ticker
	if !res.Triggered {
		return
	}

	ok, err := t.Store.CheckAndSet(ctx, ticker, TierConfirm, res.Reasons, now, t.Cooldown)
	if err != nil {
		observ.TickersSkipped.WithLabelValues(TierConfirm, "cooldown_error").Inc()
		log.Error().Err(err).Str("tier", TierConfirm).Str("ticker", ticker).Msg("cooldown store unavailable, dispatch suppressed")
		return
	}
	if !ok {
		observ.CooldownBlocks.WithLabelValues(TierConfirm).Inc()
		log.Debug().Str("tier", TierConfirm).Str("ticker", ticker).Msg("trigger inside cooldown window")
		return
	}

	observ.SignalsTriggered.WithLabelValues(TierConfirm, string(res.Priority)).Inc()
	log.Info().
		Str("tier", TierConfirm).
		Str("ticker", ticker).
		Strs("reasons", res.Reasons).
		Float64("confidence", res.Confidence).
		Str("priority", string(res.Priority)).
		Msg("signal confirmed")

	// The publisher retries and logs internally; a drop here is recovered by
	// the next confirm cycle.
	msg := dispatch.NewEntryMessage(res, dispatch.AnalysisWindow{Start: start, End: now})
	_ = t.Publisher.Publish(ctx, msg)
}

// ValidateTier re-checks recent confirm triggers. A ticker whose confirmation
// score drops below the invalidation floor gets one exit message; the tier
// never publishes fresh entries.
type ValidateTier struct {
	Bars         BarSource
	Store        cooldown.Store
	Publisher    dispatch.Publisher
	Cfg          signal.ValidateConfig
	RecentWindow time.Duration // confirm triggers newer than this are re-checked
	Cooldown     time.Duration // suppresses repeated exits for the same ticker
	Lookback     time.Duration
	BarPeriod    int // seconds
	MaxWorkers   int
}

func (t *ValidateTier) Run(ctx context.Context, now time.Time) {
	records, err := t.Store.TriggeredSince(ctx, TierConfirm, now.Add(-t.RecentWindow))
	if err != nil {
		log.Error().Err(err).Str("tier", TierValidate).Msg("cooldown store unavailable, tick aborted")
		return
	}
	if len(records) == 0 {
		return
	}

	tickers := make([]string, 0, len(records))
	for _, r := range records {
		tickers = append(tickers, r.Ticker)
	}
	forEachTicker(ctx, tickers, t.MaxWorkers, func(ctx context.Context, ticker string) {
		t.checkTicker(ctx, ticker, now)
	})
}

func (t *ValidateTier) checkTicker(ctx context.Context, ticker string, now time.Time) {
	start := now.Add(-t.Lookback)
	series, err := t.Bars.GetBars(ctx, ticker, t.BarPeriod, start, now)
	if err != nil {
		observ.TickersSkipped.WithLabelValues(TierValidate, "bars_error").Inc()
		log.Warn().Err(err).Str("tier", TierValidate).Str("ticker", ticker).Msg("ticker skipped")
		return
	}

	score := signal.ValidationScore(series, t.Cfg)
	if score >= t.Cfg.InvalidationFloor {
		return
	}

	ok, err := t.Store.CheckAndSet(ctx, ticker, TierValidate, []string{dispatch.ReasonInvalidated}, now, t.Cooldown)
	if err != nil {
		observ.TickersSkipped.WithLabelValues(TierValidate, "cooldown_error").Inc()
		log.Error().Err(err).Str("tier", TierValidate).Str("ticker", ticker).Msg("cooldown store unavailable, exit suppressed")
		return
	}
	if !ok {
		observ.CooldownBlocks.WithLabelValues(TierValidate).Inc()
		return
	}

	observ.SignalsTriggered.WithLabelValues(TierValidate, "exit").Inc()
	log.Info().
		Str("tier", TierValidate).
		Str("ticker", ticker).
		Float64("validation_score", score).
		Msg("signal invalidated, publishing exit")

	msg := dispatch.NewExitMessage(ticker, score, dispatch.AnalysisWindow{Start: start, End: now}, now)
	_ = t.Publisher.Publish(ctx, msg)
}
