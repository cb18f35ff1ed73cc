package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Rajchodisetti/market-monitor/internal/observ"
)

// Gateway unifies quote and bar providers behind one interface. Quotes use an
// ordered fallback chain; bars use a single designated primary so the series
// keeps one source's adjustment and timezone conventions.
//
// The gateway holds no per-call state; it is safe for concurrent use.
type Gateway struct {
	quoteProviders []QuoteProvider
	barPrimary     BarProvider
	breakers       map[string]*gobreaker.CircuitBreaker
	callTimeout    time.Duration
}

// GatewayConfig tunes failure isolation for the provider chain.
type GatewayConfig struct {
	CallTimeout         time.Duration
	ConsecutiveFailures uint32        // breaker trips after this many in a row
	BreakerCooldown     time.Duration // open -> half-open probe delay
}

func NewGateway(quoteProviders []QuoteProvider, barPrimary BarProvider, cfg GatewayConfig) *Gateway {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker)
	register := func(name string) {
		if _, ok := breakers[name]; ok {
			return
		}
		st := gobreaker.Settings{
			Name:    name,
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("provider", name).
					Str("from", from.String()).Str("to", to.String()).
					Msg("provider breaker state change")
			},
		}
		breakers[name] = gobreaker.NewCircuitBreaker(st)
	}
	for _, p := range quoteProviders {
		register(p.Name())
	}
	if barPrimary != nil {
		register(barPrimary.Name())
	}

	return &Gateway{
		quoteProviders: quoteProviders,
		barPrimary:     barPrimary,
		breakers:       breakers,
		callTimeout:    cfg.CallTimeout,
	}
}

// GetQuote tries providers in order and returns the first valid quote tagged
// with its source. Transport errors, invalid payloads, and open breakers all
// advance to the next provider. When every provider fails it returns ErrNoData;
// callers must treat that as "skip this ticker this cycle".
func (g *Gateway) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("%w: empty ticker", ErrNoData)
	}

	var lastErr error
	for i, p := range g.quoteProviders {
		quote, err := g.quoteFrom(ctx, p, ticker)
		if err != nil {
			observ.ProviderRequests.WithLabelValues(p.Name(), "error").Inc()
			log.Debug().Str("ticker", ticker).Str("provider", p.Name()).
				Err(err).Msg("quote provider failed, trying next")
			if i+1 < len(g.quoteProviders) {
				observ.ProviderFallbacks.WithLabelValues(p.Name(), g.quoteProviders[i+1].Name()).Inc()
			}
			lastErr = err
			continue
		}
		observ.ProviderRequests.WithLabelValues(p.Name(), "ok").Inc()
		return quote, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoData, ticker, lastErr)
	}
	return nil, fmt.Errorf("%w: %s: no quote providers configured", ErrNoData, ticker)
}

func (g *Gateway) quoteFrom(ctx context.Context, p QuoteProvider, ticker string) (*Quote, error) {
	cb := g.breakers[p.Name()]
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	res, err := cb.Execute(func() (any, error) {
		q, err := p.GetQuote(callCtx, ticker)
		if err != nil {
			return nil, err
		}
		if q == nil {
			return nil, NewEmptyPayloadError(p.Name(), ticker)
		}
		if err := ValidateQuote(q); err != nil {
			return nil, NewProviderError(p.Name(), ticker, "quote failed validation", err)
		}
		q.Source = p.Name()
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Quote), nil
}

// GetBars fetches bars from the single primary provider, without fallback.
// A failure skips the ticker for the cycle; the provider error is returned
// verbatim so the caller can log ticker + provider + cause.
func (g *Gateway) GetBars(ctx context.Context, ticker string, periodSeconds int, start, end time.Time) (*BarSeries, error) {
	ticker = NormalizeTicker(ticker)
	if g.barPrimary == nil {
		return nil, fmt.Errorf("%w: %s: no bar provider configured", ErrNoData, ticker)
	}

	cb := g.breakers[g.barPrimary.Name()]
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	res, err := cb.Execute(func() (any, error) {
		series, err := g.barPrimary.GetBars(callCtx, ticker, periodSeconds, start, end)
		if err != nil {
			return nil, err
		}
		if series == nil || series.Len() == 0 {
			return nil, NewEmptyPayloadError(g.barPrimary.Name(), ticker)
		}
		if err := series.Validate(); err != nil {
			return nil, NewProviderError(g.barPrimary.Name(), ticker, "bar series failed validation", err)
		}
		series.Source = g.barPrimary.Name()
		return series, nil
	})
	if err != nil {
		observ.ProviderRequests.WithLabelValues(g.barPrimary.Name(), "error").Inc()
		return nil, err
	}
	observ.ProviderRequests.WithLabelValues(g.barPrimary.Name(), "ok").Inc()
	return res.(*BarSeries), nil
}
