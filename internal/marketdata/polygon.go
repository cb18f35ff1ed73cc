package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// PolygonProvider serves quotes from the Polygon.io last-trade API. It is the
// usual second link in the quote fallback chain; it has far higher rate limits
// than Alpha Vantage but its intraday bars use different adjustment
// conventions, so it is quote-only here.
type PolygonProvider struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	config      PolygonConfig
}

type PolygonConfig struct {
	APIKey             string
	BaseURL            string // override for tests
	RateLimitPerMinute int
	TimeoutSeconds     int
	MaxRetries         int
	BackoffBaseMs      int
}

func NewPolygonProvider(config PolygonConfig) (*PolygonProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("polygon: API key is required")
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 100
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 5
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BackoffBaseMs <= 0 {
		config.BackoffBaseMs = 500
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.polygon.io"
	}

	return &PolygonProvider{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(config.RateLimitPerMinute)/60), 2),
		config:      config,
	}, nil
}

func (p *PolygonProvider) Name() string { return "polygon" }

func (p *PolygonProvider) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, NewBadSymbolError(p.Name(), ticker, "empty ticker")
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, NewNetworkError(p.Name(), ticker, "rate limit wait cancelled", err)
	}

	params := url.Values{"apikey": {p.apiKey}}
	requestURL := fmt.Sprintf("%s/v2/last/trade/%s?%s", p.baseURL, ticker, params.Encode())

	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(p.config.BackoffBaseMs*(1<<attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, NewNetworkError(p.Name(), ticker, "retry cancelled", ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, NewNetworkError(p.Name(), ticker, "failed to create request", err)
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = NewNetworkError(p.Name(), ticker, "request failed", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = NewRateLimitError(p.Name(), ticker, "API rate limit exceeded")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = NewProviderError(p.Name(), ticker, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(b)), nil)
			continue
		}

		quote, err := p.parseLastTrade(resp.Body, ticker)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return quote, nil
	}
	return nil, lastErr
}

func (p *PolygonProvider) parseLastTrade(body io.Reader, ticker string) (*Quote, error) {
	var response struct {
		Status  string `json:"status"`
		Results struct {
			T  string  `json:"T"` // ticker
			P  float64 `json:"p"` // price
			S  int64   `json:"s"` // size
			T1 int64   `json:"t"` // sip timestamp, nanoseconds
		} `json:"results"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, NewProviderError(p.Name(), ticker, "failed to parse response", err)
	}
	if response.Status != "OK" {
		msg := response.Error
		if msg == "" {
			msg = response.Message
		}
		if msg == "" {
			msg = "non-OK status: " + response.Status
		}
		return nil, NewProviderError(p.Name(), ticker, msg, nil)
	}
	if response.Results.T != "" && response.Results.T != ticker {
		return nil, NewBadSymbolError(p.Name(), ticker, "ticker mismatch in response")
	}
	if response.Results.P <= 0 {
		return nil, NewEmptyPayloadError(p.Name(), ticker)
	}

	return &Quote{
		Ticker:    ticker,
		Price:     response.Results.P,
		Volume:    response.Results.S,
		Timestamp: time.Unix(0, response.Results.T1),
		Source:    p.Name(),
	}, nil
}
