package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// AlphaVantageProvider serves quotes (GLOBAL_QUOTE) and intraday bars
// (TIME_SERIES_INTRADAY) from the Alpha Vantage REST API.
type AlphaVantageProvider struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	config      AlphaVantageConfig
}

type AlphaVantageConfig struct {
	APIKey             string
	BaseURL            string // override for tests
	RateLimitPerMinute int
	TimeoutSeconds     int
	MaxRetries         int
	BackoffBaseMs      int
}

func NewAlphaVantageProvider(config AlphaVantageConfig) (*AlphaVantageProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("alphavantage: API key is required")
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 5 // free tier
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BackoffBaseMs <= 0 {
		config.BackoffBaseMs = 1000
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://www.alphavantage.co/query"
	}

	return &AlphaVantageProvider{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(config.RateLimitPerMinute)/60), 1),
		config:      config,
	}, nil
}

func (av *AlphaVantageProvider) Name() string { return "alphavantage" }

func (av *AlphaVantageProvider) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, NewBadSymbolError(av.Name(), ticker, "empty ticker")
	}

	params := url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {ticker},
		"apikey":   {av.apiKey},
	}
	body, err := av.doRequest(ctx, ticker, params)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return av.parseGlobalQuote(body, ticker)
}

func (av *AlphaVantageProvider) GetBars(ctx context.Context, ticker string, periodSeconds int, start, end time.Time) (*BarSeries, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, NewBadSymbolError(av.Name(), ticker, "empty ticker")
	}
	interval, err := avInterval(periodSeconds)
	if err != nil {
		return nil, NewProviderError(av.Name(), ticker, "unsupported bar period", err)
	}

	params := url.Values{
		"function":   {"TIME_SERIES_INTRADAY"},
		"symbol":     {ticker},
		"interval":   {interval},
		"outputsize": {"compact"},
		"apikey":     {av.apiKey},
	}
	body, err := av.doRequest(ctx, ticker, params)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return av.parseIntraday(body, ticker, periodSeconds, start, end)
}

// doRequest performs the HTTP call with rate limiting and bounded retries.
func (av *AlphaVantageProvider) doRequest(ctx context.Context, ticker string, params url.Values) (io.ReadCloser, error) {
	if err := av.rateLimiter.Wait(ctx); err != nil {
		return nil, NewNetworkError(av.Name(), ticker, "rate limit wait cancelled", err)
	}

	requestURL := av.baseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < av.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(av.config.BackoffBaseMs*(1<<attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, NewNetworkError(av.Name(), ticker, "retry cancelled", ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, NewNetworkError(av.Name(), ticker, "failed to create request", err)
		}
		resp, err := av.httpClient.Do(req)
		if err != nil {
			lastErr = NewNetworkError(av.Name(), ticker, "request failed", err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = NewRateLimitError(av.Name(), ticker, "API rate limit exceeded")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = NewProviderError(av.Name(), ticker, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(b)), nil)
			continue
		}
		return resp.Body, nil
	}
	return nil, lastErr
}

func (av *AlphaVantageProvider) parseGlobalQuote(body io.Reader, ticker string) (*Quote, error) {
	var response struct {
		GlobalQuote map[string]string `json:"Global Quote"`
		Note        string            `json:"Note"`
		Error       string            `json:"Error Message"`
	}
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, NewProviderError(av.Name(), ticker, "failed to parse response", err)
	}
	if response.Error != "" {
		return nil, NewProviderError(av.Name(), ticker, response.Error, nil)
	}
	if response.Note != "" {
		return nil, NewRateLimitError(av.Name(), ticker, response.Note)
	}
	if len(response.GlobalQuote) == 0 {
		return nil, NewEmptyPayloadError(av.Name(), ticker)
	}

	q := response.GlobalQuote
	price, err := strconv.ParseFloat(q["05. price"], 64)
	if err != nil {
		return nil, NewProviderError(av.Name(), ticker, "invalid price field", err)
	}
	volume, _ := strconv.ParseInt(q["06. volume"], 10, 64)

	ts := time.Now()
	if day, err := time.Parse("2006-01-02", q["07. latest trading day"]); err == nil {
		// Quote API has day resolution only; keep intraday recency.
		if !sameDay(day, ts) {
			ts = day.Add(16 * time.Hour)
		}
	}

	return &Quote{
		Ticker:    ticker,
		Price:     price,
		Volume:    volume,
		Timestamp: ts,
		Source:    av.Name(),
	}, nil
}

func (av *AlphaVantageProvider) parseIntraday(body io.Reader, ticker string, periodSeconds int, start, end time.Time) (*BarSeries, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, NewProviderError(av.Name(), ticker, "failed to parse response", err)
	}
	if msg, ok := raw["Error Message"]; ok {
		return nil, NewProviderError(av.Name(), ticker, string(msg), nil)
	}
	if msg, ok := raw["Note"]; ok {
		return nil, NewRateLimitError(av.Name(), ticker, string(msg))
	}

	var seriesRaw map[string]map[string]string
	for key, val := range raw {
		if key == "Meta Data" {
			continue
		}
		if err := json.Unmarshal(val, &seriesRaw); err == nil && len(seriesRaw) > 0 {
			break
		}
	}
	if len(seriesRaw) == 0 {
		return nil, NewEmptyPayloadError(av.Name(), ticker)
	}

	bars := make([]Bar, 0, len(seriesRaw))
	for tsStr, fields := range seriesRaw {
		ts, err := time.ParseInLocation("2006-01-02 15:04:05", tsStr, easternTime())
		if err != nil {
			continue
		}
		if ts.Before(start) || ts.After(end) {
			continue
		}
		open, _ := strconv.ParseFloat(fields["1. open"], 64)
		high, _ := strconv.ParseFloat(fields["2. high"], 64)
		low, _ := strconv.ParseFloat(fields["3. low"], 64)
		closePx, _ := strconv.ParseFloat(fields["4. close"], 64)
		volume, _ := strconv.ParseInt(fields["5. volume"], 10, 64)
		if closePx <= 0 {
			continue
		}
		bars = append(bars, Bar{
			Open: open, High: high, Low: low, Close: closePx,
			Volume: volume, Timestamp: ts, PeriodSeconds: periodSeconds,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	if len(bars) == 0 {
		return nil, NewEmptyPayloadError(av.Name(), ticker)
	}
	return &BarSeries{Ticker: ticker, Bars: bars, Source: av.Name()}, nil
}

func avInterval(periodSeconds int) (string, error) {
	switch periodSeconds {
	case 60:
		return "1min", nil
	case 300:
		return "5min", nil
	case 900:
		return "15min", nil
	case 1800:
		return "30min", nil
	case 3600:
		return "60min", nil
	default:
		return "", fmt.Errorf("no alphavantage interval for %ds bars", periodSeconds)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func easternTime() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}
