package marketdata

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a deterministic in-memory provider for tests and the
// offline scan path. It serves both quotes and bars and can be told to fail.
type MockProvider struct {
	mu        sync.RWMutex
	name      string
	quotes    map[string]*Quote
	bars      map[string]*BarSeries
	quoteErr  error
	barErr    error
	callCount int
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:   name,
		quotes: make(map[string]*Quote),
		bars:   make(map[string]*BarSeries),
	}
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) SetQuote(ticker string, price float64, volume int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticker = NormalizeTicker(ticker)
	m.quotes[ticker] = &Quote{
		Ticker:    ticker,
		Price:     price,
		Volume:    volume,
		Timestamp: time.Now(),
		Source:    m.name,
	}
}

func (m *MockProvider) SetBars(ticker string, series *BarSeries) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[NormalizeTicker(ticker)] = series
}

// FailQuotes makes every GetQuote call return err (nil restores normal behavior).
func (m *MockProvider) FailQuotes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteErr = err
}

// FailBars makes every GetBars call return err.
func (m *MockProvider) FailBars(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.barErr = err
}

// Calls reports how many data requests this provider has served or rejected.
func (m *MockProvider) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

func (m *MockProvider) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	m.mu.Lock()
	m.callCount++
	err := m.quoteErr
	q := m.quotes[NormalizeTicker(ticker)]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, NewEmptyPayloadError(m.name, ticker)
	}
	out := *q
	out.Timestamp = time.Now()
	return &out, nil
}

func (m *MockProvider) GetBars(ctx context.Context, ticker string, periodSeconds int, start, end time.Time) (*BarSeries, error) {
	m.mu.Lock()
	m.callCount++
	err := m.barErr
	s := m.bars[NormalizeTicker(ticker)]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, NewEmptyPayloadError(m.name, ticker)
	}
	return s, nil
}
