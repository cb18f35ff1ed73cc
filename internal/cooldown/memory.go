package cooldown

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps cooldown records in process memory. It is used by tests
// and by dry runs where no database path is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func key(ticker, tier string) string { return ticker + "|" + tier }

func (m *MemoryStore) GetLast(_ context.Context, ticker, tier string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[key(ticker, tier)]; ok {
		cp := r
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) Upsert(_ context.Context, ticker, tier string, reasons []string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key(ticker, tier)] = Record{
		Ticker:          ticker,
		Tier:            tier,
		LastTriggeredAt: now,
		LastReasons:     append([]string(nil), reasons...),
	}
	return nil
}

func (m *MemoryStore) CheckAndSet(_ context.Context, ticker, tier string, reasons []string, now time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[key(ticker, tier)]; ok && now.Sub(r.LastTriggeredAt) < window {
		return false, nil
	}
	m.records[key(ticker, tier)] = Record{
		Ticker:          ticker,
		Tier:            tier,
		LastTriggeredAt: now,
		LastReasons:     append([]string(nil), reasons...),
	}
	return true, nil
}

func (m *MemoryStore) TriggeredSince(_ context.Context, tier string, since time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.Tier == tier && r.LastTriggeredAt.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}
