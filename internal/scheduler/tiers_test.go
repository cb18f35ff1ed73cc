package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/market-monitor/internal/cooldown"
	"github.com/Rajchodisetti/market-monitor/internal/dispatch"
	"github.com/Rajchodisetti/market-monitor/internal/marketdata"
	"github.com/Rajchodisetti/market-monitor/internal/signal"
)

type capturePublisher struct {
	mu       sync.Mutex
	messages []dispatch.QueueMessage
}

func (p *capturePublisher) Publish(_ context.Context, msg dispatch.QueueMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturePublisher) all() []dispatch.QueueMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dispatch.QueueMessage(nil), p.messages...)
}

func confirmTierConfig() signal.Config {
	return signal.Config{
		GapThreshold:            0.02,
		VelocityBars:            3,
		VelocityThreshold:       0.002,
		VolumeLookback:          10,
		VolumeRatioThreshold:    1.5,
		VolumeVelocityThreshold: 0.25,
		VWAPSigmaThreshold:      2.0,
		BreakoutThreshold:       0.005,
		BollingerWindow:         20,
		BollingerK:              2.0,
		ATRWindow:               5,
		ATRMultiplier:           2.0,
		ConfidenceFloor:         0.1,
		Weights:                 signal.WeightsV1,
	}
}

func seriesWithVolumeSpike(ticker string) *marketdata.BarSeries {
	base := time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC)
	bars := make([]marketdata.Bar, 25)
	for i := range bars {
		bars[i] = marketdata.Bar{
			Open: 100, High: 100.2, Low: 99.8, Close: 100,
			Volume:    1_000_000,
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute), PeriodSeconds: 300,
		}
	}
	last := &bars[24]
	last.Open, last.High, last.Low, last.Close = 101.6, 101.6, 101.5, 101.6
	last.Volume = 3_860_000
	return &marketdata.BarSeries{Ticker: ticker, Bars: bars}
}

func decliningSeries(ticker string) *marketdata.BarSeries {
	base := time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC)
	bars := make([]marketdata.Bar, 30)
	price := 110.0
	for i := range bars {
		price -= 0.5
		bars[i] = marketdata.Bar{
			Open: price + 0.4, High: price + 0.5, Low: price - 0.1, Close: price,
			Volume:    1_000_000,
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute), PeriodSeconds: 300,
		}
	}
	return &marketdata.BarSeries{Ticker: ticker, Bars: bars}
}

func newConfirmTier(data MarketData, store cooldown.Store, pub dispatch.Publisher) *ConfirmTier {
	return &ConfirmTier{
		Data:      data,
		Store:     store,
		Publisher: pub,
		Watchlist: []string{"AAPL"},
		Cfg:       confirmTierConfig(),
		Cooldown:  15 * time.Minute,
		Lookback:  2 * time.Hour,
		BarPeriod: 300,
	}
}

func TestConfirmTier_PublishesOncePerCooldownWindow(t *testing.T) {
	provider := marketdata.NewMockProvider("mock")
	provider.SetBars("AAPL", seriesWithVolumeSpike("AAPL"))
	store := cooldown.NewMemoryStore()
	pub := &capturePublisher{}
	tier := newConfirmTier(provider, store, pub)

	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	tier.Run(context.Background(), now)
	tier.Run(context.Background(), now.Add(5*time.Minute))

	msgs := pub.all()
	require.Len(t, msgs, 1, "second trigger inside the cooldown window must not publish")
	assert.Equal(t, dispatch.KindEntry, msgs[0].Kind)
	assert.Equal(t, []string{"AAPL"}, msgs[0].Tickers)
	assert.Equal(t, dispatch.SourceConfirmTier, msgs[0].Source)
	assert.Contains(t, msgs[0].Signals, signal.ReasonVolumeSpike)

	// Past the window the same setup publishes again.
	tier.Run(context.Background(), now.Add(20*time.Minute))
	require.Len(t, pub.all(), 2)
}

func TestConfirmTier_RunsFullBattery(t *testing.T) {
	provider := marketdata.NewMockProvider("mock")
	provider.SetBars("AAPL", seriesWithVolumeSpike("AAPL"))
	store := cooldown.NewMemoryStore()
	pub := &capturePublisher{}
	tier := newConfirmTier(provider, store, pub)

	tier.Run(context.Background(), time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	snapshot := msgs[0].MarketSnapshot
	for _, metric := range []string{
		"gap_pct", "velocity_per_min", "volume_ratio", "volume_velocity",
		"vwap_deviation_sigma", "breakout_pct", "bollinger_position", "atr_expansion",
	} {
		assert.Contains(t, snapshot, metric, "battery metric %s missing from snapshot", metric)
	}
}

func TestConfirmTier_GapUsesSessionReferences(t *testing.T) {
	provider := marketdata.NewMockProvider("mock")
	provider.SetBars("AAPL", seriesWithVolumeSpike("AAPL"))
	store := cooldown.NewMemoryStore()
	pub := &capturePublisher{}
	tier := newConfirmTier(provider, store, pub)
	tier.Refs = staticRefs{PrevClose: 100, SessionOpen: 103}

	tier.Run(context.Background(), time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Signals, signal.ReasonGapUp)
	assert.InDelta(t, 0.03, msgs[0].MarketSnapshot["gap_pct"], 1e-9,
		"gap is measured from the session open, not the lookback window's first bar")
}

func TestConfirmTier_ContainsPerTickerFailures(t *testing.T) {
	provider := marketdata.NewMockProvider("mock")
	provider.SetBars("MSFT", seriesWithVolumeSpike("MSFT"))
	// AAPL has no bars seeded, so its fetch fails; MSFT must still publish.
	store := cooldown.NewMemoryStore()
	pub := &capturePublisher{}
	tier := newConfirmTier(provider, store, pub)
	tier.Watchlist = []string{"AAPL", "MSFT"}

	tier.Run(context.Background(), time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"MSFT"}, msgs[0].Tickers)
}

func TestFastTier_RecordsCandidateWithoutPublishing(t *testing.T) {
	provider := marketdata.NewMockProvider("mock")
	provider.SetQuote("AAPL", 103.0, 500_000)
	store := cooldown.NewMemoryStore()
	tier := &FastTier{
		Quotes:    provider,
		Store:     store,
		Refs:      staticRefs{PrevClose: 100.0},
		Watchlist: []string{"AAPL"},
		Cfg: signal.FastConfig{
			PercentChangeThreshold: 0.02,
			VelocityThreshold:      0.005,
			ConfidenceFloor:        0.2,
		},
		Cooldown: 5 * time.Minute,
	}

	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	tier.Run(context.Background(), now)

	rec, err := store.GetLast(context.Background(), "AAPL", TierFast)
	require.NoError(t, err)
	require.NotNil(t, rec, "a 3%% move must leave a fast candidate record")
	assert.Contains(t, rec.LastReasons, signal.ReasonGapUp)
}

type staticRefs SessionRef

func (s staticRefs) SessionRef(context.Context, string, time.Time) (SessionRef, error) {
	return SessionRef(s), nil
}

func TestValidateTier_PublishesExitOnceWhenScoreCollapses(t *testing.T) {
	provider := marketdata.NewMockProvider("mock")
	provider.SetBars("AAPL", decliningSeries("AAPL"))
	store := cooldown.NewMemoryStore()
	pub := &capturePublisher{}

	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(context.Background(), "AAPL", TierConfirm, []string{"volume_spike"}, now.Add(-30*time.Minute)))

	tier := &ValidateTier{
		Bars:         provider,
		Store:        store,
		Publisher:    pub,
		Cfg:          signal.ValidateConfig{RSIWindow: 14, TrendBars: 10, InvalidationFloor: 40},
		RecentWindow: 2 * time.Hour,
		Cooldown:     time.Hour,
		Lookback:     time.Hour,
		BarPeriod:    300,
	}

	tier.Run(context.Background(), now)
	tier.Run(context.Background(), now.Add(15*time.Minute))

	msgs := pub.all()
	require.Len(t, msgs, 1, "exit must be deduped inside the validate cooldown")
	assert.Equal(t, dispatch.KindExit, msgs[0].Kind)
	assert.Equal(t, dispatch.ReasonInvalidated, msgs[0].Reason)
	assert.Equal(t, []string{"AAPL"}, msgs[0].Tickers)
	assert.Less(t, msgs[0].ValidationScore, 40.0)
}

func TestValidateTier_NoExitWhileTrendHolds(t *testing.T) {
	provider := marketdata.NewMockProvider("mock")
	provider.SetBars("AAPL", seriesWithVolumeSpike("AAPL"))
	store := cooldown.NewMemoryStore()
	pub := &capturePublisher{}

	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(context.Background(), "AAPL", TierConfirm, []string{"volume_spike"}, now.Add(-30*time.Minute)))

	tier := &ValidateTier{
		Bars:         provider,
		Store:        store,
		Publisher:    pub,
		Cfg:          signal.ValidateConfig{RSIWindow: 14, TrendBars: 10, InvalidationFloor: 40},
		RecentWindow: 2 * time.Hour,
		Cooldown:     time.Hour,
		Lookback:     time.Hour,
		BarPeriod:    300,
	}
	tier.Run(context.Background(), now)

	assert.Empty(t, pub.all())
}

func TestClosedMarket_MakesNoProviderCalls(t *testing.T) {
	provider := marketdata.NewMockProvider("mock")
	provider.SetBars("AAPL", seriesWithVolumeSpike("AAPL"))
	store := cooldown.NewMemoryStore()
	pub := &capturePublisher{}
	tier := newConfirmTier(provider, store, pub)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	saturday := time.Date(2025, 6, 7, 12, 0, 0, 0, ny)

	s := New(&ExchangeCalendar{fallback: true, loc: ny}, WithClock(func() time.Time { return saturday }))
	s.AddTier(TierConfirm, time.Minute, tier.Run)
	s.fire(context.Background(), s.tiers[0])
	s.wg.Wait()

	assert.Zero(t, provider.Calls(), "closed market must make zero provider calls")
	assert.Empty(t, pub.all())
}
