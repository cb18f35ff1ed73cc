package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsFillMinimalConfig(t *testing.T) {
	path := writeConfig(t, `
watchlist: [AAPL, MSFT]
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "paper", c.Mode)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "xnys", c.CalendarMIC)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, []string{"alphavantage", "polygon"}, c.Providers.QuoteOrder)
	assert.Equal(t, "alphavantage", c.Providers.BarsPrimary)
	assert.Equal(t, 300, c.Tiers.Confirm.IntervalSecs)
	assert.Equal(t, 900, c.Tiers.Confirm.CooldownSecs)
	assert.InDelta(t, 1.5, c.Tiers.Confirm.VolumeRatioThreshold, 1e-9)
	assert.InDelta(t, 0.60, c.Reconcile.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "signals:pending", c.Queue.Key)
	assert.Equal(t, 3, c.Queue.MaxAttempts)
	assert.InDelta(t, 40.0, c.Tiers.Validate.InvalidationFloor, 1e-9)
}

func TestLoad_ExplicitValuesSurviveDefaulting(t *testing.T) {
	path := writeConfig(t, `
mode: dry-run
watchlist: [NVDA]
tiers:
  confirm:
    interval_seconds: 120
    volume_ratio_threshold: 2.5
queue:
  redis_addr: redis.internal:6379
  key: signals:staging
reconcile:
  confidence_threshold: 0.75
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dry-run", c.Mode)
	assert.Equal(t, 120, c.Tiers.Confirm.IntervalSecs)
	assert.InDelta(t, 2.5, c.Tiers.Confirm.VolumeRatioThreshold, 1e-9)
	assert.Equal(t, "redis.internal:6379", c.Queue.RedisAddr)
	assert.Equal(t, "signals:staging", c.Queue.Key)
	assert.InDelta(t, 0.75, c.Reconcile.ConfidenceThreshold, 1e-9)
	// Untouched fields still default.
	assert.Equal(t, 900, c.Tiers.Confirm.CooldownSecs)
}

func TestLoad_RejectsEmptyWatchlist(t *testing.T) {
	path := writeConfig(t, `
mode: paper
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watchlist")
}

func TestLoad_RejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, `
mode: yolo
watchlist: [AAPL]
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
watchlist: [AAPL]
providers:
  quote_order: [bloomberg]
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quote provider")
}

func TestLoad_RejectsOutOfRangeThreshold(t *testing.T) {
	path := writeConfig(t, `
watchlist: [AAPL]
reconcile:
  confidence_threshold: 1.5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence_threshold")
}

func TestLoad_RejectsInvertedPaperRanges(t *testing.T) {
	// Inverted latency or slippage bounds would panic at fill time.
	path := writeConfig(t, `
watchlist: [AAPL]
paper:
  latency_ms_min: 500
  latency_ms_max: 100
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latency_ms_max")

	path = writeConfig(t, `
watchlist: [AAPL]
paper:
  slippage_bps_min: 10
  slippage_bps_max: 2
`)
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slippage_bps_max")
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
