// Package config loads the monitor's YAML configuration, applies defaults,
// and rejects configs that cannot produce a working pipeline.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Logging struct {
	Level  string `yaml:"level"`  // trace | debug | info | warn | error
	Pretty bool   `yaml:"pretty"` // console writer instead of JSON
}

type Provider struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxRetries      int    `yaml:"max_retries"`
	TimeoutMs       int    `yaml:"timeout_ms"`
}

type Providers struct {
	// QuoteOrder is the fallback chain for quotes, first entry tried first.
	QuoteOrder   []string `yaml:"quote_order"`
	BarsPrimary  string   `yaml:"bars_primary"`
	AlphaVantage Provider `yaml:"alphavantage"`
	Polygon      Provider `yaml:"polygon"`
}

type Gateway struct {
	CallTimeoutMs       int `yaml:"call_timeout_ms"`
	BreakerFailures     int `yaml:"breaker_failures"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_seconds"`
}

type FastTier struct {
	IntervalSecs           int     `yaml:"interval_seconds"`
	CooldownSecs           int     `yaml:"cooldown_seconds"`
	PercentChangeThreshold float64 `yaml:"percent_change_threshold"`
	VelocityThreshold      float64 `yaml:"velocity_threshold"`
	ConfidenceFloor        float64 `yaml:"confidence_floor"`
	MaxWorkers             int     `yaml:"max_workers"`
}

type ConfirmTier struct {
	IntervalSecs            int     `yaml:"interval_seconds"`
	CooldownSecs            int     `yaml:"cooldown_seconds"`
	LookbackMins            int     `yaml:"lookback_minutes"`
	BarPeriodSecs           int     `yaml:"bar_period_seconds"`
	FastBarPeriodSecs       int     `yaml:"fast_bar_period_seconds"`
	MaxWorkers              int     `yaml:"max_workers"`
	GapThreshold            float64 `yaml:"gap_threshold"`
	VelocityBars            int     `yaml:"velocity_bars"`
	VelocityThreshold       float64 `yaml:"velocity_threshold"`
	VolumeLookback          int     `yaml:"volume_lookback"`
	VolumeRatioThreshold    float64 `yaml:"volume_ratio_threshold"`
	VolumeVelocityThreshold float64 `yaml:"volume_velocity_threshold"`
	VWAPSigmaThreshold      float64 `yaml:"vwap_sigma_threshold"`
	BreakoutThreshold       float64 `yaml:"breakout_threshold"`
	BollingerWindow         int     `yaml:"bollinger_window"`
	BollingerK              float64 `yaml:"bollinger_k"`
	ATRWindow               int     `yaml:"atr_window"`
	ATRMultiplier           float64 `yaml:"atr_multiplier"`
	ConfidenceFloor         float64 `yaml:"confidence_floor"`
}

type ValidateTier struct {
	IntervalSecs      int     `yaml:"interval_seconds"`
	CooldownSecs      int     `yaml:"cooldown_seconds"`
	RecentWindowMins  int     `yaml:"recent_window_minutes"`
	LookbackMins      int     `yaml:"lookback_minutes"`
	BarPeriodSecs     int     `yaml:"bar_period_seconds"`
	RSIWindow         int     `yaml:"rsi_window"`
	TrendBars         int     `yaml:"trend_bars"`
	InvalidationFloor float64 `yaml:"invalidation_floor"`
	MaxWorkers        int     `yaml:"max_workers"`
}

type Tiers struct {
	Fast     FastTier     `yaml:"fast"`
	Confirm  ConfirmTier  `yaml:"confirm"`
	Validate ValidateTier `yaml:"validate"`
}

type Queue struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	Key           string `yaml:"key"`
	MaxAttempts   int    `yaml:"max_attempts"`
	BackoffBaseMs int    `yaml:"backoff_base_ms"`
}

type Cooldown struct {
	// SQLitePath empty selects the in-memory store (dry runs and tests).
	SQLitePath string `yaml:"sqlite_path"`
}

type Reconcile struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	JournalPath         string  `yaml:"journal_path"`
	BookPath            string  `yaml:"book_path"`
	DedupeWindowSecs    int     `yaml:"dedupe_window_seconds"`
}

type Risk struct {
	MaxPositionUSD float64 `yaml:"max_position_usd"`
	ATRPeriod      int     `yaml:"atr_period"`
	BaselineATRPct float64 `yaml:"baseline_atr_pct"`
	MultiplierMin  float64 `yaml:"multiplier_min"`
	MultiplierMax  float64 `yaml:"multiplier_max"`
}

type Paper struct {
	LatencyMsMin   int `yaml:"latency_ms_min"`
	LatencyMsMax   int `yaml:"latency_ms_max"`
	SlippageBpsMin int `yaml:"slippage_bps_min"`
	SlippageBpsMax int `yaml:"slippage_bps_max"`
}

type Root struct {
	Mode        string    `yaml:"mode"` // paper | live | dry-run
	HTTPAddr    string    `yaml:"http_addr"`
	CalendarMIC string    `yaml:"calendar_mic"`
	Watchlist   []string  `yaml:"watchlist"`
	Logging     Logging   `yaml:"logging"`
	Providers   Providers `yaml:"providers"`
	Gateway     Gateway   `yaml:"gateway"`
	Tiers       Tiers     `yaml:"tiers"`
	Queue       Queue     `yaml:"queue"`
	Cooldown    Cooldown  `yaml:"cooldown"`
	Reconcile   Reconcile `yaml:"reconcile"`
	Risk        Risk      `yaml:"risk"`
	Paper       Paper     `yaml:"paper"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func applyDefaults(c *Root) {
	if c.Mode == "" {
		c.Mode = "paper"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.CalendarMIC == "" {
		c.CalendarMIC = "xnys"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if len(c.Providers.QuoteOrder) == 0 {
		c.Providers.QuoteOrder = []string{"alphavantage", "polygon"}
	}
	if c.Providers.BarsPrimary == "" {
		c.Providers.BarsPrimary = "alphavantage"
	}
	for _, p := range []*Provider{&c.Providers.AlphaVantage, &c.Providers.Polygon} {
		if p.RateLimitPerMin == 0 {
			p.RateLimitPerMin = 60
		}
		if p.MaxRetries == 0 {
			p.MaxRetries = 3
		}
		if p.TimeoutMs == 0 {
			p.TimeoutMs = 5000
		}
	}

	if c.Gateway.CallTimeoutMs == 0 {
		c.Gateway.CallTimeoutMs = 5000
	}
	if c.Gateway.BreakerFailures == 0 {
		c.Gateway.BreakerFailures = 3
	}
	if c.Gateway.BreakerCooldownSecs == 0 {
		c.Gateway.BreakerCooldownSecs = 60
	}

	f := &c.Tiers.Fast
	if f.IntervalSecs == 0 {
		f.IntervalSecs = 60
	}
	if f.CooldownSecs == 0 {
		f.CooldownSecs = 300
	}
	if f.PercentChangeThreshold == 0 {
		f.PercentChangeThreshold = 0.02
	}
	if f.VelocityThreshold == 0 {
		f.VelocityThreshold = 0.005
	}
	if f.ConfidenceFloor == 0 {
		f.ConfidenceFloor = 0.2
	}
	if f.MaxWorkers == 0 {
		f.MaxWorkers = 8
	}

	m := &c.Tiers.Confirm
	if m.IntervalSecs == 0 {
		m.IntervalSecs = 300
	}
	if m.CooldownSecs == 0 {
		m.CooldownSecs = 900
	}
	if m.LookbackMins == 0 {
		m.LookbackMins = 120
	}
	if m.BarPeriodSecs == 0 {
		m.BarPeriodSecs = 300
	}
	if m.FastBarPeriodSecs == 0 {
		m.FastBarPeriodSecs = 60
	}
	if m.MaxWorkers == 0 {
		m.MaxWorkers = 4
	}
	if m.GapThreshold == 0 {
		m.GapThreshold = 0.02
	}
	if m.VelocityBars == 0 {
		m.VelocityBars = 3
	}
	if m.VelocityThreshold == 0 {
		m.VelocityThreshold = 0.002
	}
	if m.VolumeLookback == 0 {
		m.VolumeLookback = 10
	}
	if m.VolumeRatioThreshold == 0 {
		m.VolumeRatioThreshold = 1.5
	}
	if m.VolumeVelocityThreshold == 0 {
		m.VolumeVelocityThreshold = 0.25
	}
	if m.VWAPSigmaThreshold == 0 {
		m.VWAPSigmaThreshold = 2.0
	}
	if m.BreakoutThreshold == 0 {
		m.BreakoutThreshold = 0.005
	}
	if m.BollingerWindow == 0 {
		m.BollingerWindow = 20
	}
	if m.BollingerK == 0 {
		m.BollingerK = 2.0
	}
	if m.ATRWindow == 0 {
		m.ATRWindow = 14
	}
	if m.ATRMultiplier == 0 {
		m.ATRMultiplier = 2.0
	}
	if m.ConfidenceFloor == 0 {
		m.ConfidenceFloor = 0.15
	}

	v := &c.Tiers.Validate
	if v.IntervalSecs == 0 {
		v.IntervalSecs = 900
	}
	if v.CooldownSecs == 0 {
		v.CooldownSecs = 3600
	}
	if v.RecentWindowMins == 0 {
		v.RecentWindowMins = 120
	}
	if v.LookbackMins == 0 {
		v.LookbackMins = 60
	}
	if v.BarPeriodSecs == 0 {
		v.BarPeriodSecs = 300
	}
	if v.RSIWindow == 0 {
		v.RSIWindow = 14
	}
	if v.TrendBars == 0 {
		v.TrendBars = 10
	}
	if v.InvalidationFloor == 0 {
		v.InvalidationFloor = 40
	}
	if v.MaxWorkers == 0 {
		v.MaxWorkers = 4
	}

	if c.Queue.RedisAddr == "" {
		c.Queue.RedisAddr = "localhost:6379"
	}
	if c.Queue.Key == "" {
		c.Queue.Key = "signals:pending"
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.BackoffBaseMs == 0 {
		c.Queue.BackoffBaseMs = 250
	}

	if c.Reconcile.ConfidenceThreshold == 0 {
		c.Reconcile.ConfidenceThreshold = 0.60
	}
	if c.Reconcile.JournalPath == "" {
		c.Reconcile.JournalPath = "data/orders.jsonl"
	}
	if c.Reconcile.BookPath == "" {
		c.Reconcile.BookPath = "data/book.json"
	}
	if c.Reconcile.DedupeWindowSecs == 0 {
		c.Reconcile.DedupeWindowSecs = 90
	}

	if c.Risk.MaxPositionUSD == 0 {
		c.Risk.MaxPositionUSD = 10_000
	}
	if c.Risk.ATRPeriod == 0 {
		c.Risk.ATRPeriod = 14
	}
	if c.Risk.BaselineATRPct == 0 {
		c.Risk.BaselineATRPct = 0.01
	}
	if c.Risk.MultiplierMin == 0 {
		c.Risk.MultiplierMin = 0.25
	}
	if c.Risk.MultiplierMax == 0 {
		c.Risk.MultiplierMax = 1.5
	}

	if c.Paper.LatencyMsMin == 0 {
		c.Paper.LatencyMsMin = 100
	}
	if c.Paper.LatencyMsMax == 0 {
		c.Paper.LatencyMsMax = 2000
	}
	if c.Paper.SlippageBpsMin == 0 {
		c.Paper.SlippageBpsMin = 1
	}
	if c.Paper.SlippageBpsMax == 0 {
		c.Paper.SlippageBpsMax = 5
	}
}

// Validate rejects configs the pipeline cannot run with. It is called from
// Load; a failed validation is fatal at startup, never at tick time.
func (c Root) Validate() error {
	switch c.Mode {
	case "paper", "live", "dry-run":
	default:
		return fmt.Errorf("mode must be paper, live, or dry-run, got %q", c.Mode)
	}
	if len(c.Watchlist) == 0 {
		return fmt.Errorf("watchlist is empty")
	}
	for _, name := range c.Providers.QuoteOrder {
		if name != "alphavantage" && name != "polygon" && name != "mock" {
			return fmt.Errorf("unknown quote provider %q", name)
		}
	}
	if p := c.Providers.BarsPrimary; p != "alphavantage" && p != "mock" {
		return fmt.Errorf("unknown bars provider %q", p)
	}
	if c.Tiers.Confirm.ConfidenceFloor < 0 || c.Tiers.Confirm.ConfidenceFloor > 1 {
		return fmt.Errorf("confirm confidence_floor must be in [0,1]")
	}
	if c.Reconcile.ConfidenceThreshold < 0 || c.Reconcile.ConfidenceThreshold > 1 {
		return fmt.Errorf("reconcile confidence_threshold must be in [0,1]")
	}
	if c.Tiers.Validate.InvalidationFloor < 0 || c.Tiers.Validate.InvalidationFloor > 100 {
		return fmt.Errorf("validate invalidation_floor must be in [0,100]")
	}
	if c.Paper.LatencyMsMax < c.Paper.LatencyMsMin {
		return fmt.Errorf("paper latency_ms_max %d is below latency_ms_min %d", c.Paper.LatencyMsMax, c.Paper.LatencyMsMin)
	}
	if c.Paper.SlippageBpsMax < c.Paper.SlippageBpsMin {
		return fmt.Errorf("paper slippage_bps_max %d is below slippage_bps_min %d", c.Paper.SlippageBpsMax, c.Paper.SlippageBpsMin)
	}
	return nil
}
