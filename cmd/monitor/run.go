package main

import (
	"context"
	"fmt"
	"net/http"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Rajchodisetti/market-monitor/internal/config"
	"github.com/Rajchodisetti/market-monitor/internal/cooldown"
	"github.com/Rajchodisetti/market-monitor/internal/dispatch"
	"github.com/Rajchodisetti/market-monitor/internal/marketdata"
	"github.com/Rajchodisetti/market-monitor/internal/observ"
	"github.com/Rajchodisetti/market-monitor/internal/scheduler"
	"github.com/Rajchodisetti/market-monitor/internal/signal"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring tiers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			observ.InitLogging(cfg.Logging.Level, cfg.Logging.Pretty)
			return runMonitor(cfg)
		},
	}
}

func runMonitor(cfg config.Root) error {
	started := time.Now()
	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := buildGateway(cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := buildCooldownStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher := buildPublisher(cfg)
	refs := scheduler.NewSessionRefSource(gateway)

	fast := &scheduler.FastTier{
		Quotes:     gateway,
		Store:      store,
		Refs:       refs,
		Watchlist:  cfg.Watchlist,
		Cfg:        fastSignalConfig(cfg),
		Cooldown:   time.Duration(cfg.Tiers.Fast.CooldownSecs) * time.Second,
		MaxWorkers: cfg.Tiers.Fast.MaxWorkers,
	}
	confirm := &scheduler.ConfirmTier{
		Data:       gateway,
		Store:      store,
		Publisher:  publisher,
		Refs:       refs,
		Watchlist:  cfg.Watchlist,
		Cfg:        confirmSignalConfig(cfg),
		Cooldown:   time.Duration(cfg.Tiers.Confirm.CooldownSecs) * time.Second,
		Lookback:   time.Duration(cfg.Tiers.Confirm.LookbackMins) * time.Minute,
		BarPeriod:  cfg.Tiers.Confirm.BarPeriodSecs,
		FastPeriod: cfg.Tiers.Confirm.FastBarPeriodSecs,
		MaxWorkers: cfg.Tiers.Confirm.MaxWorkers,
	}
	validate := &scheduler.ValidateTier{
		Bars:         gateway,
		Store:        store,
		Publisher:    publisher,
		Cfg:          validateSignalConfig(cfg),
		RecentWindow: time.Duration(cfg.Tiers.Validate.RecentWindowMins) * time.Minute,
		Cooldown:     time.Duration(cfg.Tiers.Validate.CooldownSecs) * time.Second,
		Lookback:     time.Duration(cfg.Tiers.Validate.LookbackMins) * time.Minute,
		BarPeriod:    cfg.Tiers.Validate.BarPeriodSecs,
		MaxWorkers:   cfg.Tiers.Validate.MaxWorkers,
	}

	sched := scheduler.New(scheduler.NewExchangeCalendar(cfg.CalendarMIC))
	sched.AddTier(scheduler.TierFast, time.Duration(cfg.Tiers.Fast.IntervalSecs)*time.Second, fast.Run)
	sched.AddTier(scheduler.TierConfirm, time.Duration(cfg.Tiers.Confirm.IntervalSecs)*time.Second, confirm.Run)
	sched.AddTier(scheduler.TierValidate, time.Duration(cfg.Tiers.Validate.IntervalSecs)*time.Second, validate.Run)

	mux := http.NewServeMux()
	mux.Handle("/metrics", observ.Handler())
	mux.Handle("/healthz", observ.HealthHandler(version, started))
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Info().
		Str("mode", cfg.Mode).
		Strs("watchlist", cfg.Watchlist).
		Str("version", version).
		Msg("monitor starting")

	sched.Run(ctx)
	log.Info().Msg("monitor stopped")
	return nil
}

// buildGateway constructs only the providers the config names, so a
// mock-only setup never requires live API keys.
func buildGateway(cfg config.Root) (*marketdata.Gateway, error) {
	built := make(map[string]marketdata.QuoteProvider)
	provider := func(name string) (marketdata.QuoteProvider, error) {
		if p, ok := built[name]; ok {
			return p, nil
		}
		var (
			p   marketdata.QuoteProvider
			err error
		)
		switch name {
		case "alphavantage":
			p, err = marketdata.NewAlphaVantageProvider(marketdata.AlphaVantageConfig{
				APIKey:             cfg.Providers.AlphaVantage.APIKey,
				BaseURL:            cfg.Providers.AlphaVantage.BaseURL,
				RateLimitPerMinute: cfg.Providers.AlphaVantage.RateLimitPerMin,
				TimeoutSeconds:     cfg.Providers.AlphaVantage.TimeoutMs / 1000,
				MaxRetries:         cfg.Providers.AlphaVantage.MaxRetries,
			})
		case "polygon":
			p, err = marketdata.NewPolygonProvider(marketdata.PolygonConfig{
				APIKey:             cfg.Providers.Polygon.APIKey,
				BaseURL:            cfg.Providers.Polygon.BaseURL,
				RateLimitPerMinute: cfg.Providers.Polygon.RateLimitPerMin,
				TimeoutSeconds:     cfg.Providers.Polygon.TimeoutMs / 1000,
				MaxRetries:         cfg.Providers.Polygon.MaxRetries,
			})
		case "mock":
			p = marketdata.NewMockProvider("mock")
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s provider: %w", name, err)
		}
		built[name] = p
		return p, nil
	}

	var chain []marketdata.QuoteProvider
	for _, name := range cfg.Providers.QuoteOrder {
		p, err := provider(name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}

	p, err := provider(cfg.Providers.BarsPrimary)
	if err != nil {
		return nil, err
	}
	barPrimary, ok := p.(marketdata.BarProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q does not serve bars", cfg.Providers.BarsPrimary)
	}

	return marketdata.NewGateway(chain, barPrimary, marketdata.GatewayConfig{
		CallTimeout:         time.Duration(cfg.Gateway.CallTimeoutMs) * time.Millisecond,
		ConsecutiveFailures: uint32(cfg.Gateway.BreakerFailures),
		BreakerCooldown:     time.Duration(cfg.Gateway.BreakerCooldownSecs) * time.Second,
	}), nil
}

func buildCooldownStore(cfg config.Root) (cooldown.Store, func(), error) {
	if cfg.Cooldown.SQLitePath == "" {
		log.Info().Msg("cooldown store: in-memory")
		return cooldown.NewMemoryStore(), func() {}, nil
	}
	store, err := cooldown.NewSQLiteStore(cfg.Cooldown.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("cooldown store: %w", err)
	}
	log.Info().Str("path", cfg.Cooldown.SQLitePath).Msg("cooldown store: sqlite")
	return store, func() { _ = store.Close() }, nil
}

func buildPublisher(cfg config.Root) dispatch.Publisher {
	if cfg.Mode == "dry-run" {
		return dryRunPublisher{}
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Queue.RedisAddr,
		DB:   cfg.Queue.RedisDB,
	})
	return dispatch.NewRedisPublisher(client,
		dispatch.WithQueueKey(cfg.Queue.Key),
		dispatch.WithMaxAttempts(cfg.Queue.MaxAttempts),
		dispatch.WithBaseDelay(time.Duration(cfg.Queue.BackoffBaseMs)*time.Millisecond),
	)
}

// dryRunPublisher logs messages instead of touching the queue.
type dryRunPublisher struct{}

func (dryRunPublisher) Publish(_ context.Context, msg dispatch.QueueMessage) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	log.Info().RawJSON("message", payload).Msg("dry-run publish")
	return nil
}

func fastSignalConfig(cfg config.Root) signal.FastConfig {
	return signal.FastConfig{
		PercentChangeThreshold: cfg.Tiers.Fast.PercentChangeThreshold,
		VelocityThreshold:      cfg.Tiers.Fast.VelocityThreshold,
		ConfidenceFloor:        cfg.Tiers.Fast.ConfidenceFloor,
	}
}

func confirmSignalConfig(cfg config.Root) signal.Config {
	m := cfg.Tiers.Confirm
	return signal.Config{
		GapThreshold:            m.GapThreshold,
		VelocityBars:            m.VelocityBars,
		VelocityThreshold:       m.VelocityThreshold,
		VolumeLookback:          m.VolumeLookback,
		VolumeRatioThreshold:    m.VolumeRatioThreshold,
		VolumeVelocityThreshold: m.VolumeVelocityThreshold,
		VWAPSigmaThreshold:      m.VWAPSigmaThreshold,
		BreakoutThreshold:       m.BreakoutThreshold,
		BollingerWindow:         m.BollingerWindow,
		BollingerK:              m.BollingerK,
		ATRWindow:               m.ATRWindow,
		ATRMultiplier:           m.ATRMultiplier,
		ConfidenceFloor:         m.ConfidenceFloor,
		Weights:                 signal.WeightsV1,
	}
}

func validateSignalConfig(cfg config.Root) signal.ValidateConfig {
	return signal.ValidateConfig{
		RSIWindow:         cfg.Tiers.Validate.RSIWindow,
		TrendBars:         cfg.Tiers.Validate.TrendBars,
		InvalidationFloor: cfg.Tiers.Validate.InvalidationFloor,
	}
}
