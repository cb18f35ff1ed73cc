package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rajchodisetti/market-monitor/internal/config"
	"github.com/Rajchodisetti/market-monitor/internal/observ"
	"github.com/Rajchodisetti/market-monitor/internal/scheduler"
	"github.com/Rajchodisetti/market-monitor/internal/signal"
)

// newScanCmd runs one confirm-tier evaluation pass and prints the results,
// without touching the queue or the cooldown store. Useful for threshold
// tuning against live data.
func newScanCmd() *cobra.Command {
	var (
		tickers []string
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Evaluate the watchlist once and print results as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			observ.InitLogging(cfg.Logging.Level, cfg.Logging.Pretty)
			if len(tickers) > 0 {
				cfg.Watchlist = tickers
			}
			if offline {
				cfg.Providers.QuoteOrder = []string{"mock"}
				cfg.Providers.BarsPrimary = "mock"
			}
			return runScan(cfg)
		},
	}
	cmd.Flags().StringSliceVar(&tickers, "tickers", nil, "override the watchlist")
	cmd.Flags().BoolVar(&offline, "offline", false, "use the deterministic mock provider instead of live data")
	return cmd
}

func runScan(cfg config.Root) error {
	gateway, err := buildGateway(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	lookback := time.Duration(cfg.Tiers.Confirm.LookbackMins) * time.Minute
	sigCfg := confirmSignalConfig(cfg)
	refs := scheduler.NewSessionRefSource(gateway)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for _, ticker := range cfg.Watchlist {
		series, err := gateway.GetBars(ctx, ticker, cfg.Tiers.Confirm.BarPeriodSecs, now.Add(-lookback), now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", ticker, err)
			continue
		}
		var ref scheduler.SessionRef
		if r, err := refs.SessionRef(ctx, ticker, now); err == nil {
			ref = r
		}
		res := signal.Evaluate(series, nil, ref.SessionOpen, ref.PrevClose, sigCfg)
		res.Ticker = ticker
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}
