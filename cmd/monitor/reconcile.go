package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Rajchodisetti/market-monitor/internal/config"
	"github.com/Rajchodisetti/market-monitor/internal/observ"
	"github.com/Rajchodisetti/market-monitor/internal/outbox"
	"github.com/Rajchodisetti/market-monitor/internal/portfolio"
	"github.com/Rajchodisetti/market-monitor/internal/reconcile"
	"github.com/Rajchodisetti/market-monitor/internal/risk"
)

// newReconcileCmd resolves one proposed action against the position book,
// journals the resulting orders, and in paper mode applies simulated fills
// back to the book. The decision worker calls this path with its own output.
func newReconcileCmd() *cobra.Command {
	var (
		ticker     string
		action     string
		qty        int64
		confidence float64
		price      float64
		maxShares  int64
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Resolve a proposed action against the position book",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			observ.InitLogging(cfg.Logging.Level, cfg.Logging.Pretty)

			parsed, err := reconcile.ParseAction(action)
			if err != nil {
				return err
			}
			return runReconcile(cfg, ticker, parsed, qty, confidence, price, maxShares)
		},
	}
	cmd.Flags().StringVar(&ticker, "ticker", "", "ticker symbol")
	cmd.Flags().StringVar(&action, "action", "hold", "proposed action: buy, sell, short, cover, hold")
	cmd.Flags().Int64Var(&qty, "qty", 0, "proposed quantity")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "decision confidence in [0,1]")
	cmd.Flags().Float64Var(&price, "price", 0, "reference price for the share cap and paper fills")
	cmd.Flags().Int64Var(&maxShares, "max-shares", 0, "share cap override; 0 derives it from risk config")
	_ = cmd.MarkFlagRequired("ticker")
	return cmd
}

func runReconcile(cfg config.Root, ticker string, action reconcile.Action, qty int64, confidence, price float64, maxShares int64) error {
	book := portfolio.NewBook(cfg.Reconcile.BookPath)
	if err := book.Load(); err != nil {
		return err
	}
	pos := book.Snapshot(ticker)

	if maxShares == 0 {
		maxShares = deriveShareCap(cfg, ticker, price)
	}

	plan := reconcile.Reconcile(ticker, action, qty, confidence, cfg.Reconcile.ConfidenceThreshold, pos, maxShares)

	if !plan.NoOp() {
		journal, err := outbox.NewJournal(cfg.Reconcile.JournalPath, time.Duration(cfg.Reconcile.DedupeWindowSecs)*time.Second)
		if err != nil {
			return err
		}
		written, err := journal.RecordPlan(plan, confidence, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("journal plan: %w", err)
		}

		if cfg.Mode == "paper" && price > 0 {
			filler := outbox.NewPaperFiller(
				cfg.Paper.LatencyMsMin, cfg.Paper.LatencyMsMax,
				cfg.Paper.SlippageBpsMin, cfg.Paper.SlippageBpsMax,
			)
			for _, rec := range written {
				f := filler.Fill(rec, price)
				if err := book.ApplyFill(reconcile.Action(rec.Action), f); err != nil {
					return fmt.Errorf("apply fill: %w", err)
				}
				log.Info().
					Str("ticker", f.Ticker).
					Str("side", f.Side).
					Int64("quantity", f.Quantity).
					Float64("price", f.Price).
					Msg("paper fill applied")
			}
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

// deriveShareCap pulls recent bars for a volatility-adjusted cap. Without a
// price there is nothing to size against; the gateway failing degrades to the
// unadjusted dollar cap.
func deriveShareCap(cfg config.Root, ticker string, price float64) int64 {
	if price <= 0 {
		return 0
	}
	calc := risk.NewCalculator(risk.Config{
		MaxPositionUSD: cfg.Risk.MaxPositionUSD,
		ATRPeriod:      cfg.Risk.ATRPeriod,
		BaselineATRPct: cfg.Risk.BaselineATRPct,
		MultiplierMin:  cfg.Risk.MultiplierMin,
		MultiplierMax:  cfg.Risk.MultiplierMax,
	})

	gateway, err := buildGateway(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("gateway unavailable, using unadjusted share cap")
		return calc.MaxShares(nil, price)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	series, err := gateway.GetBars(ctx, ticker, 300, now.Add(-2*time.Hour), now)
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("bars unavailable, using unadjusted share cap")
		return calc.MaxShares(nil, price)
	}
	return calc.MaxShares(series, price)
}
