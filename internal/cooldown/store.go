// Package cooldown is the deduplication ledger: per (ticker, tier) records of
// the last trigger, consulted before any dispatch. It is the only mutable
// state shared between tiers.
package cooldown

import (
	"context"
	"time"
)

// Record is the persistent per-ticker, per-tier trigger state. Created on
// first trigger, overwritten on each subsequent one, never deleted; stale
// records age out of relevance once their window elapses.
type Record struct {
	Ticker          string    `json:"ticker"`
	Tier            string    `json:"tier"`
	LastTriggeredAt time.Time `json:"last_triggered_at"`
	LastReasons     []string  `json:"last_reasons"`
}

// Store is the dedup ledger contract.
//
// CheckAndSet is the atomic read-modify-write the tiers rely on: it returns
// true and records the trigger only if the previous trigger for (ticker,
// tier) is at least window old. Two concurrent calls for the same key must
// never both return true within one window. On any store error callers must
// fail open toward "skip dispatch": better a missed signal than a spammed
// queue.
type Store interface {
	GetLast(ctx context.Context, ticker, tier string) (*Record, error)
	Upsert(ctx context.Context, ticker, tier string, reasons []string, now time.Time) error
	CheckAndSet(ctx context.Context, ticker, tier string, reasons []string, now time.Time, window time.Duration) (bool, error)

	// TriggeredSince lists tickers whose record for tier is newer than since.
	// The validate tier uses it to find recent confirmations worth re-checking.
	TriggeredSince(ctx context.Context, tier string, since time.Time) ([]Record, error)
}
