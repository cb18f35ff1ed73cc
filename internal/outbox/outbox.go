// Package outbox journals emitted orders to an append-only JSONL file and
// answers idempotency queries over a dedupe window, so a replayed or retried
// reconciliation cannot double-submit the same order.
package outbox

import (
	"bufio"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rajchodisetti/market-monitor/internal/reconcile"
)

// OrderRecord is one journaled order. Records are immutable once appended.
type OrderRecord struct {
	ID             string    `json:"id"`
	Ticker         string    `json:"ticker"`
	Action         string    `json:"action"`
	Quantity       int64     `json:"quantity"`
	Reason         string    `json:"reason"`
	Confidence     float64   `json:"confidence"`
	Timestamp      time.Time `json:"timestamp"`
	IdempotencyKey string    `json:"idempotency_key"`
}

type journalEntry struct {
	Type  string      `json:"type"`
	Data  OrderRecord `json:"data"`
	Event time.Time   `json:"event"`
}

// Journal is the append-only order log. Writes are serialized; the dedupe
// check and the append happen under one lock so concurrent reconciles of the
// same ticker cannot both pass the idempotency gate.
type Journal struct {
	mu           sync.Mutex
	path         string
	dedupeWindow time.Duration
}

func NewJournal(path string, dedupeWindow time.Duration) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &Journal{path: path, dedupeWindow: dedupeWindow}, nil
}

// IdempotencyKey identifies an order independent of when it was produced, so
// the same plan regenerated within the dedupe window maps to the same key.
func IdempotencyKey(ticker string, action reconcile.Action, quantity int64) string {
	data := fmt.Sprintf("%s|%s|%d", ticker, action, quantity)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum[:8])
}

// RecordPlan journals every order in the plan, skipping orders whose
// idempotency key already appears inside the dedupe window. It returns the
// records actually written.
func (j *Journal) RecordPlan(plan reconcile.Plan, confidence float64, now time.Time) ([]OrderRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var written []OrderRecord
	for _, order := range plan.Orders {
		key := IdempotencyKey(plan.Ticker, order.Action, order.Quantity)
		dup, err := j.hasRecentLocked(key, now)
		if err != nil {
			return written, err
		}
		if dup {
			log.Warn().
				Str("ticker", plan.Ticker).
				Str("action", string(order.Action)).
				Int64("quantity", order.Quantity).
				Msg("duplicate order suppressed by journal")
			continue
		}
		rec := OrderRecord{
			// Action is part of the ID so the two legs of a conflict plan,
			// journaled at the same instant, stay distinguishable.
			ID:             fmt.Sprintf("order_%s_%s_%d", plan.Ticker, order.Action, now.UnixNano()),
			Ticker:         plan.Ticker,
			Action:         string(order.Action),
			Quantity:       order.Quantity,
			Reason:         order.Reason,
			Confidence:     confidence,
			Timestamp:      now,
			IdempotencyKey: key,
		}
		if err := j.appendLocked(rec, now); err != nil {
			return written, err
		}
		written = append(written, rec)
	}
	return written, nil
}

// HasRecentOrder reports whether an order with this key was journaled inside
// the dedupe window.
func (j *Journal) HasRecentOrder(key string, now time.Time) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.hasRecentLocked(key, now)
}

func (j *Journal) appendLocked(rec OrderRecord, now time.Time) error {
	entry := journalEntry{Type: "order", Data: rec, Event: now}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

func (j *Journal) hasRecentLocked(key string, now time.Time) (bool, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	cutoff := now.Add(-j.dedupeWindow)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A torn trailing line from a crash is skipped, not fatal.
			continue
		}
		if entry.Type != "order" || entry.Event.Before(cutoff) {
			continue
		}
		if entry.Data.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, scanner.Err()
}
