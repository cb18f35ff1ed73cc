// Package portfolio tracks the paper position book: long and short sides per
// ticker with their cost bases, persisted as a single JSON file. The book is
// the PositionSnapshot source for reconciliation when no broker is wired.
package portfolio

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Rajchodisetti/market-monitor/internal/outbox"
	"github.com/Rajchodisetti/market-monitor/internal/reconcile"
)

// Position holds both sides of a ticker. Quantities are non-negative; a
// ticker can carry a long and a short leg at the same time mid-reconcile,
// though plans always close the opposing side first.
type Position struct {
	LongQty        int64     `json:"long_qty"`
	ShortQty       int64     `json:"short_qty"`
	LongCostBasis  float64   `json:"long_cost_basis"`
	ShortCostBasis float64   `json:"short_cost_basis"`
	LastTradeAt    time.Time `json:"last_trade_at"`
}

type bookState struct {
	Version   int64               `json:"version"`
	UpdatedAt time.Time           `json:"updated_at"`
	Positions map[string]Position `json:"positions"`
}

// Book is the mutable position book. All methods are safe for concurrent use.
type Book struct {
	mu    sync.RWMutex
	path  string
	state bookState
}

func NewBook(path string) *Book {
	return &Book{
		path:  path,
		state: bookState{Positions: make(map[string]Position)},
	}
}

// Load reads the book from disk. A missing file is an empty book, not an
// error.
func (b *Book) Load() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read position book: %w", err)
	}
	if err := json.Unmarshal(data, &b.state); err != nil {
		return fmt.Errorf("parse position book: %w", err)
	}
	if b.state.Positions == nil {
		b.state.Positions = make(map[string]Position)
	}
	return nil
}

// Snapshot returns the reconciliation view of a ticker. Unknown tickers get a
// flat snapshot.
func (b *Book) Snapshot(ticker string) reconcile.PositionSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos := b.state.Positions[ticker]
	return reconcile.PositionSnapshot{
		Ticker:         ticker,
		LongQty:        pos.LongQty,
		ShortQty:       pos.ShortQty,
		LongCostBasis:  pos.LongCostBasis,
		ShortCostBasis: pos.ShortCostBasis,
	}
}

// ApplyFill mutates the book with one executed order and persists the result.
func (b *Book) ApplyFill(action reconcile.Action, fill outbox.Fill) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos := b.state.Positions[fill.Ticker]
	switch action {
	case reconcile.ActionBuy:
		pos.LongCostBasis = addToBasis(pos.LongCostBasis, pos.LongQty, fill.Price, fill.Quantity)
		pos.LongQty += fill.Quantity
	case reconcile.ActionSell:
		pos.LongQty -= fill.Quantity
		if pos.LongQty <= 0 {
			pos.LongQty = 0
			pos.LongCostBasis = 0
		}
	case reconcile.ActionShort:
		pos.ShortCostBasis = addToBasis(pos.ShortCostBasis, pos.ShortQty, fill.Price, fill.Quantity)
		pos.ShortQty += fill.Quantity
	case reconcile.ActionCover:
		pos.ShortQty -= fill.Quantity
		if pos.ShortQty <= 0 {
			pos.ShortQty = 0
			pos.ShortCostBasis = 0
		}
	default:
		return fmt.Errorf("cannot apply fill for action %q", action)
	}
	pos.LastTradeAt = fill.Timestamp
	b.state.Positions[fill.Ticker] = pos

	return b.saveLocked()
}

// Tickers lists every ticker with an open position on either side.
func (b *Book) Tickers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	for ticker, pos := range b.state.Positions {
		if pos.LongQty > 0 || pos.ShortQty > 0 {
			out = append(out, ticker)
		}
	}
	return out
}

// saveLocked writes atomically via temp file and rename.
func (b *Book) saveLocked() error {
	b.state.Version++
	b.state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(b.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal position book: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write position book: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace position book: %w", err)
	}
	return nil
}

// addToBasis computes the blended average cost after adding quantity at price.
func addToBasis(basis float64, held int64, price float64, quantity int64) float64 {
	total := held + quantity
	if total <= 0 {
		return 0
	}
	return (basis*float64(held) + price*float64(quantity)) / float64(total)
}
