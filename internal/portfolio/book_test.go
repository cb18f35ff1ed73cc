package portfolio

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/market-monitor/internal/outbox"
	"github.com/Rajchodisetti/market-monitor/internal/reconcile"
)

func newTestBook(t *testing.T) *Book {
	t.Helper()
	b := NewBook(filepath.Join(t.TempDir(), "book.json"))
	require.NoError(t, b.Load())
	return b
}

func fill(ticker string, qty int64, price float64) outbox.Fill {
	return outbox.Fill{
		OrderID:   "o1",
		Ticker:    ticker,
		Quantity:  qty,
		Price:     price,
		Timestamp: time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
	}
}

func TestBook_BuildsLongPosition(t *testing.T) {
	b := newTestBook(t)
	require.NoError(t, b.ApplyFill(reconcile.ActionBuy, fill("AAPL", 100, 100.0)))
	require.NoError(t, b.ApplyFill(reconcile.ActionBuy, fill("AAPL", 100, 110.0)))

	snap := b.Snapshot("AAPL")
	assert.Equal(t, int64(200), snap.LongQty)
	assert.InDelta(t, 105.0, snap.LongCostBasis, 1e-9)
	assert.Zero(t, snap.ShortQty)
}

func TestBook_SellReducesAndClearsBasis(t *testing.T) {
	b := newTestBook(t)
	require.NoError(t, b.ApplyFill(reconcile.ActionBuy, fill("AAPL", 100, 100.0)))
	require.NoError(t, b.ApplyFill(reconcile.ActionSell, fill("AAPL", 40, 105.0)))

	snap := b.Snapshot("AAPL")
	assert.Equal(t, int64(60), snap.LongQty)
	assert.InDelta(t, 100.0, snap.LongCostBasis, 1e-9)

	require.NoError(t, b.ApplyFill(reconcile.ActionSell, fill("AAPL", 60, 108.0)))
	snap = b.Snapshot("AAPL")
	assert.Zero(t, snap.LongQty)
	assert.Zero(t, snap.LongCostBasis)
}

func TestBook_ConflictPlanFlipsDirection(t *testing.T) {
	b := newTestBook(t)
	require.NoError(t, b.ApplyFill(reconcile.ActionBuy, fill("AAPL", 50, 100.0)))

	// The two legs of a direction-conflict plan, applied in order.
	require.NoError(t, b.ApplyFill(reconcile.ActionSell, fill("AAPL", 50, 99.0)))
	require.NoError(t, b.ApplyFill(reconcile.ActionShort, fill("AAPL", 30, 99.0)))

	snap := b.Snapshot("AAPL")
	assert.Zero(t, snap.LongQty)
	assert.Equal(t, int64(30), snap.ShortQty)
	assert.InDelta(t, 99.0, snap.ShortCostBasis, 1e-9)
}

func TestBook_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")
	b := NewBook(path)
	require.NoError(t, b.Load())
	require.NoError(t, b.ApplyFill(reconcile.ActionShort, fill("NVDA", 25, 500.0)))

	reloaded := NewBook(path)
	require.NoError(t, reloaded.Load())
	snap := reloaded.Snapshot("NVDA")
	assert.Equal(t, int64(25), snap.ShortQty)
	assert.InDelta(t, 500.0, snap.ShortCostBasis, 1e-9)
}

func TestBook_TickersListsOpenPositionsOnly(t *testing.T) {
	b := newTestBook(t)
	require.NoError(t, b.ApplyFill(reconcile.ActionBuy, fill("AAPL", 10, 100.0)))
	require.NoError(t, b.ApplyFill(reconcile.ActionBuy, fill("MSFT", 10, 400.0)))
	require.NoError(t, b.ApplyFill(reconcile.ActionSell, fill("MSFT", 10, 401.0)))

	assert.Equal(t, []string{"AAPL"}, b.Tickers())
}

func TestBook_UnknownTickerIsFlat(t *testing.T) {
	b := newTestBook(t)
	snap := b.Snapshot("TSLA")
	assert.Equal(t, "TSLA", snap.Ticker)
	assert.Zero(t, snap.LongQty)
	assert.Zero(t, snap.ShortQty)
}
