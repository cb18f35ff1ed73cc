package outbox

import (
	"math/rand"
	"time"

	"github.com/Rajchodisetti/market-monitor/internal/reconcile"
)

// Fill is a simulated execution for a journaled order, used by the paper
// trading path when no broker integration is wired.
type Fill struct {
	OrderID     string    `json:"order_id"`
	Ticker      string    `json:"ticker"`
	Quantity    int64     `json:"quantity"`
	Price       float64   `json:"price"`
	Side        string    `json:"side"`
	Timestamp   time.Time `json:"timestamp"`
	LatencyMs   int       `json:"latency_ms"`
	SlippageBps int       `json:"slippage_bps"`
}

// PaperFiller produces synthetic fills with randomized latency and slippage
// inside configured bounds.
type PaperFiller struct {
	latencyMsMin   int
	latencyMsMax   int
	slippageBpsMin int
	slippageBpsMax int
}

func NewPaperFiller(latencyMsMin, latencyMsMax, slippageBpsMin, slippageBpsMax int) *PaperFiller {
	return &PaperFiller{
		latencyMsMin:   latencyMsMin,
		latencyMsMax:   latencyMsMax,
		slippageBpsMin: slippageBpsMin,
		slippageBpsMax: slippageBpsMax,
	}
}

// Fill simulates executing rec at marketPrice. Buys and covers pay up by the
// slippage, sells and shorts give it up.
func (pf *PaperFiller) Fill(rec OrderRecord, marketPrice float64) Fill {
	latencyMs := pf.latencyMsMin + rand.Intn(pf.latencyMsMax-pf.latencyMsMin+1)
	slippageBps := pf.slippageBpsMin + rand.Intn(pf.slippageBpsMax-pf.slippageBpsMin+1)

	side := "BUY"
	switch reconcile.Action(rec.Action) {
	case reconcile.ActionSell, reconcile.ActionShort:
		side = "SELL"
	}

	slip := 1.0 + float64(slippageBps)/10000.0
	price := marketPrice
	if side == "BUY" {
		price *= slip
	} else {
		price /= slip
	}

	return Fill{
		OrderID:     rec.ID,
		Ticker:      rec.Ticker,
		Quantity:    rec.Quantity,
		Price:       price,
		Side:        side,
		Timestamp:   rec.Timestamp.Add(time.Duration(latencyMs) * time.Millisecond),
		LatencyMs:   latencyMs,
		SlippageBps: slippageBps,
	}
}
