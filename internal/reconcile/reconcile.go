// Package reconcile turns a proposed trading action into concrete orders
// against a live position snapshot, resolving direction conflicts and
// clamping to the risk-supplied share cap.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Action is a proposed or emitted order side.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionShort Action = "short"
	ActionCover Action = "cover"
	ActionHold  Action = "hold"
)

// ParseAction normalizes a decision-worker action string.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	case ActionShort:
		return ActionShort, nil
	case ActionCover:
		return ActionCover, nil
	case ActionHold:
		return ActionHold, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// PositionSnapshot is the broker's view of a ticker at reconcile time.
// Read-only here; quantities are share counts, both sides non-negative.
type PositionSnapshot struct {
	Ticker         string
	LongQty        int64
	ShortQty       int64
	LongCostBasis  float64
	ShortCostBasis float64
}

// Order is one concrete instruction for the broker integration.
type Order struct {
	Action   Action
	Quantity int64
	Reason   string
}

// Plan is the ordered list of orders produced by one reconcile call. Order
// matters: a conflicting position is always closed before the new side opens.
type Plan struct {
	Ticker string
	Orders []Order
}

// NoOp reports whether the plan contains no orders.
func (p Plan) NoOp() bool { return len(p.Orders) == 0 }

// Reconcile resolves a proposed action against the live position. Rules, in
// order:
//
//  1. Confidence below threshold: NoOp, regardless of action or quantity.
//  2. Hold, or a close action with nothing to close: NoOp.
//  3. Quantity is clamped to maxShares; a clamp to zero is a NoOp.
//  4. An opening action against an opposing position closes the full
//     opposing side first, then opens the clamped quantity.
//  5. A close action (sell/cover) is capped by the held quantity.
func Reconcile(ticker string, action Action, qty int64, confidence, threshold float64, pos PositionSnapshot, maxShares int64) Plan {
	plan := Plan{Ticker: ticker}

	if confidence < threshold {
		log.Debug().
			Str("ticker", ticker).
			Float64("confidence", confidence).
			Float64("threshold", threshold).
			Msg("confidence below threshold, no orders")
		return plan
	}
	if action == ActionHold || qty <= 0 {
		return plan
	}

	switch action {
	case ActionBuy:
		open := clamp(qty, maxShares)
		if open <= 0 {
			log.Debug().Str("ticker", ticker).Int64("max_shares", maxShares).Msg("risk cap clamps order to zero, no orders")
			return plan
		}
		if pos.ShortQty > 0 {
			plan.add(ActionCover, pos.ShortQty, "close opposing short before buying")
		}
		plan.add(ActionBuy, open, openReason(qty, open))
	case ActionShort:
		open := clamp(qty, maxShares)
		if open <= 0 {
			log.Debug().Str("ticker", ticker).Int64("max_shares", maxShares).Msg("risk cap clamps order to zero, no orders")
			return plan
		}
		if pos.LongQty > 0 {
			plan.add(ActionSell, pos.LongQty, "close opposing long before shorting")
		}
		plan.add(ActionShort, open, openReason(qty, open))
	case ActionSell:
		closeQty := min64(qty, pos.LongQty)
		if closeQty > 0 {
			plan.add(ActionSell, closeQty, "reduce long position")
		}
	case ActionCover:
		closeQty := min64(qty, pos.ShortQty)
		if closeQty > 0 {
			plan.add(ActionCover, closeQty, "reduce short position")
		}
	}

	if plan.NoOp() {
		log.Debug().Str("ticker", ticker).Str("action", string(action)).Msg("reconcile produced no orders")
	}
	return plan
}

func (p *Plan) add(action Action, qty int64, reason string) {
	p.Orders = append(p.Orders, Order{Action: action, Quantity: qty, Reason: reason})
}

func openReason(requested, granted int64) string {
	if granted < requested {
		return fmt.Sprintf("open position, clamped from %d to risk cap", requested)
	}
	return "open position"
}

func clamp(qty, maxShares int64) int64 {
	if maxShares >= 0 && qty > maxShares {
		return maxShares
	}
	return qty
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
