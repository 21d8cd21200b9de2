// Package rules holds the pure decision functions of the trading core:
// execution-mode selection and the live-price predicates the watchers
// evaluate. Every function is total, deterministic, and free of I/O; all
// thresholds arrive as parameters.
package rules

import (
	"math"

	"goldbot/internal/domain"
)

// Tolerances are the operator-configured thresholds for entry execution.
// The market tolerance is asymmetric per direction: a BUY that is slightly
// above the quoted price is still worth a market fill, while the same
// distance below it usually signals a pullback worth a pending order.
type Tolerances struct {
	// HardDrift is the guardrail: at or beyond this distance from the entry
	// the signal is stale and must not be traded.
	HardDrift float64

	BuyUp    float64 // current above entry, BUY
	BuyDown  float64 // current below entry, BUY
	SellUp   float64 // current above entry, SELL
	SellDown float64 // current below entry, SELL
}

// Symmetric builds Tolerances with the same market tolerance in every
// direction. Convenient for tests and simple deployments.
func Symmetric(tolerance, hardDrift float64) Tolerances {
	return Tolerances{
		HardDrift: hardDrift,
		BuyUp:     tolerance,
		BuyDown:   tolerance,
		SellUp:    tolerance,
		SellDown:  tolerance,
	}
}

// DecideExecution selects how to execute an entry given the current price.
//
// Let delta = current - entry. The hard-drift guardrail is checked first:
// |delta| at or beyond HardDrift yields SKIP. Within the per-direction
// market tolerance the answer is MARKET. Otherwise the order goes pending:
// BUY STOP when the entry sits above the current price (breakout), BUY
// LIMIT when below (pullback); SELL inverts the comparison. The
// tolerance-before-drift ordering decides whether a position is taken
// immediately, queued, or abandoned and must not be rearranged.
func DecideExecution(side domain.Side, entry, current float64, tol Tolerances) domain.ExecMode {
	delta := current - entry

	if math.Abs(delta) >= tol.HardDrift {
		return domain.ExecSkip
	}

	if side == domain.SideBuy {
		if delta > tol.BuyUp || delta < -tol.BuyDown {
			if entry > current {
				return domain.ExecStop
			}
			return domain.ExecLimit
		}
		return domain.ExecMarket
	}

	if delta < -tol.SellDown || delta > tol.SellUp {
		if entry < current {
			return domain.ExecStop
		}
		return domain.ExecLimit
	}
	return domain.ExecMarket
}

// TPReached reports whether a take-profit has been hit, evaluated against
// the side of the spread a closing trade would execute at: a BUY closes by
// selling at the bid, a SELL closes by buying at the ask.
func TPReached(side domain.Side, tp, bid, ask float64) bool {
	if side == domain.SideBuy {
		return bid >= tp
	}
	return ask <= tp
}

// BEAllowed reports whether the stop-loss may be moved to bePrice without
// landing inside minDistance of the current tradable price. A stop armed
// closer than that would trigger immediately. The distance check is
// inclusive: exactly minDistance away is allowed.
func BEAllowed(side domain.Side, bePrice, bid, ask, minDistance float64) bool {
	if side == domain.SideBuy {
		return bid-bePrice >= minDistance
	}
	return bePrice-ask >= minDistance
}

// CloseAtTriggered reports whether price has reached the close target,
// offset by an optional buffer that delays the close past the target.
func CloseAtTriggered(side domain.Side, target, bid, ask, buffer float64) bool {
	if side == domain.SideBuy {
		return bid >= target+buffer
	}
	return ask <= target-buffer
}
