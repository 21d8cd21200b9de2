// Package domain defines the core value types of the signal execution
// pipeline: parsed signals, per-take-profit positions (splits), management
// actions, and the position lifecycle state machine.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Status is the lifecycle state of a position.
//
// Transitions: NEW → PENDING → OPEN → CLOSED; PENDING → CANCELED;
// any non-terminal state → ERROR. CLOSED, CANCELED, SKIPPED, and ERROR
// are terminal.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusPending  Status = "PENDING"
	StatusOpen     Status = "OPEN"
	StatusClosed   Status = "CLOSED"
	StatusCanceled Status = "CANCELED"
	StatusSkipped  Status = "SKIPPED"
	StatusError    Status = "ERROR"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusClosed, StatusCanceled, StatusSkipped, StatusError:
		return true
	}
	return false
}

// ExecMode is how an accepted signal entry is executed.
type ExecMode string

const (
	ExecMarket ExecMode = "MARKET" // fill immediately at current price
	ExecLimit  ExecMode = "LIMIT"  // pending order, pullback entry
	ExecStop   ExecMode = "STOP"   // pending order, breakout entry
	ExecSkip   ExecMode = "SKIP"   // price drifted too far, do not trade
)

// ManagementType is the kind of operator management command.
type ManagementType string

const (
	ManageNone       ManagementType = "NONE"
	ManageBreakEven  ManagementType = "BE"
	ManageMoveSL     ManagementType = "MOVE_SL"
	ManageCloseTPAt  ManagementType = "CLOSE_TP_AT"
	ManageCloseAllAt ManagementType = "CLOSE_ALL_AT"
)

// ---------------------------------------------------------------------------
// Signal
// ---------------------------------------------------------------------------

// Signal is one parsed trading idea. It is immutable once stored; positions
// reference it by MessageID.
type Signal struct {
	MessageID int64
	Symbol    string
	Side      Side
	Entry     float64
	TPs       []float64
	SL        float64
	CreatedAt time.Time
}

// Validate checks the price-ordering invariant: for BUY every TP must be
// above the entry and the SL below it; for SELL the ordering is inverted.
func (s *Signal) Validate() error {
	if len(s.TPs) == 0 {
		return errors.New("signal has no take-profits")
	}
	switch s.Side {
	case SideBuy:
		for _, tp := range s.TPs {
			if tp <= s.Entry {
				return fmt.Errorf("buy signal: tp %v must be > entry %v", tp, s.Entry)
			}
		}
		if s.SL >= s.Entry {
			return fmt.Errorf("buy signal: sl %v must be < entry %v", s.SL, s.Entry)
		}
	case SideSell:
		for _, tp := range s.TPs {
			if tp >= s.Entry {
				return fmt.Errorf("sell signal: tp %v must be < entry %v", tp, s.Entry)
			}
		}
		if s.SL <= s.Entry {
			return fmt.Errorf("sell signal: sl %v must be > entry %v", s.SL, s.Entry)
		}
	default:
		return fmt.Errorf("signal has invalid side %q", s.Side)
	}
	return nil
}

// ---------------------------------------------------------------------------
// ManagementAction
// ---------------------------------------------------------------------------

// ManagementAction is a parsed operator command targeting the signal its
// message replies to.
type ManagementAction struct {
	Type    ManagementType
	Price   float64 // MOVE_SL target
	TPIndex int     // CLOSE_TP_AT, 1-based
}

// ---------------------------------------------------------------------------
// Position (split)
// ---------------------------------------------------------------------------

// ErrInvalidTransition is returned when a lifecycle transition is attempted
// from a state that does not permit it. It indicates a race or a duplicate
// event, never a normal condition.
var ErrInvalidTransition = errors.New("invalid position transition")

// SplitID derives the deterministic identifier of the index-th split of a
// signal. Re-deriving it for the same inputs always yields the same value,
// which is what makes split creation idempotent.
func SplitID(signalID int64, index int) string {
	return fmt.Sprintf("%d_split_%d", signalID, index)
}

// Position is one tradable unit: a single take-profit slice of a signal.
// All fields are mutated only through the state store's serialised access.
type Position struct {
	SplitID    string
	SignalID   int64
	SplitIndex int

	Symbol string
	Side   Side
	Entry  float64
	TP     float64
	SL     float64
	Volume float64

	Status Status

	// Venue references. OrderTicket is the pending order, PositionTicket
	// the live position once filled.
	OrderTicket    string
	PositionTicket string

	OpenPrice  float64
	ClosePrice float64

	CreatedAt time.Time
	PendingAt time.Time
	OpenedAt  time.Time
	ClosedAt  time.Time

	// Management flags. Armed records the operator intent; Done is set only
	// after the venue confirmed the corresponding mutation.
	BEArmed     bool
	BEDone      bool
	BEAppliedAt time.Time

	SLMoveArmed     bool
	SLMoveDone      bool
	SLMoveAppliedAt time.Time

	CloseArmed     bool
	CloseDone      bool
	CloseTarget    float64
	CloseHasTarget bool
	CloseBuffer    float64
	CloseAppliedAt time.Time

	FailReason string
}

// Active reports whether the position still needs watcher attention.
func (p *Position) Active() bool {
	return p.Status == StatusPending || p.Status == StatusOpen
}

func (p *Position) transitionErr(op string) error {
	return fmt.Errorf("%s from %s on %s: %w", op, p.Status, p.SplitID, ErrInvalidTransition)
}

// MarkPending transitions NEW → PENDING and records the venue order ticket.
func (p *Position) MarkPending(ticket string, ts time.Time) error {
	if p.Status != StatusNew {
		return p.transitionErr("mark pending")
	}
	p.Status = StatusPending
	p.OrderTicket = ticket
	p.PendingAt = ts
	return nil
}

// MarkOpen transitions PENDING → OPEN (pending order filled) or NEW → OPEN
// (immediate market fill) and records the actual fill price.
func (p *Position) MarkOpen(ticket string, price float64, ts time.Time) error {
	if p.Status != StatusNew && p.Status != StatusPending {
		return p.transitionErr("mark open")
	}
	p.Status = StatusOpen
	p.PositionTicket = ticket
	p.OpenPrice = price
	p.OpenedAt = ts
	return nil
}

// MarkClosed transitions OPEN → CLOSED.
func (p *Position) MarkClosed(price float64, ts time.Time) error {
	if p.Status != StatusOpen {
		return p.transitionErr("mark closed")
	}
	p.Status = StatusClosed
	p.ClosePrice = price
	p.ClosedAt = ts
	return nil
}

// MarkCanceled transitions PENDING → CANCELED.
func (p *Position) MarkCanceled(ts time.Time) error {
	if p.Status != StatusPending {
		return p.transitionErr("mark canceled")
	}
	p.Status = StatusCanceled
	p.ClosedAt = ts
	return nil
}

// MarkSkipped transitions NEW → SKIPPED. Used when the execution decision is
// SKIP or the take-profit was already reached; no venue order is involved.
func (p *Position) MarkSkipped(reason string, ts time.Time) error {
	if p.Status != StatusNew {
		return p.transitionErr("mark skipped")
	}
	p.Status = StatusSkipped
	p.FailReason = reason
	p.ClosedAt = ts
	return nil
}

// MarkError transitions any non-terminal state → ERROR after an unrecoverable
// venue failure. ERROR positions are excluded from further watcher action.
func (p *Position) MarkError(reason string, ts time.Time) error {
	if p.Status.Terminal() {
		return p.transitionErr("mark error")
	}
	p.Status = StatusError
	p.FailReason = reason
	p.ClosedAt = ts
	return nil
}

// ---------------------------------------------------------------------------
// Management flag arm/apply pairs
// ---------------------------------------------------------------------------

// ArmBE records the intent to move the stop-loss to break-even once live
// price allows it.
func (p *Position) ArmBE() {
	p.BEArmed = true
	p.BEDone = false
}

// ApplyBE clears the break-even flag after the venue confirmed the stop move.
func (p *Position) ApplyBE(ts time.Time) {
	p.BEDone = true
	p.BEArmed = false
	p.BEAppliedAt = ts
}

// ArmSLMove records the intent to relocate the stop-loss to newSL.
func (p *Position) ArmSLMove(newSL float64) {
	p.SL = newSL
	p.SLMoveArmed = true
	p.SLMoveDone = false
}

// ApplySLMove clears the stop-move flag after venue confirmation.
func (p *Position) ApplySLMove(ts time.Time) {
	p.SLMoveDone = true
	p.SLMoveArmed = false
	p.SLMoveAppliedAt = ts
}

// ArmClose records the intent to close the position once price reaches
// target. With hasTarget false the close is immediate on the next tick.
func (p *Position) ArmClose(target float64, hasTarget bool, buffer float64) {
	p.CloseArmed = true
	p.CloseDone = false
	p.CloseTarget = target
	p.CloseHasTarget = hasTarget
	p.CloseBuffer = buffer
}

// ApplyClose clears the close flag after the venue confirmed the close.
func (p *Position) ApplyClose(ts time.Time) {
	p.CloseDone = true
	p.CloseArmed = false
	p.CloseAppliedAt = ts
}

// ---------------------------------------------------------------------------
// Tick
// ---------------------------------------------------------------------------

// Tick is a bid/ask quote from the venue.
type Tick struct {
	Bid  float64
	Ask  float64
	Time time.Time
}

// PriceFor returns the side of the spread an opening trade of the given side
// would execute against.
func (t Tick) PriceFor(side Side) float64 {
	if side == SideBuy {
		return t.Ask
	}
	return t.Bid
}
