// Package venue defines the trading venue contract and provides
// implementations for executing orders against a live brokerage and an
// in-memory simulator for paper mode and tests.
package venue

import (
	"context"
	"errors"
	"fmt"

	"goldbot/internal/domain"
)

// Venue abstracts the broker connection: price ticks, order placement, and
// position mutation. All calls are synchronous; failures are classified as
// transient (retry next tick) or permanent (position goes to ERROR) via the
// Error type below.
type Venue interface {
	// Name returns the venue identifier (e.g. "alpaca", "simulator").
	Name() string

	// GetTick returns the current bid/ask for the symbol.
	GetTick(ctx context.Context, symbol string) (domain.Tick, error)

	// OpenMarket fills an order immediately and returns the position ticket
	// and the actual fill price.
	OpenMarket(ctx context.Context, symbol string, side domain.Side, volume, sl, tp float64) (ticket string, fillPrice float64, err error)

	// OpenPending places a LIMIT or STOP order at price and returns the
	// order ticket.
	OpenPending(ctx context.Context, symbol string, side domain.Side, mode domain.ExecMode, volume, price, sl, tp float64) (ticket string, err error)

	// ModifyStopLoss moves the stop-loss of a live position.
	ModifyStopLoss(ctx context.Context, ticket string, newSL float64) error

	// ClosePosition closes a live position at market.
	ClosePosition(ctx context.Context, ticket string, side domain.Side, volume float64) error

	// CancelOrder cancels a pending order.
	CancelOrder(ctx context.Context, ticket string) error

	// OpenOrderTickets returns the tickets of pending orders still resting
	// at the venue. A previously placed ticket missing from this set has
	// been filled or canceled.
	OpenOrderTickets(ctx context.Context) ([]string, error)

	// OpenPositionTickets returns the tickets of positions still live at the
	// venue. A ticket missing from this set was closed venue-side (stop or
	// take-profit hit, manual close).
	OpenPositionTickets(ctx context.Context) ([]string, error)
}

// ---------------------------------------------------------------------------
// Error classification
// ---------------------------------------------------------------------------

// Error wraps a venue failure with its retry classification.
type Error struct {
	Op        string
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("venue %s (%s): %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TransientErr marks a failure as retryable: connectivity, timeout, rate
// limiting. The caller keeps the position in its prior state and retries on
// the next tick.
func TransientErr(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// PermanentErr marks a failure as a rejection: invalid parameters, market
// closed, unknown ticket. The position transitions to ERROR.
func PermanentErr(op string, err error) *Error {
	return &Error{Op: op, Permanent: true, Err: err}
}

// IsPermanent reports whether err is classified as a permanent rejection.
// Unclassified errors are treated as transient, keeping positions retryable
// when the failure mode is unknown.
func IsPermanent(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Permanent
	}
	return false
}
