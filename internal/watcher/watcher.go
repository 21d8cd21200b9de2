// Package watcher runs the polling loops that carry positions through their
// lifecycle after entry: fill detection and timeout of resting orders, armed
// management actions, and reconciliation of venue-side closes.
package watcher

import (
	"context"
	"time"

	"goldbot/internal/domain"
)

// sweepTimeout bounds one sweep so a stalled venue call cannot block the
// loop past the next few intervals.
const sweepTimeout = 30 * time.Second

// Loop calls step every interval until ctx is cancelled. The first call
// happens after one interval, not immediately. Each call runs under its own
// deadline.
func Loop(ctx context.Context, interval time.Duration, step func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
			step(stepCtx)
			cancel()
		}
	}
}

// closePriceFor returns the side of the spread a closing trade executes
// against: a long closes at the bid, a short at the ask.
func closePriceFor(side domain.Side, t domain.Tick) float64 {
	if side == domain.SideBuy {
		return t.Bid
	}
	return t.Ask
}
