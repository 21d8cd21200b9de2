package watcher

import (
	"context"
	"log/slog"
	"time"

	"goldbot/internal/domain"
	"goldbot/internal/journal"
	"goldbot/internal/metrics"
	"goldbot/internal/rules"
	"goldbot/internal/state"
	"goldbot/internal/venue"
)

// PendingWatcher tends resting orders: it detects fills by their ticket
// disappearing from the venue's open-order set, and cancels orders whose
// take-profit the market already reached or that waited past the timeout.
type PendingWatcher struct {
	store   *state.Store
	venue   venue.Venue
	journal journal.Recorder
	log     *slog.Logger

	symbol   string
	interval time.Duration
	timeout  time.Duration
}

// NewPendingWatcher creates a PendingWatcher polling every interval and
// cancelling orders older than timeout.
func NewPendingWatcher(store *state.Store, v venue.Venue, rec journal.Recorder, symbol string, interval, timeout time.Duration, log *slog.Logger) *PendingWatcher {
	if rec == nil {
		rec = journal.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &PendingWatcher{
		store:    store,
		venue:    v,
		journal:  rec,
		log:      log.With("component", "pending_watcher"),
		symbol:   symbol,
		interval: interval,
		timeout:  timeout,
	}
}

// Run polls until ctx is cancelled.
func (w *PendingWatcher) Run(ctx context.Context) {
	Loop(ctx, w.interval, func(ctx context.Context) {
		w.Sweep(ctx)
	})
}

// Sweep runs one pass over all PENDING positions. Venue read failures abort
// the pass; the next tick retries from scratch.
func (w *PendingWatcher) Sweep(ctx context.Context) {
	pending := w.store.ByStatus(domain.StatusPending)
	metrics.SetPendingOrders(len(pending))
	if len(pending) == 0 {
		return
	}

	tick, err := w.venue.GetTick(ctx, w.symbol)
	if err != nil {
		metrics.IncVenueError("get tick", venue.IsPermanent(err))
		w.log.Warn("tick unavailable, skipping sweep", "err", err)
		return
	}

	tickets, err := w.venue.OpenOrderTickets(ctx)
	if err != nil {
		metrics.IncVenueError("list orders", venue.IsPermanent(err))
		w.log.Warn("order list unavailable, skipping sweep", "err", err)
		return
	}
	resting := make(map[string]bool, len(tickets))
	for _, t := range tickets {
		resting[t] = true
	}

	now := tick.Time
	if now.IsZero() {
		now = time.Now().UTC()
	}

	for _, p := range pending {
		switch {
		case !resting[p.OrderTicket]:
			w.markFilled(ctx, p, now)
		case rules.TPReached(p.Side, p.TP, tick.Bid, tick.Ask):
			w.cancel(ctx, p, "tp reached before fill", now)
		case !p.PendingAt.IsZero() && now.Sub(p.PendingAt) > w.timeout:
			w.cancel(ctx, p, "pending timeout", now)
		}
	}
}

// markFilled promotes a pending position whose order left the venue's open
// set. The venue does not report the fill price of a vanished order, so the
// requested entry price is recorded.
func (w *PendingWatcher) markFilled(ctx context.Context, p domain.Position, now time.Time) {
	err := w.store.Mutate(p.SplitID, func(pos *domain.Position) error {
		return pos.MarkOpen(pos.OrderTicket, pos.Entry, now)
	})
	if err != nil {
		w.log.Warn("fill transition rejected", "split_id", p.SplitID, "err", err)
		return
	}
	w.journal.Event(ctx, journal.Event{
		Time: now, Kind: "split_filled", SplitID: p.SplitID, MsgID: p.SignalID,
		Detail: "pending order filled",
	})
	w.log.Info("pending order filled", "split_id", p.SplitID, "ticket", p.OrderTicket)
}

func (w *PendingWatcher) cancel(ctx context.Context, p domain.Position, reason string, now time.Time) {
	if err := w.venue.CancelOrder(ctx, p.OrderTicket); err != nil {
		metrics.IncVenueError("cancel order", venue.IsPermanent(err))
		w.log.Warn("cancel failed, will retry", "split_id", p.SplitID, "err", err)
		return
	}
	err := w.store.Mutate(p.SplitID, func(pos *domain.Position) error {
		return pos.MarkCanceled(now)
	})
	if err != nil {
		w.log.Warn("cancel transition rejected", "split_id", p.SplitID, "err", err)
		return
	}
	metrics.IncClosedTrade("canceled")
	w.journal.Event(ctx, journal.Event{
		Time: now, Kind: "order_canceled", SplitID: p.SplitID, MsgID: p.SignalID, Detail: reason,
	})
	if pos, ok := w.store.Position(p.SplitID); ok {
		w.journal.ClosedTrade(ctx, pos)
	}
	w.log.Info("pending order canceled", "split_id", p.SplitID, "reason", reason)
}
