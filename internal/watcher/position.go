package watcher

import (
	"context"
	"log/slog"
	"time"

	"goldbot/internal/domain"
	"goldbot/internal/journal"
	"goldbot/internal/metrics"
	"goldbot/internal/state"
	"goldbot/internal/venue"
)

// PositionWatcher reconciles venue-side closes: a take-profit or stop-loss
// hit, or a manual close at the terminal, removes the position from the
// venue without the bot acting. The watcher detects the ticket's absence and
// marks the local position CLOSED.
type PositionWatcher struct {
	store   *state.Store
	venue   venue.Venue
	journal journal.Recorder
	log     *slog.Logger

	symbol   string
	interval time.Duration
}

// NewPositionWatcher creates a PositionWatcher polling every interval.
func NewPositionWatcher(store *state.Store, v venue.Venue, rec journal.Recorder, symbol string, interval time.Duration, log *slog.Logger) *PositionWatcher {
	if rec == nil {
		rec = journal.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &PositionWatcher{
		store:    store,
		venue:    v,
		journal:  rec,
		log:      log.With("component", "position_watcher"),
		symbol:   symbol,
		interval: interval,
	}
}

// Run polls until ctx is cancelled.
func (w *PositionWatcher) Run(ctx context.Context) {
	Loop(ctx, w.interval, func(ctx context.Context) {
		w.Sweep(ctx)
	})
}

// Sweep runs one pass over all OPEN positions.
func (w *PositionWatcher) Sweep(ctx context.Context) {
	open := w.store.ByStatus(domain.StatusOpen)
	if len(open) == 0 {
		return
	}

	tickets, err := w.venue.OpenPositionTickets(ctx)
	if err != nil {
		metrics.IncVenueError("list positions", venue.IsPermanent(err))
		w.log.Warn("position list unavailable, skipping sweep", "err", err)
		return
	}
	live := make(map[string]bool, len(tickets))
	for _, t := range tickets {
		live[t] = true
	}

	// The close price is not reported for a vanished ticket; the current
	// quote is the best available approximation.
	tick, tickErr := w.venue.GetTick(ctx, w.symbol)
	now := tick.Time
	if now.IsZero() {
		now = time.Now().UTC()
	}

	for _, p := range open {
		if live[p.PositionTicket] {
			continue
		}
		exit := 0.0
		if tickErr == nil {
			exit = closePriceFor(p.Side, tick)
		}
		err := w.store.Mutate(p.SplitID, func(pos *domain.Position) error {
			return pos.MarkClosed(exit, now)
		})
		if err != nil {
			w.log.Warn("external close transition rejected", "split_id", p.SplitID, "err", err)
			continue
		}
		metrics.IncClosedTrade("external")
		w.journal.Event(ctx, journal.Event{
			Time: now, Kind: "closed_external", SplitID: p.SplitID, MsgID: p.SignalID,
			Detail: "position left venue",
		})
		if pos, ok := w.store.Position(p.SplitID); ok {
			w.journal.ClosedTrade(ctx, pos)
		}
		w.log.Info("position closed venue-side", "split_id", p.SplitID, "ticket", p.PositionTicket)
	}
}
