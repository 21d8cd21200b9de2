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

// ManagementApplier executes armed management intents against the venue once
// live price permits. Flags stay armed until the venue confirms the
// corresponding mutation, so a failed call is simply retried next sweep.
type ManagementApplier struct {
	store   *state.Store
	venue   venue.Venue
	journal journal.Recorder
	log     *slog.Logger

	symbol          string
	interval        time.Duration
	minStopDistance float64
}

// NewManagementApplier creates a ManagementApplier. minStopDistance is the
// closest the stop may sit to live price for a break-even move.
func NewManagementApplier(store *state.Store, v venue.Venue, rec journal.Recorder, symbol string, interval time.Duration, minStopDistance float64, log *slog.Logger) *ManagementApplier {
	if rec == nil {
		rec = journal.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ManagementApplier{
		store:           store,
		venue:           v,
		journal:         rec,
		log:             log.With("component", "mgmt_applier"),
		symbol:          symbol,
		interval:        interval,
		minStopDistance: minStopDistance,
	}
}

// Run polls until ctx is cancelled.
func (w *ManagementApplier) Run(ctx context.Context) {
	Loop(ctx, w.interval, func(ctx context.Context) {
		w.Sweep(ctx)
	})
}

// Sweep runs one pass over all OPEN positions with armed flags. A close
// takes precedence: once the position is gone the other flags are moot.
func (w *ManagementApplier) Sweep(ctx context.Context) {
	open := w.store.ByStatus(domain.StatusOpen)
	metrics.SetOpenPositions(len(open))

	var armed []domain.Position
	for _, p := range open {
		if p.CloseArmed || p.SLMoveArmed || p.BEArmed {
			armed = append(armed, p)
		}
	}
	if len(armed) == 0 {
		return
	}

	tick, err := w.venue.GetTick(ctx, w.symbol)
	if err != nil {
		metrics.IncVenueError("get tick", venue.IsPermanent(err))
		w.log.Warn("tick unavailable, skipping sweep", "err", err)
		return
	}
	now := tick.Time
	if now.IsZero() {
		now = time.Now().UTC()
	}

	for _, p := range armed {
		if p.CloseArmed && w.closeDue(p, tick) {
			w.applyClose(ctx, p, tick, now)
			continue
		}
		if p.SLMoveArmed {
			w.applySLMove(ctx, p, now)
		}
		if p.BEArmed && rules.BEAllowed(p.Side, p.OpenPrice, tick.Bid, tick.Ask, w.minStopDistance) {
			w.applyBE(ctx, p, now)
		}
	}
}

// closeDue reports whether an armed close should fire on this tick.
func (w *ManagementApplier) closeDue(p domain.Position, tick domain.Tick) bool {
	if !p.CloseHasTarget {
		return true
	}
	return rules.CloseAtTriggered(p.Side, p.CloseTarget, tick.Bid, tick.Ask, p.CloseBuffer)
}

func (w *ManagementApplier) applyClose(ctx context.Context, p domain.Position, tick domain.Tick, now time.Time) {
	if err := w.venue.ClosePosition(ctx, p.PositionTicket, p.Side, p.Volume); err != nil {
		metrics.IncVenueError("close position", venue.IsPermanent(err))
		if venue.IsPermanent(err) {
			w.markError(ctx, p, err, now)
			return
		}
		w.log.Warn("close failed, will retry", "split_id", p.SplitID, "err", err)
		return
	}

	exit := closePriceFor(p.Side, tick)
	err := w.store.Mutate(p.SplitID, func(pos *domain.Position) error {
		pos.ApplyClose(now)
		return pos.MarkClosed(exit, now)
	})
	if err != nil {
		w.log.Warn("close transition rejected", "split_id", p.SplitID, "err", err)
		return
	}
	metrics.IncManagementApplied("close")
	metrics.IncClosedTrade("managed")
	w.journal.Event(ctx, journal.Event{
		Time: now, Kind: "mgmt_applied", SplitID: p.SplitID, MsgID: p.SignalID, Detail: "close",
	})
	if pos, ok := w.store.Position(p.SplitID); ok {
		w.journal.ClosedTrade(ctx, pos)
	}
	w.log.Info("position closed by command", "split_id", p.SplitID, "exit", exit)
}

func (w *ManagementApplier) applySLMove(ctx context.Context, p domain.Position, now time.Time) {
	if err := w.venue.ModifyStopLoss(ctx, p.PositionTicket, p.SL); err != nil {
		metrics.IncVenueError("modify stop loss", venue.IsPermanent(err))
		if venue.IsPermanent(err) {
			w.markError(ctx, p, err, now)
			return
		}
		w.log.Warn("stop move failed, will retry", "split_id", p.SplitID, "err", err)
		return
	}

	err := w.store.Mutate(p.SplitID, func(pos *domain.Position) error {
		pos.ApplySLMove(now)
		return nil
	})
	if err != nil {
		w.log.Warn("stop move flag clear rejected", "split_id", p.SplitID, "err", err)
		return
	}
	metrics.IncManagementApplied("move_sl")
	w.journal.Event(ctx, journal.Event{
		Time: now, Kind: "mgmt_applied", SplitID: p.SplitID, MsgID: p.SignalID, Detail: "move_sl",
	})
	w.log.Info("stop loss moved", "split_id", p.SplitID, "sl", p.SL)
}

func (w *ManagementApplier) applyBE(ctx context.Context, p domain.Position, now time.Time) {
	if err := w.venue.ModifyStopLoss(ctx, p.PositionTicket, p.OpenPrice); err != nil {
		metrics.IncVenueError("modify stop loss", venue.IsPermanent(err))
		if venue.IsPermanent(err) {
			w.markError(ctx, p, err, now)
			return
		}
		w.log.Warn("break-even move failed, will retry", "split_id", p.SplitID, "err", err)
		return
	}

	err := w.store.Mutate(p.SplitID, func(pos *domain.Position) error {
		pos.SL = pos.OpenPrice
		pos.ApplyBE(now)
		return nil
	})
	if err != nil {
		w.log.Warn("break-even flag clear rejected", "split_id", p.SplitID, "err", err)
		return
	}
	metrics.IncManagementApplied("be")
	w.journal.Event(ctx, journal.Event{
		Time: now, Kind: "mgmt_applied", SplitID: p.SplitID, MsgID: p.SignalID, Detail: "be",
	})
	w.log.Info("stop loss moved to break-even", "split_id", p.SplitID, "sl", p.OpenPrice)
}

func (w *ManagementApplier) markError(ctx context.Context, p domain.Position, cause error, now time.Time) {
	err := w.store.Mutate(p.SplitID, func(pos *domain.Position) error {
		return pos.MarkError(cause.Error(), now)
	})
	if err != nil {
		w.log.Warn("error transition rejected", "split_id", p.SplitID, "err", err)
		return
	}
	w.journal.Event(ctx, journal.Event{
		Time: now, Kind: "split_error", SplitID: p.SplitID, MsgID: p.SignalID, Detail: cause.Error(),
	})
	w.log.Error("management rejected by venue", "split_id", p.SplitID, "err", cause)
}
