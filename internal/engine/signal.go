package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"goldbot/internal/domain"
	"goldbot/internal/journal"
	"goldbot/internal/metrics"
	"goldbot/internal/parser"
	"goldbot/internal/rules"
	"goldbot/internal/state"
	"goldbot/internal/venue"
)

// SignalService turns parsed signals into venue orders: one position per
// take-profit level, each executed per the entry-decision rules against the
// live price.
type SignalService struct {
	store   *state.Store
	venue   venue.Venue
	parser  *parser.SignalParser
	journal journal.Recorder
	log     *slog.Logger

	symbol           string
	tol              rules.Tolerances
	editWindow       time.Duration
	maxParseAttempts int
}

// SignalConfig carries the tunables of the signal path.
type SignalConfig struct {
	Symbol           string
	Tolerances       rules.Tolerances
	EditWindow       time.Duration
	MaxParseAttempts int
}

// NewSignalService creates a SignalService.
func NewSignalService(store *state.Store, v venue.Venue, p *parser.SignalParser, rec journal.Recorder, cfg SignalConfig, log *slog.Logger) *SignalService {
	if rec == nil {
		rec = journal.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &SignalService{
		store:            store,
		venue:            v,
		parser:           p,
		journal:          rec,
		log:              log.With("component", "signal"),
		symbol:           cfg.Symbol,
		tol:              cfg.Tolerances,
		editWindow:       cfg.EditWindow,
		maxParseAttempts: cfg.MaxParseAttempts,
	}
}

// Handle processes one signal-candidate message: de-duplication, edit
// reconciliation, parsing, and execution. A message that fails to parse is
// recorded and dropped without error; the next edit of it gets another
// attempt up to the configured limit.
func (s *SignalService) Handle(ctx context.Context, msg domain.Message) error {
	meta := s.store.UpsertMessage(msg.ID, msg.Text, msg.Time)

	if s.store.HasSignal(msg.ID) {
		return s.handleKnown(ctx, msg, meta)
	}

	if meta.ParseAttempts >= s.maxParseAttempts {
		s.log.Debug("parse attempts exhausted", "msg_id", msg.ID, "attempts", meta.ParseAttempts)
		return nil
	}

	sig := s.parser.Parse(msg.Text, msg.ID)
	s.store.MarkParseAttempt(msg.ID, sig == nil)
	if sig == nil {
		metrics.IncParseFailure()
		s.log.Info("signal candidate failed to parse", "msg_id", msg.ID, "edited", msg.Edited)
		return nil
	}

	s.store.AddSignal(sig)
	s.journal.Event(ctx, journal.Event{
		Time:   msg.Time,
		Kind:   "signal_parsed",
		MsgID:  msg.ID,
		Detail: fmt.Sprintf("%s %s @ %.2f, %d TPs", sig.Side, sig.Symbol, sig.Entry, len(sig.TPs)),
	})
	s.log.Info("signal parsed",
		"msg_id", msg.ID, "side", sig.Side, "entry", sig.Entry, "tps", len(sig.TPs), "sl", sig.SL)

	return s.CreateSplits(ctx, msg.ID)
}

// handleKnown deals with a message id that already produced a signal: either
// a duplicate delivery or an edit. An edit may replace the signal only while
// no splits exist and the edit window is still open.
func (s *SignalService) handleKnown(ctx context.Context, msg domain.Message, meta state.MessageMeta) error {
	if !msg.Edited {
		// Duplicate delivery. Split creation is idempotent, so re-running it
		// only picks up splits left NEW by an earlier transient failure.
		s.log.Debug("duplicate message, re-running split creation", "msg_id", msg.ID)
		return s.CreateSplits(ctx, msg.ID)
	}
	if len(s.store.SplitsFor(msg.ID)) > 0 {
		s.log.Warn("edit after splits built, ignoring", "msg_id", msg.ID)
		return nil
	}
	if !meta.WithinWindow(s.editWindow) {
		s.log.Warn("edit outside window, ignoring", "msg_id", msg.ID)
		return nil
	}

	// In the current flow a stored signal always has its splits built in the
	// same Handle call, so the splits-exist check above catches every edit and
	// the replace below is a guard for a future deferred-build path. Edits that
	// rescue an unparsed original go through Handle's parse-retry route instead.
	sig := s.parser.Parse(msg.Text, msg.ID)
	s.store.MarkParseAttempt(msg.ID, sig == nil)
	if sig == nil {
		metrics.IncParseFailure()
		s.log.Info("edited signal no longer parses, keeping original", "msg_id", msg.ID)
		return nil
	}
	if err := s.store.ReplaceSignal(sig); err != nil {
		s.log.Warn("signal replace rejected", "msg_id", msg.ID, "err", err)
		return nil
	}
	s.journal.Event(ctx, journal.Event{
		Time:   msg.Time,
		Kind:   "signal_replaced",
		MsgID:  msg.ID,
		Detail: fmt.Sprintf("%s @ %.2f", sig.Side, sig.Entry),
	})
	return s.CreateSplits(ctx, msg.ID)
}

// CreateSplits builds the signal's positions and executes every split still
// NEW. The entry decision is made once per signal from a single tick; the
// TP-reached check runs per split since each split has its own take-profit.
// Split creation is idempotent, so a retry after a transient venue failure
// picks up exactly the splits that did not execute.
func (s *SignalService) CreateSplits(ctx context.Context, signalID int64) error {
	sig, ok := s.store.Signal(signalID)
	if !ok {
		return fmt.Errorf("create splits: no signal %d", signalID)
	}

	splits, err := s.store.BuildSplits(signalID)
	if err != nil {
		return err
	}

	tick, err := s.venue.GetTick(ctx, s.symbol)
	if err != nil {
		metrics.IncVenueError("get tick", venue.IsPermanent(err))
		return fmt.Errorf("create splits for %d: %w", signalID, err)
	}

	current := tick.PriceFor(sig.Side)
	mode := rules.DecideExecution(sig.Side, sig.Entry, current, s.tol)
	s.log.Info("execution decided",
		"signal_id", signalID, "mode", mode, "entry", sig.Entry, "current", current)

	var errs []error
	for _, split := range splits {
		if split.Status != domain.StatusNew {
			continue
		}
		if err := s.executeSplit(ctx, sig, split, mode, tick); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// executeSplit runs one NEW split through its execution decision.
func (s *SignalService) executeSplit(ctx context.Context, sig domain.Signal, split domain.Position, mode domain.ExecMode, tick domain.Tick) error {
	now := tick.Time
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// A take-profit the market already passed has nothing left to capture.
	if rules.TPReached(sig.Side, split.TP, tick.Bid, tick.Ask) {
		return s.skipSplit(ctx, split, "tp already reached", now)
	}
	if mode == domain.ExecSkip {
		return s.skipSplit(ctx, split, "price drifted beyond hard limit", now)
	}

	switch mode {
	case domain.ExecMarket:
		ticket, fill, err := s.venue.OpenMarket(ctx, split.Symbol, split.Side, split.Volume, split.SL, split.TP)
		if err != nil {
			return s.recordVenueFailure(ctx, split, "open market", err, now)
		}
		if err := s.store.Mutate(split.SplitID, func(p *domain.Position) error {
			return p.MarkOpen(ticket, fill, now)
		}); err != nil {
			return err
		}
		metrics.IncSplit(strings.ToLower(string(mode)))
		s.journal.Event(ctx, journal.Event{
			Time: now, Kind: "split_opened", SplitID: split.SplitID, MsgID: split.SignalID,
			Detail: fmt.Sprintf("market fill @ %.2f, ticket %s", fill, ticket),
		})
		s.log.Info("split opened at market", "split_id", split.SplitID, "ticket", ticket, "fill", fill)
		return nil

	case domain.ExecLimit, domain.ExecStop:
		ticket, err := s.venue.OpenPending(ctx, split.Symbol, split.Side, mode, split.Volume, split.Entry, split.SL, split.TP)
		if err != nil {
			return s.recordVenueFailure(ctx, split, "open pending", err, now)
		}
		if err := s.store.Mutate(split.SplitID, func(p *domain.Position) error {
			return p.MarkPending(ticket, now)
		}); err != nil {
			return err
		}
		metrics.IncSplit(strings.ToLower(string(mode)))
		s.journal.Event(ctx, journal.Event{
			Time: now, Kind: "split_pending", SplitID: split.SplitID, MsgID: split.SignalID,
			Detail: fmt.Sprintf("%s @ %.2f, ticket %s", mode, split.Entry, ticket),
		})
		s.log.Info("split resting", "split_id", split.SplitID, "mode", mode, "ticket", ticket)
		return nil

	default:
		return fmt.Errorf("execute split %s: unexpected mode %s", split.SplitID, mode)
	}
}

func (s *SignalService) skipSplit(ctx context.Context, split domain.Position, reason string, now time.Time) error {
	if err := s.store.Mutate(split.SplitID, func(p *domain.Position) error {
		return p.MarkSkipped(reason, now)
	}); err != nil {
		return err
	}
	metrics.IncSplit("skip")
	s.journal.Event(ctx, journal.Event{
		Time: now, Kind: "split_skipped", SplitID: split.SplitID, MsgID: split.SignalID, Detail: reason,
	})
	s.log.Info("split skipped", "split_id", split.SplitID, "reason", reason)
	return nil
}

// recordVenueFailure handles an order-placement error. Permanent rejections
// park the split in ERROR; transient failures leave it NEW so the next
// CreateSplits call retries it.
func (s *SignalService) recordVenueFailure(ctx context.Context, split domain.Position, op string, err error, now time.Time) error {
	permanent := venue.IsPermanent(err)
	metrics.IncVenueError(op, permanent)

	if !permanent {
		s.log.Warn("transient venue failure, split stays queued",
			"split_id", split.SplitID, "op", op, "err", err)
		return fmt.Errorf("%s for %s: %w", op, split.SplitID, err)
	}

	if merr := s.store.Mutate(split.SplitID, func(p *domain.Position) error {
		return p.MarkError(err.Error(), now)
	}); merr != nil {
		return errors.Join(err, merr)
	}
	s.journal.Event(ctx, journal.Event{
		Time: now, Kind: "split_error", SplitID: split.SplitID, MsgID: split.SignalID, Detail: err.Error(),
	})
	s.log.Error("split rejected by venue", "split_id", split.SplitID, "op", op, "err", err)
	return fmt.Errorf("%s for %s: %w", op, split.SplitID, err)
}
