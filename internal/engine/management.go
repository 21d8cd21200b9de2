package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"goldbot/internal/domain"
	"goldbot/internal/journal"
	"goldbot/internal/parser"
	"goldbot/internal/state"
)

// ManagementService arms management intents on the positions of a signal.
// Arming only mutates local state; the management applier loop performs the
// venue calls once live price allows and clears the flags after confirmation.
type ManagementService struct {
	store       *state.Store
	parser      *parser.ManagementParser
	journal     journal.Recorder
	log         *slog.Logger
	closeBuffer float64
}

// NewManagementService creates a ManagementService. closeBuffer widens the
// trigger band of price-targeted closes.
func NewManagementService(store *state.Store, p *parser.ManagementParser, rec journal.Recorder, closeBuffer float64, log *slog.Logger) *ManagementService {
	if rec == nil {
		rec = journal.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ManagementService{
		store:       store,
		parser:      p,
		journal:     rec,
		log:         log.With("component", "management"),
		closeBuffer: closeBuffer,
	}
}

// Handle parses and applies one management message.
func (m *ManagementService) Handle(ctx context.Context, msg domain.Message) error {
	action := m.parser.Parse(msg.Text)
	if action.Type == domain.ManageNone {
		m.log.Debug("management candidate did not parse", "msg_id", msg.ID)
		return nil
	}
	applied, err := m.Apply(ctx, action, msg.ID, msg.ReplyTo)
	if err != nil {
		return err
	}
	if !applied {
		m.log.Info("management command had no target",
			"msg_id", msg.ID, "type", action.Type, "reply_to", msg.ReplyTo)
	}
	return nil
}

// Apply arms the action on the active positions of the replied-to signal.
// It reports false when the command binds to nothing: no reply reference,
// unknown signal, or no position left to manage. Commands never reach the
// venue from here.
func (m *ManagementService) Apply(ctx context.Context, action domain.ManagementAction, msgID int64, replyTo *int64) (bool, error) {
	if replyTo == nil {
		return false, nil
	}
	sig, ok := m.store.Signal(*replyTo)
	if !ok {
		return false, nil
	}
	active := m.store.ActiveForSignal(*replyTo)
	if len(active) == 0 {
		return false, nil
	}

	var closeTarget float64
	if action.Type == domain.ManageCloseTPAt {
		if action.TPIndex < 1 || action.TPIndex > len(sig.TPs) {
			m.log.Warn("close command names unknown tp level",
				"signal_id", sig.MessageID, "tp_index", action.TPIndex, "tps", len(sig.TPs))
			return false, nil
		}
		closeTarget = sig.TPs[action.TPIndex-1]
	}

	armed := 0
	for _, p := range active {
		err := m.store.Mutate(p.SplitID, func(pos *domain.Position) error {
			switch action.Type {
			case domain.ManageBreakEven:
				pos.ArmBE()
			case domain.ManageMoveSL:
				pos.ArmSLMove(action.Price)
			case domain.ManageCloseTPAt:
				pos.ArmClose(closeTarget, true, m.closeBuffer)
			case domain.ManageCloseAllAt:
				pos.ArmClose(0, false, 0)
			default:
				return fmt.Errorf("unhandled management type %s", action.Type)
			}
			return nil
		})
		if err != nil {
			return armed > 0, err
		}
		armed++
	}

	m.journal.Event(ctx, journal.Event{
		Time:  time.Now().UTC(),
		Kind:  "mgmt_armed",
		MsgID: msgID,
		Detail: fmt.Sprintf("%s on signal %d, %d position(s)",
			action.Type, sig.MessageID, armed),
	})
	m.log.Info("management armed",
		"type", action.Type, "signal_id", sig.MessageID, "positions", armed)
	return true, nil
}
