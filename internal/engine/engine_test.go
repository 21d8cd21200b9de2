package engine

import (
	"context"
	"testing"
	"time"

	"goldbot/internal/domain"
	"goldbot/internal/journal"
	"goldbot/internal/parser"
	"goldbot/internal/rules"
	"goldbot/internal/state"
	"goldbot/internal/venue"
)

const testSymbol = "XAUUSD"

func newTestEngine(t *testing.T, sim *venue.Simulator) (*Engine, *state.Store) {
	t.Helper()

	store := state.NewStore(4, 0.05, nil)
	mp := parser.NewManagementParser()
	signals := NewSignalService(store, sim, parser.NewSignalParser(testSymbol), journal.Nop{}, SignalConfig{
		Symbol:           testSymbol,
		Tolerances:       rules.Symmetric(2.0, 20.0),
		EditWindow:       180 * time.Second,
		MaxParseAttempts: 3,
	}, nil)
	mgmt := NewManagementService(store, mp, journal.Nop{}, 0.5, nil)
	return NewEngine(parser.NewClassifier(testSymbol, mp), signals, mgmt, nil), store
}

func signalMessage(id int64, text string) domain.Message {
	return domain.Message{ID: id, Text: text, Time: time.Now().UTC()}
}

const buySignalText = `XAUUSD BUY @ 4910
TP 4915
TP 4920
SL 4900`

func TestHandleMessageMarketEntry(t *testing.T) {
	sim := venue.NewSimulator()
	sim.SetTick(domain.Tick{Bid: 4909.5, Ask: 4910.5, Time: time.Now().UTC()})
	eng, store := newTestEngine(t, sim)

	if err := eng.HandleMessage(context.Background(), signalMessage(1001, buySignalText)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	splits := store.SplitsFor(1001)
	if len(splits) != 2 {
		t.Fatalf("got %d splits, want 2", len(splits))
	}
	for _, p := range splits {
		if p.Status != domain.StatusOpen {
			t.Errorf("split %s status = %s, want OPEN", p.SplitID, p.Status)
		}
		if p.PositionTicket == "" {
			t.Errorf("split %s has no position ticket", p.SplitID)
		}
	}
}

func TestHandleMessagePendingEntry(t *testing.T) {
	sim := venue.NewSimulator()
	// Ask 4905 is a pullback 5 below the 4910 entry: BUY rests as STOP.
	sim.SetTick(domain.Tick{Bid: 4904.5, Ask: 4905.0, Time: time.Now().UTC()})
	eng, store := newTestEngine(t, sim)

	if err := eng.HandleMessage(context.Background(), signalMessage(1002, buySignalText)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	for _, p := range store.SplitsFor(1002) {
		if p.Status != domain.StatusPending {
			t.Errorf("split %s status = %s, want PENDING", p.SplitID, p.Status)
		}
		if p.OrderTicket == "" {
			t.Errorf("split %s has no order ticket", p.SplitID)
		}
	}
}

func TestHandleMessageHardDriftSkips(t *testing.T) {
	sim := venue.NewSimulator()
	sim.SetTick(domain.Tick{Bid: 4939.5, Ask: 4940.0, Time: time.Now().UTC()})
	eng, store := newTestEngine(t, sim)

	if err := eng.HandleMessage(context.Background(), signalMessage(1003, buySignalText)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	for _, p := range store.SplitsFor(1003) {
		if p.Status != domain.StatusSkipped {
			t.Errorf("split %s status = %s, want SKIPPED", p.SplitID, p.Status)
		}
	}
}

func TestHandleMessageSkipsReachedTP(t *testing.T) {
	sim := venue.NewSimulator()
	// Bid 4916 has already passed the first TP (4915.5) but not the second.
	sim.SetTick(domain.Tick{Bid: 4916.0, Ask: 4916.5, Time: time.Now().UTC()})
	eng, store := newTestEngine(t, sim)

	// Entry 4915 keeps the decision within tolerance of current price.
	text := "XAUUSD BUY @ 4915\nTP 4915.5\nTP 4920\nSL 4905"
	if err := eng.HandleMessage(context.Background(), signalMessage(1004, text)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	splits := store.SplitsFor(1004)
	if len(splits) != 2 {
		t.Fatalf("got %d splits, want 2", len(splits))
	}
	if splits[0].Status != domain.StatusSkipped {
		t.Errorf("split 0 status = %s, want SKIPPED (tp passed)", splits[0].Status)
	}
	if splits[1].Status != domain.StatusOpen {
		t.Errorf("split 1 status = %s, want OPEN", splits[1].Status)
	}
}

func TestHandleMessageDuplicateIgnored(t *testing.T) {
	sim := venue.NewSimulator()
	sim.SetTick(domain.Tick{Bid: 4909.5, Ask: 4910.5, Time: time.Now().UTC()})
	eng, store := newTestEngine(t, sim)

	msg := signalMessage(1005, buySignalText)
	if err := eng.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if err := eng.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage (dup) returned error: %v", err)
	}

	if got := len(store.SplitsFor(1005)); got != 2 {
		t.Errorf("got %d splits after duplicate delivery, want 2", got)
	}
}

func TestHandleMessageEditAfterSplitsIgnored(t *testing.T) {
	sim := venue.NewSimulator()
	sim.SetTick(domain.Tick{Bid: 4909.5, Ask: 4910.5, Time: time.Now().UTC()})
	eng, store := newTestEngine(t, sim)

	if err := eng.HandleMessage(context.Background(), signalMessage(1006, buySignalText)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	edited := signalMessage(1006, "XAUUSD BUY @ 4950\nTP 4960\nSL 4940")
	edited.Edited = true
	if err := eng.HandleMessage(context.Background(), edited); err != nil {
		t.Fatalf("HandleMessage (edit) returned error: %v", err)
	}

	sig, ok := store.Signal(1006)
	if !ok {
		t.Fatal("signal 1006 missing")
	}
	if sig.Entry != 4910 {
		t.Errorf("entry = %.2f after late edit, want 4910 (original kept)", sig.Entry)
	}
}

func TestHandleMessageEditBeforeParseRetries(t *testing.T) {
	sim := venue.NewSimulator()
	sim.SetTick(domain.Tick{Bid: 4909.5, Ask: 4910.5, Time: time.Now().UTC()})
	eng, store := newTestEngine(t, sim)

	// First delivery is incomplete: mentions the symbol but carries no prices.
	if err := eng.HandleMessage(context.Background(), signalMessage(1007, "XAUUSD BUY")); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if store.HasSignal(1007) {
		t.Fatal("incomplete message should not produce a signal")
	}

	edited := signalMessage(1007, buySignalText)
	edited.Edited = true
	if err := eng.HandleMessage(context.Background(), edited); err != nil {
		t.Fatalf("HandleMessage (edit) returned error: %v", err)
	}

	if got := len(store.SplitsFor(1007)); got != 2 {
		t.Errorf("got %d splits after completing edit, want 2", got)
	}
}

func TestHandleMessageTransientFailureLeavesNew(t *testing.T) {
	sim := venue.NewSimulator()
	sim.SetTick(domain.Tick{Bid: 4909.5, Ask: 4910.5, Time: time.Now().UTC()})
	eng, store := newTestEngine(t, sim)

	sim.FailNext(venue.TransientErr("open market", context.DeadlineExceeded))
	if err := eng.HandleMessage(context.Background(), signalMessage(1008, buySignalText)); err == nil {
		t.Fatal("HandleMessage should surface the transient failure")
	}

	splits := store.SplitsFor(1008)
	var opened, queued int
	for _, p := range splits {
		switch p.Status {
		case domain.StatusOpen:
			opened++
		case domain.StatusNew:
			queued++
		}
	}
	if queued != 1 || opened != 1 {
		t.Fatalf("after one transient failure: %d NEW, %d OPEN, want 1 and 1", queued, opened)
	}

	// A retry executes only the split that stayed NEW.
	if err := eng.HandleMessage(context.Background(), signalMessage(1008, buySignalText)); err != nil {
		t.Fatalf("HandleMessage (retry) returned error: %v", err)
	}
	for _, p := range store.SplitsFor(1008) {
		if p.Status != domain.StatusOpen {
			t.Errorf("split %s status = %s after retry, want OPEN", p.SplitID, p.Status)
		}
	}
}

func TestHandleMessagePermanentFailureErrors(t *testing.T) {
	sim := venue.NewSimulator()
	sim.SetTick(domain.Tick{Bid: 4909.5, Ask: 4910.5, Time: time.Now().UTC()})
	eng, store := newTestEngine(t, sim)

	sim.FailNext(venue.PermanentErr("open market", context.Canceled))
	if err := eng.HandleMessage(context.Background(), signalMessage(1009, buySignalText)); err == nil {
		t.Fatal("HandleMessage should surface the rejection")
	}

	splits := store.SplitsFor(1009)
	var failed int
	for _, p := range splits {
		if p.Status == domain.StatusError {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("%d splits in ERROR, want 1", failed)
	}
}

func TestHandleMessageNoiseDropped(t *testing.T) {
	sim := venue.NewSimulator()
	eng, store := newTestEngine(t, sim)

	if err := eng.HandleMessage(context.Background(), signalMessage(1010, "TP ✅ +50 pips!")); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if store.HasSignal(1010) {
		t.Error("noise message should not produce a signal")
	}
}

// ---------------------------------------------------------------------------
// Management
// ---------------------------------------------------------------------------

func openSignal(t *testing.T, eng *Engine, sim *venue.Simulator, id int64) {
	t.Helper()
	sim.SetTick(domain.Tick{Bid: 4909.5, Ask: 4910.5, Time: time.Now().UTC()})
	if err := eng.HandleMessage(context.Background(), signalMessage(id, buySignalText)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
}

func replyMessage(id int64, text string, replyTo int64) domain.Message {
	return domain.Message{ID: id, Text: text, ReplyTo: &replyTo, Time: time.Now().UTC()}
}

func TestManagementArmBreakEven(t *testing.T) {
	sim := venue.NewSimulator()
	eng, store := newTestEngine(t, sim)
	openSignal(t, eng, sim, 2001)

	if err := eng.HandleMessage(context.Background(), replyMessage(2002, "mover el stop loss a BE", 2001)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	for _, p := range store.SplitsFor(2001) {
		if !p.BEArmed {
			t.Errorf("split %s BEArmed = false, want true", p.SplitID)
		}
		if p.BEDone {
			t.Errorf("split %s BEDone = true before venue confirmation", p.SplitID)
		}
	}
}

func TestManagementArmMoveSL(t *testing.T) {
	sim := venue.NewSimulator()
	eng, store := newTestEngine(t, sim)
	openSignal(t, eng, sim, 2003)

	if err := eng.HandleMessage(context.Background(), replyMessage(2004, "MOVER EL SL A 4905", 2003)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	for _, p := range store.SplitsFor(2003) {
		if !p.SLMoveArmed {
			t.Errorf("split %s SLMoveArmed = false, want true", p.SplitID)
		}
		if p.SL != 4905 {
			t.Errorf("split %s SL = %.2f, want 4905", p.SplitID, p.SL)
		}
	}
}

func TestManagementArmCloseAtTP(t *testing.T) {
	sim := venue.NewSimulator()
	eng, store := newTestEngine(t, sim)
	openSignal(t, eng, sim, 2005)

	if err := eng.HandleMessage(context.Background(), replyMessage(2006, "CERRAR en TP 2", 2005)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	for _, p := range store.SplitsFor(2005) {
		if !p.CloseArmed {
			t.Errorf("split %s CloseArmed = false, want true", p.SplitID)
		}
		if !p.CloseHasTarget || p.CloseTarget != 4920 {
			t.Errorf("split %s close target = %.2f (has %v), want 4920", p.SplitID, p.CloseTarget, p.CloseHasTarget)
		}
	}
}

func TestManagementCloseUnknownTPIgnored(t *testing.T) {
	sim := venue.NewSimulator()
	eng, store := newTestEngine(t, sim)
	openSignal(t, eng, sim, 2007)

	if err := eng.HandleMessage(context.Background(), replyMessage(2008, "CERRAR en TP 9", 2007)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	for _, p := range store.SplitsFor(2007) {
		if p.CloseArmed {
			t.Errorf("split %s CloseArmed = true for unknown tp level", p.SplitID)
		}
	}
}

func TestManagementWithoutReplyIgnored(t *testing.T) {
	sim := venue.NewSimulator()
	eng, store := newTestEngine(t, sim)
	openSignal(t, eng, sim, 2009)

	// Same text, but no reply reference: nothing to bind to.
	if err := eng.HandleMessage(context.Background(), signalMessage(2010, "MOVER EL SL A 4905")); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	for _, p := range store.SplitsFor(2009) {
		if p.SLMoveArmed {
			t.Errorf("split %s SLMoveArmed = true without reply reference", p.SplitID)
		}
	}
}

func TestManagementUnknownSignalIgnored(t *testing.T) {
	sim := venue.NewSimulator()
	eng, _ := newTestEngine(t, sim)

	if err := eng.HandleMessage(context.Background(), replyMessage(2012, "CERRAR TODO", 9999)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
}

func TestManagementCloseAllArmsImmediate(t *testing.T) {
	sim := venue.NewSimulator()
	eng, store := newTestEngine(t, sim)
	openSignal(t, eng, sim, 2013)

	if err := eng.HandleMessage(context.Background(), replyMessage(2014, "CERRAR TODO", 2013)); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	for _, p := range store.SplitsFor(2013) {
		if !p.CloseArmed {
			t.Errorf("split %s CloseArmed = false, want true", p.SplitID)
		}
		if p.CloseHasTarget {
			t.Errorf("split %s CloseHasTarget = true, want immediate close", p.SplitID)
		}
	}
}
