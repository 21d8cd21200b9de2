package venue

import (
	"context"
	"fmt"
	"sync"

	"goldbot/internal/domain"
)

// Compile-time interface check.
var _ Venue = (*Simulator)(nil)

// Simulator implements Venue entirely in memory for paper trading and tests.
// The current tick is set by the test or by a feed replay; orders fill at
// the quoted spread without slippage.
type Simulator struct {
	mu         sync.Mutex
	tick       domain.Tick
	tickErr    error
	nextTicket int

	orders    map[string]simOrder
	positions map[string]simPosition

	// FailNext, when set, makes the next mutating call fail with the given
	// error and then resets. Used to exercise retry paths.
	failNext error
}

type simOrder struct {
	symbol string
	side   domain.Side
	mode   domain.ExecMode
	volume float64
	price  float64
	sl     float64
	tp     float64
}

type simPosition struct {
	symbol string
	side   domain.Side
	volume float64
	sl     float64
	tp     float64
	open   float64
}

// NewSimulator creates a Simulator with no quote; call SetTick before use.
func NewSimulator() *Simulator {
	return &Simulator{
		orders:    make(map[string]simOrder),
		positions: make(map[string]simPosition),
	}
}

// Name returns "simulator".
func (s *Simulator) Name() string { return "simulator" }

// SetTick sets the quote returned by GetTick.
func (s *Simulator) SetTick(t domain.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = t
	s.tickErr = nil
}

// SetTickError makes GetTick fail until the next SetTick.
func (s *Simulator) SetTickError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickErr = err
}

// FailNext makes the next mutating venue call return err.
func (s *Simulator) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Simulator) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *Simulator) newTicket(prefix string) string {
	s.nextTicket++
	return fmt.Sprintf("%s-%d", prefix, s.nextTicket)
}

// GetTick returns the configured quote.
func (s *Simulator) GetTick(_ context.Context, _ string) (domain.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tickErr != nil {
		return domain.Tick{}, TransientErr("get tick", s.tickErr)
	}
	return s.tick, nil
}

// OpenMarket fills immediately at the tradable side of the spread.
func (s *Simulator) OpenMarket(_ context.Context, symbol string, side domain.Side, volume, sl, tp float64) (string, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return "", 0, err
	}
	fill := s.tick.PriceFor(side)
	ticket := s.newTicket("pos")
	s.positions[ticket] = simPosition{symbol: symbol, side: side, volume: volume, sl: sl, tp: tp, open: fill}
	return ticket, fill, nil
}

// OpenPending rests an order at price.
func (s *Simulator) OpenPending(_ context.Context, symbol string, side domain.Side, mode domain.ExecMode, volume, price, sl, tp float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return "", err
	}
	if mode != domain.ExecLimit && mode != domain.ExecStop {
		return "", PermanentErr("open pending", fmt.Errorf("mode %s is not a pending mode", mode))
	}
	ticket := s.newTicket("ord")
	s.orders[ticket] = simOrder{symbol: symbol, side: side, mode: mode, volume: volume, price: price, sl: sl, tp: tp}
	return ticket, nil
}

// ModifyStopLoss updates the stop of a live position.
func (s *Simulator) ModifyStopLoss(_ context.Context, ticket string, newSL float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	p, ok := s.positions[ticket]
	if !ok {
		return PermanentErr("modify stop loss", fmt.Errorf("no position %s", ticket))
	}
	p.sl = newSL
	s.positions[ticket] = p
	return nil
}

// ClosePosition removes a live position.
func (s *Simulator) ClosePosition(_ context.Context, ticket string, _ domain.Side, _ float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, ok := s.positions[ticket]; !ok {
		return PermanentErr("close position", fmt.Errorf("no position %s", ticket))
	}
	delete(s.positions, ticket)
	return nil
}

// CancelOrder removes a resting order.
func (s *Simulator) CancelOrder(_ context.Context, ticket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, ok := s.orders[ticket]; !ok {
		return PermanentErr("cancel order", fmt.Errorf("no order %s", ticket))
	}
	delete(s.orders, ticket)
	return nil
}

// OpenOrderTickets lists resting order tickets.
func (s *Simulator) OpenOrderTickets(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.orders))
	for t := range s.orders {
		out = append(out, t)
	}
	return out, nil
}

// OpenPositionTickets lists live position tickets.
func (s *Simulator) OpenPositionTickets(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.positions))
	for t := range s.positions {
		out = append(out, t)
	}
	return out, nil
}

// FillOrder converts a resting order into a live position at fill price.
// Test hook simulating the venue filling a pending order. The position keeps
// the order ticket as its handle, same as the live binding, which tracks a
// filled bracket by its entry order id. Fill detection relies on this: a
// position promoted from PENDING carries its order ticket forward.
func (s *Simulator) FillOrder(ticket string, fill float64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[ticket]
	if !ok {
		return "", false
	}
	delete(s.orders, ticket)
	s.positions[ticket] = simPosition{symbol: o.symbol, side: o.side, volume: o.volume, sl: o.sl, tp: o.tp, open: fill}
	return ticket, true
}

// ClosePositionExternally removes a live position as if the venue had closed
// it (stop or take-profit hit). Test hook.
func (s *Simulator) ClosePositionExternally(ticket string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[ticket]; !ok {
		return false
	}
	delete(s.positions, ticket)
	return true
}

// StopLossOf returns the stop currently set on a live position. Test hook.
func (s *Simulator) StopLossOf(ticket string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[ticket]
	if !ok {
		return 0, false
	}
	return p.sl, true
}
