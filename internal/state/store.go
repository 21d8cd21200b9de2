// Package state provides the single in-memory repository of signals and
// positions, plus the short-lived message cache used for de-duplication and
// edit reconciliation. The store is the sole serialization point for
// position state: nothing outside this package mutates a Position.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"goldbot/internal/domain"
)

// ErrUnknownSplit is returned by Mutate for a split id the store never built.
var ErrUnknownSplit = errors.New("unknown split id")

// MessageMeta is the de-duplication record kept per inbound message id.
type MessageMeta struct {
	MsgID         int64
	FirstSeen     time.Time
	LastSeen      time.Time
	LastText      string
	ParseAttempts int
	ParseFailed   bool
}

// WithinWindow reports whether the last sighting of the message falls inside
// the edit-tolerance window measured from the first sighting.
func (m MessageMeta) WithinWindow(window time.Duration) bool {
	return m.LastSeen.Sub(m.FirstSeen) <= window
}

type signalEntry struct {
	signal domain.Signal
	splits []string // split ids, in take-profit order
}

// Store holds all signals, their positions, and the message cache behind one
// RWMutex. Mutating operations are safe to call concurrently from the
// orchestrator and the watcher loops.
type Store struct {
	mu        sync.RWMutex
	signals   map[int64]*signalEntry
	positions map[string]*domain.Position
	msgCache  map[int64]*MessageMeta

	maxSplits      int // 0 means no cap
	volumePerSplit float64
	log            *slog.Logger
}

// NewStore creates an empty Store. maxSplits caps how many take-profits of a
// signal become positions (0 = unlimited); volumePerSplit is the volume each
// split is apportioned.
func NewStore(maxSplits int, volumePerSplit float64, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		signals:        make(map[int64]*signalEntry),
		positions:      make(map[string]*domain.Position),
		msgCache:       make(map[int64]*MessageMeta),
		maxSplits:      maxSplits,
		volumePerSplit: volumePerSplit,
		log:            log.With("component", "state"),
	}
}

// ---------------------------------------------------------------------------
// Message cache
// ---------------------------------------------------------------------------

// messageRetention bounds the cache: entries unseen for this long are
// dropped on the next upsert. Comfortably beyond any edit window, so an
// evicted message can no longer be a live edit target.
const messageRetention = time.Hour

// UpsertMessage records a sighting of the message and returns a copy of its
// cache record. Stale records are evicted on the way in.
func (s *Store) UpsertMessage(msgID int64, text string, now time.Time) MessageMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, old := range s.msgCache {
		if now.Sub(old.LastSeen) > messageRetention {
			delete(s.msgCache, id)
		}
	}

	m, ok := s.msgCache[msgID]
	if !ok {
		m = &MessageMeta{MsgID: msgID, FirstSeen: now}
		s.msgCache[msgID] = m
	}
	m.LastSeen = now
	m.LastText = text
	return *m
}

// MarkParseAttempt records the outcome of a parse attempt for the message.
func (s *Store) MarkParseAttempt(msgID int64, failed bool) MessageMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgCache[msgID]
	if !ok {
		m = &MessageMeta{MsgID: msgID, FirstSeen: time.Now().UTC()}
		s.msgCache[msgID] = m
	}
	m.ParseAttempts++
	m.ParseFailed = failed
	return *m
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// HasSignal reports whether a signal with the given message id is stored.
func (s *Store) HasSignal(signalID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.signals[signalID]
	return ok
}

// AddSignal stores the signal keyed by its message id. Adding an id that
// already exists is a no-op, preserving the splits built for the original.
func (s *Store) AddSignal(sig *domain.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signals[sig.MessageID]; ok {
		return
	}
	s.signals[sig.MessageID] = &signalEntry{signal: *sig}
}

// ReplaceSignal swaps the stored signal for an edited message. It fails once
// splits exist: positions already reference the original prices and a silent
// swap would desynchronize them.
func (s *Store) ReplaceSignal(sig *domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.signals[sig.MessageID]
	if !ok {
		s.signals[sig.MessageID] = &signalEntry{signal: *sig}
		return nil
	}
	if len(e.splits) > 0 {
		return fmt.Errorf("signal %d already has %d splits", sig.MessageID, len(e.splits))
	}
	e.signal = *sig
	return nil
}

// Signal returns a copy of the stored signal.
func (s *Store) Signal(signalID int64) (domain.Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.signals[signalID]
	if !ok {
		return domain.Signal{}, false
	}
	sig := e.signal
	sig.TPs = append([]float64(nil), e.signal.TPs...)
	return sig, true
}

// ---------------------------------------------------------------------------
// Splits
// ---------------------------------------------------------------------------

// BuildSplits materializes one NEW position per take-profit of the signal.
// It is idempotent: a second call for the same signal id returns the splits
// already built, in their current state, without creating duplicates.
func (s *Store) BuildSplits(signalID int64) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.signals[signalID]
	if !ok {
		return nil, fmt.Errorf("build splits: no signal %d", signalID)
	}

	if len(e.splits) > 0 {
		return s.copySplitsLocked(e), nil
	}

	now := time.Now().UTC()
	for i, tp := range e.signal.TPs {
		if s.maxSplits > 0 && i >= s.maxSplits {
			break
		}
		id := domain.SplitID(signalID, i)
		s.positions[id] = &domain.Position{
			SplitID:    id,
			SignalID:   signalID,
			SplitIndex: i,
			Symbol:     e.signal.Symbol,
			Side:       e.signal.Side,
			Entry:      e.signal.Entry,
			TP:         tp,
			SL:         e.signal.SL,
			Volume:     s.volumePerSplit,
			Status:     domain.StatusNew,
			CreatedAt:  now,
		}
		e.splits = append(e.splits, id)
	}
	return s.copySplitsLocked(e), nil
}

func (s *Store) copySplitsLocked(e *signalEntry) []domain.Position {
	out := make([]domain.Position, 0, len(e.splits))
	for _, id := range e.splits {
		if p, ok := s.positions[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// SplitsFor returns copies of the positions built for the signal.
func (s *Store) SplitsFor(signalID int64) []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.signals[signalID]
	if !ok {
		return nil
	}
	return s.copySplitsLocked(e)
}

// Mutate runs fn on the live position under the write lock. This is the only
// mutation path: fn sees a consistent snapshot and its changes become visible
// atomically. An error from fn is returned unchanged and leaves whatever fn
// already did in place, so fn must mutate only on its success path.
func (s *Store) Mutate(splitID string, fn func(p *domain.Position) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[splitID]
	if !ok {
		return fmt.Errorf("mutate %s: %w", splitID, ErrUnknownSplit)
	}
	return fn(p)
}

// Position returns a copy of one position.
func (s *Store) Position(splitID string) (domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[splitID]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions returns copies of every position in the store.
func (s *Store) Positions() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out
}

// ByStatus returns copies of all positions currently in the given status.
func (s *Store) ByStatus(status domain.Status) []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == status {
			out = append(out, *p)
		}
	}
	return out
}

// ActiveForSignal returns copies of the signal's non-terminal positions.
func (s *Store) ActiveForSignal(signalID int64) []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.signals[signalID]
	if !ok {
		return nil
	}
	var out []domain.Position
	for _, id := range e.splits {
		if p, ok := s.positions[id]; ok && !p.Status.Terminal() {
			out = append(out, *p)
		}
	}
	return out
}
