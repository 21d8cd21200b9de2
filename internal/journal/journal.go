// Package journal persists the audit trail of the bot: an append-only event
// log and a closed-trade record, written to SQLite, with an optional Parquet
// archive of closed trades for offline analysis.
package journal

import (
	"context"
	"time"

	"goldbot/internal/domain"
)

// Event is one row in the append-only event journal.
type Event struct {
	Time    time.Time
	Kind    string // e.g. "signal_parsed", "split_opened", "mgmt_applied"
	SplitID string // empty for events not tied to a split
	MsgID   int64  // originating message id, 0 if none
	Detail  string
}

// Recorder receives lifecycle events and finished trades. Implementations
// must be safe for concurrent use; the engine and every watcher loop write
// through the same Recorder.
type Recorder interface {
	// Event appends one event to the journal.
	Event(ctx context.Context, ev Event) error

	// ClosedTrade records a position that reached a terminal state.
	ClosedTrade(ctx context.Context, p domain.Position) error
}

// Compile-time interface checks.
var _ Recorder = (*Journal)(nil)
var _ Recorder = Nop{}

// Nop is a Recorder that discards everything. Used in tests and when
// persistence is disabled.
type Nop struct{}

func (Nop) Event(context.Context, Event) error { return nil }

func (Nop) ClosedTrade(context.Context, domain.Position) error { return nil }

// Journal is the production Recorder: every event and closed trade goes to
// SQLite, and closed trades are additionally appended to the Parquet archive
// when one is configured.
type Journal struct {
	db      *SQLite
	archive *ParquetArchive
}

// New opens the journal database at sqlitePath and, when parquetDir is
// non-empty, a Parquet archive rooted there.
func New(sqlitePath, parquetDir string) (*Journal, error) {
	db, err := NewSQLite(sqlitePath)
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db}
	if parquetDir != "" {
		j.archive = NewParquetArchive(parquetDir)
	}
	return j, nil
}

// Event appends one event to the SQLite journal.
func (j *Journal) Event(ctx context.Context, ev Event) error {
	return j.db.SaveEvent(ctx, ev)
}

// ClosedTrade records the terminal position in SQLite and the archive.
func (j *Journal) ClosedTrade(ctx context.Context, p domain.Position) error {
	if err := j.db.SaveClosedTrade(ctx, p); err != nil {
		return err
	}
	if j.archive != nil {
		return j.archive.WriteClosed([]domain.Position{p})
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
