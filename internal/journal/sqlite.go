package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"goldbot/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// SQLite persists events and closed trades in a SQLite database.
type SQLite struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	split_id TEXT NOT NULL DEFAULT '',
	msg_id   INTEGER NOT NULL DEFAULT 0,
	detail   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_split ON events(split_id);

CREATE TABLE IF NOT EXISTS closed_trades (
	split_id    TEXT PRIMARY KEY,
	signal_id   INTEGER NOT NULL,
	split_index INTEGER NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	status      TEXT NOT NULL,
	entry       REAL NOT NULL,
	tp          REAL NOT NULL,
	sl          REAL NOT NULL,
	volume      REAL NOT NULL,
	open_price  REAL NOT NULL,
	close_price REAL NOT NULL,
	opened_at   INTEGER NOT NULL,
	closed_at   INTEGER NOT NULL,
	fail_reason TEXT NOT NULL DEFAULT ''
);
`

// NewSQLite opens (or creates) the journal database at dbPath and ensures
// the schema exists.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SaveEvent appends one event row.
func (s *SQLite) SaveEvent(ctx context.Context, ev Event) error {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ts, kind, split_id, msg_id, detail) VALUES (?, ?, ?, ?, ?)`,
		ts.UnixMilli(), ev.Kind, ev.SplitID, ev.MsgID, ev.Detail,
	)
	return err
}

// EventsFor returns the journal entries recorded for a split, oldest first.
func (s *SQLite) EventsFor(ctx context.Context, splitID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, kind, split_id, msg_id, detail FROM events WHERE split_id = ? ORDER BY id`,
		splitID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var ts int64
		if err := rows.Scan(&ts, &ev.Kind, &ev.SplitID, &ev.MsgID, &ev.Detail); err != nil {
			return nil, err
		}
		ev.Time = time.UnixMilli(ts).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SaveClosedTrade upserts the terminal record of a position.
func (s *SQLite) SaveClosedTrade(ctx context.Context, p domain.Position) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO closed_trades
		(split_id, signal_id, split_index, symbol, side, status, entry, tp, sl, volume,
		 open_price, close_price, opened_at, closed_at, fail_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SplitID, p.SignalID, p.SplitIndex, p.Symbol, string(p.Side), string(p.Status),
		p.Entry, p.TP, p.SL, p.Volume,
		p.OpenPrice, p.ClosePrice, p.OpenedAt.UnixMilli(), p.ClosedAt.UnixMilli(), p.FailReason,
	)
	return err
}

// ClosedTrades returns all recorded closed trades, oldest close first.
func (s *SQLite) ClosedTrades(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT split_id, signal_id, split_index, symbol, side, status, entry, tp, sl, volume,
		 open_price, close_price, opened_at, closed_at, fail_reason
		 FROM closed_trades ORDER BY closed_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var side, status string
		var openedAt, closedAt int64
		if err := rows.Scan(&p.SplitID, &p.SignalID, &p.SplitIndex, &p.Symbol, &side, &status,
			&p.Entry, &p.TP, &p.SL, &p.Volume,
			&p.OpenPrice, &p.ClosePrice, &openedAt, &closedAt, &p.FailReason); err != nil {
			return nil, err
		}
		p.Side = domain.Side(side)
		p.Status = domain.Status(status)
		p.OpenedAt = time.UnixMilli(openedAt).UTC()
		p.ClosedAt = time.UnixMilli(closedAt).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
