package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"goldbot/internal/domain"
)

// ParquetArchive appends closed trades to monthly Parquet files for offline
// analysis. The SQLite journal remains the source of truth; the archive is a
// columnar copy.
type ParquetArchive struct {
	Dir string
}

// NewParquetArchive creates an archive rooted at dir.
func NewParquetArchive(dir string) *ParquetArchive {
	return &ParquetArchive{Dir: dir}
}

// ClosedTradeRecord is the Parquet schema for an archived closed trade.
type ClosedTradeRecord struct {
	SplitID    string  `parquet:"split_id"`
	SignalID   int64   `parquet:"signal_id"`
	SplitIndex int32   `parquet:"split_index"`
	Symbol     string  `parquet:"symbol"`
	Side       string  `parquet:"side"`
	Status     string  `parquet:"status"`
	Entry      float64 `parquet:"entry"`
	TP         float64 `parquet:"tp"`
	SL         float64 `parquet:"sl"`
	Volume     float64 `parquet:"volume"`
	OpenPrice  float64 `parquet:"open_price"`
	ClosePrice float64 `parquet:"close_price"`
	OpenedAt   int64   `parquet:"opened_at,timestamp(millisecond)"` // Unix ms
	ClosedAt   int64   `parquet:"closed_at,timestamp(millisecond)"` // Unix ms
	FailReason string  `parquet:"fail_reason"`
}

// WriteClosed appends closed trades to their monthly archive files.
// Layout: <Dir>/<SYMBOL>/<YYYY-MM>.parquet. Re-archiving the same split id
// replaces the earlier record.
func (a *ParquetArchive) WriteClosed(positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	type key struct {
		symbol string
		month  string
	}
	groups := make(map[key][]ClosedTradeRecord)
	for _, p := range positions {
		k := key{symbol: p.Symbol, month: p.ClosedAt.UTC().Format("2006-01")}
		groups[k] = append(groups[k], ClosedTradeRecord{
			SplitID:    p.SplitID,
			SignalID:   p.SignalID,
			SplitIndex: int32(p.SplitIndex),
			Symbol:     p.Symbol,
			Side:       string(p.Side),
			Status:     string(p.Status),
			Entry:      p.Entry,
			TP:         p.TP,
			SL:         p.SL,
			Volume:     p.Volume,
			OpenPrice:  p.OpenPrice,
			ClosePrice: p.ClosePrice,
			OpenedAt:   p.OpenedAt.UnixMilli(),
			ClosedAt:   p.ClosedAt.UnixMilli(),
			FailReason: p.FailReason,
		})
	}

	for k, records := range groups {
		path := a.archivePath(k.symbol, k.month)

		existing, _ := readParquetFile[ClosedTradeRecord](path)
		merged := mergeClosedRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("archiving closed trades for %s/%s: %w", k.symbol, k.month, err)
		}
	}
	return nil
}

// ReadMonth returns the archived trades of one symbol-month, oldest first.
func (a *ParquetArchive) ReadMonth(symbol string, month time.Time) ([]ClosedTradeRecord, error) {
	return readParquetFile[ClosedTradeRecord](a.archivePath(symbol, month.UTC().Format("2006-01")))
}

// archivePath returns the filesystem path of one monthly archive file.
func (a *ParquetArchive) archivePath(symbol, month string) string {
	return filepath.Join(a.Dir, symbol, month+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeClosedRecords deduplicates records by split id, preferring incoming
// over existing. Results are sorted by close time.
func mergeClosedRecords(existing, incoming []ClosedTradeRecord) []ClosedTradeRecord {
	seen := make(map[string]ClosedTradeRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.SplitID] = r
	}
	for _, r := range incoming {
		seen[r.SplitID] = r
	}

	merged := make([]ClosedTradeRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ClosedAt < merged[j].ClosedAt
	})
	return merged
}
