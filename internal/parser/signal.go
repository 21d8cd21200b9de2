// Package parser turns raw message text into structured commands: trading
// signals and management actions. Parsers fail closed — anything that cannot
// be fully reconciled with the domain invariants yields "not recognized"
// rather than a partial result.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"goldbot/internal/domain"
)

var (
	buyRE  = regexp.MustCompile(`(?i)\bBUY\b`)
	sellRE = regexp.MustCompile(`(?i)\bSELL\b`)

	// Entry price directly after the side keyword: "BUY @ 4910", "SELL 4880".
	entryAfterSideRE = regexp.MustCompile(`(?i)\b(?:BUY|SELL)\b\s*@?\s*(\d+(?:\.\d+)?)`)

	// Entry quoted as a range: "BUY @ (4982.5-4981.5)".
	entryRangeRE = regexp.MustCompile(`\(\s*(\d+(?:\.\d+)?)\s*[-–]\s*(\d+(?:\.\d+)?)\s*\)`)

	tpRE = regexp.MustCompile(`(?i)\bTP\s*\d*\s*[:\s]+(\d+(?:\.\d+)?)`)
	slRE = regexp.MustCompile(`(?i)\b(?:SL|S/L|STOP\s*LOSS|STOPLOSS)\b\s*[:\s]+(\d+(?:\.\d+)?)`)
)

// SignalParser extracts trading signals for a single instrument from free
// text. It tolerates whitespace and case variation across the signal flavors
// the channel actually sends.
type SignalParser struct {
	symbol   string
	symbolRE *regexp.Regexp
}

// NewSignalParser builds a parser recognizing signals for the given symbol.
func NewSignalParser(symbol string) *SignalParser {
	return &SignalParser{
		symbol:   symbol,
		symbolRE: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(symbol) + `\b`),
	}
}

// Parse extracts a Signal from text, or returns nil if the text is not a
// complete, valid signal. A signal needs the symbol, a side, an entry, a
// stop-loss, and at least one take-profit; the whole message is rejected if
// the resulting prices violate the side's ordering invariant.
func (p *SignalParser) Parse(text string, msgID int64) *domain.Signal {
	if text == "" || !p.symbolRE.MatchString(text) {
		return nil
	}

	side, ok := extractSide(text)
	if !ok {
		return nil
	}

	entry, ok := extractEntry(text, side)
	if !ok {
		return nil
	}

	tps := extractTPs(text)
	sl, ok := extractSL(text)
	if !ok || len(tps) == 0 {
		return nil
	}

	sig := &domain.Signal{
		MessageID: msgID,
		Symbol:    p.symbol,
		Side:      side,
		Entry:     entry,
		TPs:       tps,
		SL:        sl,
		CreatedAt: time.Now().UTC(),
	}
	if err := sig.Validate(); err != nil {
		return nil
	}
	return sig
}

func extractSide(text string) (domain.Side, bool) {
	if buyRE.MatchString(text) {
		return domain.SideBuy, true
	}
	if sellRE.MatchString(text) {
		return domain.SideSell, true
	}
	return "", false
}

func extractEntry(text string, side domain.Side) (float64, bool) {
	// Ranges first: for a BUY prefer the low end, for a SELL the high end.
	if m := entryRangeRE.FindStringSubmatch(text); m != nil {
		a, errA := strconv.ParseFloat(m[1], 64)
		b, errB := strconv.ParseFloat(m[2], 64)
		if errA != nil || errB != nil {
			return 0, false
		}
		lo, hi := a, b
		if lo > hi {
			lo, hi = hi, lo
		}
		if side == domain.SideBuy {
			return lo, true
		}
		return hi, true
	}

	m := entryAfterSideRE.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func extractTPs(text string) []float64 {
	var tps []float64
	for _, m := range tpRE.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		tps = append(tps, v)
	}
	return tps
}

func extractSL(text string) (float64, bool) {
	m := slRE.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// String implements fmt.Stringer for log context.
func (p *SignalParser) String() string {
	return fmt.Sprintf("SignalParser(%s)", p.symbol)
}
