package parser

import "regexp"

// Category is the coarse classification of an inbound message.
type Category string

const (
	CategorySignal     Category = "SIGNAL_CANDIDATE"
	CategoryManagement Category = "MANAGEMENT"
	CategoryNonSignal  Category = "NON_SIGNAL"
	CategoryUnknown    Category = "UNKNOWN"
)

// Patterns that mark a message as definitely not a signal: result
// announcements, marketing, status notes. Filtering these up front keeps
// parse-failure noise out of the logs.
var nonSignalREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(SL|TP)\s*[❌✅]`),
	regexp.MustCompile(`(?i)^\+\d+\s*PIPS?\s*[✅❌]`),
	regexp.MustCompile(`(?i)\bCHICOS\b`),
	regexp.MustCompile(`(?i)\bFALTA\s+POCO\b`),
	regexp.MustCompile(`(?i)\bGRATUITAMENTE\b`),
	regexp.MustCompile(`(?i)\bACCESO\b.*\bOPORTUNIDAD\b`),
	regexp.MustCompile(`(?i)^CANCELAR`),
	regexp.MustCompile(`(?i)Modificar\s+el\s+Take\s+profit`),
	regexp.MustCompile(`(?i)Take\s+profit\s+\d+.*[✅❌]`),
}

var sideIndicatorRE = regexp.MustCompile(`(?i)\b(BUY|SELL)\b`)
var tpIndicatorRE = regexp.MustCompile(`(?i)\bTP\b`)
var slIndicatorRE = regexp.MustCompile(`(?i)\b(SL|STOP\s*LOSS)\b`)

// Classifier decides whether a message is worth a full parse attempt.
type Classifier struct {
	symbolRE   *regexp.Regexp
	management *ManagementParser
}

// NewClassifier builds a Classifier for the given instrument symbol.
func NewClassifier(symbol string, mp *ManagementParser) *Classifier {
	return &Classifier{
		symbolRE:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(symbol) + `\b`),
		management: mp,
	}
}

// Classify returns the message category. Management detection runs after the
// non-signal filter so that result notes mentioning TP numbers are not taken
// for close commands.
func (c *Classifier) Classify(text string) Category {
	if text == "" {
		return CategoryNonSignal
	}

	for _, re := range nonSignalREs {
		if re.MatchString(text) {
			return CategoryNonSignal
		}
	}

	if c.management.IsManagementCommand(text) {
		return CategoryManagement
	}

	indicators := 0
	for _, re := range []*regexp.Regexp{c.symbolRE, sideIndicatorRE, tpIndicatorRE, slIndicatorRE} {
		if re.MatchString(text) {
			indicators++
		}
	}
	if indicators >= 2 {
		return CategorySignal
	}
	if c.symbolRE.MatchString(text) {
		// Symbol alone: might be an incomplete signal still being edited.
		return CategorySignal
	}

	return CategoryUnknown
}
