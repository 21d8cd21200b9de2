package parser

import (
	"regexp"
	"strconv"

	"goldbot/internal/domain"
)

// The channel mixes Spanish and English command phrasing; both are accepted.
var (
	beRE = regexp.MustCompile(
		`(?i)\bBE\b|\bBREAK\s*EVEN\b|MOVER\s+EL\s+STOP\s*LOSS\s+A\s+BE|CERRAR\s+A\s+BE`)

	moveSLRE = regexp.MustCompile(
		`(?i)(?:MOVER\s+EL|MOVE)\s+(?:SL|STOP\s*LOSS)\s+(?:A|TO)\s*(\d+(?:\.\d+)?)`)

	closeTPRE = regexp.MustCompile(
		`(?i)\b(?:CERRAR|CLOSE)\b.*\bTP\s*(\d+)\b`)

	closeAllRE = regexp.MustCompile(
		`(?i)\b(?:CERRAR)\b.*\bTODO\b|\bCLOSE\s+ALL\b`)
)

// ManagementParser recognizes operator commands for managing open positions.
type ManagementParser struct{}

// NewManagementParser returns a ManagementParser.
func NewManagementParser() *ManagementParser {
	return &ManagementParser{}
}

// Parse classifies text into a management action. Unrecognized text yields
// the NONE action — never an error, since most messages are not commands.
//
// Precedence: an explicit stop-loss price wins over a bare BE keyword, and a
// specific take-profit close wins over close-all, so that compound phrasings
// like "move the stop loss to 4905" resolve to the most specific command.
func (mp *ManagementParser) Parse(text string) domain.ManagementAction {
	if text == "" {
		return domain.ManagementAction{Type: domain.ManageNone}
	}

	if m := moveSLRE.FindStringSubmatch(text); m != nil {
		if price, err := strconv.ParseFloat(m[1], 64); err == nil {
			return domain.ManagementAction{Type: domain.ManageMoveSL, Price: price}
		}
	}

	if beRE.MatchString(text) {
		return domain.ManagementAction{Type: domain.ManageBreakEven}
	}

	if m := closeTPRE.FindStringSubmatch(text); m != nil {
		if idx, err := strconv.Atoi(m[1]); err == nil {
			return domain.ManagementAction{Type: domain.ManageCloseTPAt, TPIndex: idx}
		}
	}

	if closeAllRE.MatchString(text) {
		return domain.ManagementAction{Type: domain.ManageCloseAllAt}
	}

	return domain.ManagementAction{Type: domain.ManageNone}
}

// IsManagementCommand is the fast pre-check the orchestrator uses to branch
// before attempting a full signal parse.
func (mp *ManagementParser) IsManagementCommand(text string) bool {
	return mp.Parse(text).Type != domain.ManageNone
}
