// Package httpapi provides a read-only HTTP API over the bot's state:
// health, positions, and signals with their splits, in JSON.
package httpapi

import "goldbot/internal/domain"

// HealthJSON is the response of GET /api/health.
type HealthJSON struct {
	Status    string `json:"status"`
	Venue     string `json:"venue"`
	Symbol    string `json:"symbol"`
	UptimeSec int64  `json:"uptimeSec"`
}

// PositionJSON is the JSON representation of one split position.
type PositionJSON struct {
	SplitID    string  `json:"splitId"`
	SignalID   int64   `json:"signalId"`
	SplitIndex int     `json:"splitIndex"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Status     string  `json:"status"`
	Entry      float64 `json:"entry"`
	TP         float64 `json:"tp"`
	SL         float64 `json:"sl"`
	Volume     float64 `json:"volume"`
	OpenPrice  float64 `json:"openPrice,omitempty"`
	ClosePrice float64 `json:"closePrice,omitempty"`
	BEArmed    bool    `json:"beArmed,omitempty"`
	SLMove     bool    `json:"slMoveArmed,omitempty"`
	CloseArmed bool    `json:"closeArmed,omitempty"`
	FailReason string  `json:"failReason,omitempty"`
}

// SignalJSON is the JSON representation of a signal and its splits.
type SignalJSON struct {
	MessageID int64          `json:"messageId"`
	Symbol    string         `json:"symbol"`
	Side      string         `json:"side"`
	Entry     float64        `json:"entry"`
	TPs       []float64      `json:"tps"`
	SL        float64        `json:"sl"`
	Splits    []PositionJSON `json:"splits"`
}

func positionJSON(p domain.Position) PositionJSON {
	return PositionJSON{
		SplitID:    p.SplitID,
		SignalID:   p.SignalID,
		SplitIndex: p.SplitIndex,
		Symbol:     p.Symbol,
		Side:       string(p.Side),
		Status:     string(p.Status),
		Entry:      p.Entry,
		TP:         p.TP,
		SL:         p.SL,
		Volume:     p.Volume,
		OpenPrice:  p.OpenPrice,
		ClosePrice: p.ClosePrice,
		BEArmed:    p.BEArmed,
		SLMove:     p.SLMoveArmed,
		CloseArmed: p.CloseArmed,
		FailReason: p.FailReason,
	}
}
