package parser

import (
	"testing"

	"goldbot/internal/domain"
)

func TestManagementParse(t *testing.T) {
	mp := NewManagementParser()

	tests := []struct {
		name      string
		text      string
		wantType  domain.ManagementType
		wantPrice float64
		wantIndex int
	}{
		{"bare be", "BE", domain.ManageBreakEven, 0, 0},
		{"be lowercase", "be", domain.ManageBreakEven, 0, 0},
		{"break even words", "break even", domain.ManageBreakEven, 0, 0},
		{"move sl spanish", "MOVER EL SL A 4905", domain.ManageMoveSL, 4905, 0},
		{"move sl english", "MOVE SL TO 4905.5", domain.ManageMoveSL, 4905.5, 0},
		{"move stop loss", "move stop loss to 4902", domain.ManageMoveSL, 4902, 0},
		{"close tp spanish", "CERRAR TP1", domain.ManageCloseTPAt, 0, 1},
		{"close tp english", "close tp2", domain.ManageCloseTPAt, 0, 2},
		{"close all spanish", "CERRAR TODO", domain.ManageCloseAllAt, 0, 0},
		{"close all english", "CLOSE ALL", domain.ManageCloseAllAt, 0, 0},
		{"none", "nice trade!", domain.ManageNone, 0, 0},
		{"empty", "", domain.ManageNone, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mp.Parse(tt.text)
			if got.Type != tt.wantType {
				t.Errorf("Parse(%q).Type = %s, want %s", tt.text, got.Type, tt.wantType)
			}
			if got.Price != tt.wantPrice {
				t.Errorf("Parse(%q).Price = %v, want %v", tt.text, got.Price, tt.wantPrice)
			}
			if got.TPIndex != tt.wantIndex {
				t.Errorf("Parse(%q).TPIndex = %d, want %d", tt.text, got.TPIndex, tt.wantIndex)
			}
		})
	}
}

func TestMoveSLWinsOverBE(t *testing.T) {
	mp := NewManagementParser()

	// Compound phrasing resolves to the most specific command.
	got := mp.Parse("MOVER EL STOP LOSS A 4905")
	if got.Type != domain.ManageMoveSL || got.Price != 4905 {
		t.Errorf("Parse = %+v, want MOVE_SL at 4905", got)
	}
}

func TestIsManagementCommand(t *testing.T) {
	mp := NewManagementParser()

	if !mp.IsManagementCommand("BE") {
		t.Error("IsManagementCommand(BE) = false")
	}
	if !mp.IsManagementCommand("CERRAR TODO") {
		t.Error("IsManagementCommand(CERRAR TODO) = false")
	}
	if mp.IsManagementCommand("XAUUSD BUY @ 4910\nTP1: 4912\nSL: 4900") {
		t.Error("a signal must not classify as a management command")
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier("XAUUSD", NewManagementParser())

	tests := []struct {
		name string
		text string
		want Category
	}{
		{"full signal", validBuySignal, CategorySignal},
		{"management be", "BE", CategoryManagement},
		{"management close all", "CERRAR TODO", CategoryManagement},
		{"result note", "SL❌", CategoryNonSignal},
		{"pips announcement", "+40 PIPS✅", CategoryNonSignal},
		{"marketing", "CHICOS atentos", CategoryNonSignal},
		{"empty", "", CategoryNonSignal},
		{"symbol only", "XAUUSD looking bullish", CategorySignal},
		{"chatter", "good morning", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}
