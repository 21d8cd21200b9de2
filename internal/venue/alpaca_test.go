package venue

import (
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"goldbot/internal/domain"
)

func TestMarketFillPrice(t *testing.T) {
	reported := decimal.NewFromFloat(4910.25)
	zero := decimal.Zero
	tick := domain.Tick{Bid: 4909.5, Ask: 4910.5}

	tests := []struct {
		name   string
		filled *decimal.Decimal
		side   domain.Side
		want   float64
	}{
		{"reported fill wins", &reported, domain.SideBuy, 4910.25},
		{"nil fill buys at ask", nil, domain.SideBuy, 4910.5},
		{"nil fill sells at bid", nil, domain.SideSell, 4909.5},
		{"zero fill falls back to quote", &zero, domain.SideBuy, 4910.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := marketFillPrice(tt.filled, tt.side, tick)
			if got != tt.want {
				t.Errorf("marketFillPrice = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool // permanent
	}{
		{"unprocessable", 422, true},
		{"forbidden", 403, true},
		{"rate limited", 429, false},
		{"request timeout", 408, false},
		{"server error", 500, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("open market", &alpaca.APIError{StatusCode: tt.status})
			if got := IsPermanent(err); got != tt.want {
				t.Errorf("IsPermanent(status %d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}
