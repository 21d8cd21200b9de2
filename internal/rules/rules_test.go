package rules

import (
	"testing"

	"goldbot/internal/domain"
)

func TestDecideExecutionBuy(t *testing.T) {
	tol := Symmetric(2, 20)

	tests := []struct {
		name    string
		current float64
		want    domain.ExecMode
	}{
		{"within tolerance above", 4911, domain.ExecMarket},
		{"within tolerance below", 4908.5, domain.ExecMarket},
		{"at entry", 4910, domain.ExecMarket},
		{"hard drift above", 4930, domain.ExecSkip},
		{"hard drift below", 4890, domain.ExecSkip},
		{"far above entry", 4920, domain.ExecLimit}, // pullback: entry below current
		{"far below entry", 4905, domain.ExecStop},  // breakout: entry above current
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideExecution(domain.SideBuy, 4910, tt.current, tol)
			if got != tt.want {
				t.Errorf("DecideExecution(BUY, 4910, %v) = %s, want %s", tt.current, got, tt.want)
			}
		})
	}
}

func TestDecideExecutionSell(t *testing.T) {
	tol := Symmetric(2, 20)

	tests := []struct {
		name    string
		current float64
		want    domain.ExecMode
	}{
		{"within tolerance", 4881, domain.ExecMarket},
		{"hard drift", 4860, domain.ExecSkip},
		{"far below entry", 4870, domain.ExecLimit}, // pullback: entry above current
		{"far above entry", 4890, domain.ExecStop},  // breakout: entry below current
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideExecution(domain.SideSell, 4880, tt.current, tol)
			if got != tt.want {
				t.Errorf("DecideExecution(SELL, 4880, %v) = %s, want %s", tt.current, got, tt.want)
			}
		})
	}
}

func TestDecideExecutionAsymmetricTolerance(t *testing.T) {
	// The original deployment runs a tight tolerance chasing the price and a
	// loose one on pullbacks.
	tol := Tolerances{HardDrift: 10, BuyUp: 0.30, BuyDown: 1.00, SellUp: 1.00, SellDown: 0.30}

	// BUY 0.5 above entry: beyond BuyUp → pending LIMIT (entry below current).
	if got := DecideExecution(domain.SideBuy, 4910, 4910.5, tol); got != domain.ExecLimit {
		t.Errorf("buy up 0.5 = %s, want LIMIT", got)
	}
	// BUY 0.5 below entry: within BuyDown → MARKET.
	if got := DecideExecution(domain.SideBuy, 4910, 4909.5, tol); got != domain.ExecMarket {
		t.Errorf("buy down 0.5 = %s, want MARKET", got)
	}
}

func TestDecideExecutionDriftBoundary(t *testing.T) {
	tol := Symmetric(2, 20)
	// Exactly at the hard drift is already stale.
	if got := DecideExecution(domain.SideBuy, 4910, 4930, tol); got != domain.ExecSkip {
		t.Errorf("delta == hard drift = %s, want SKIP", got)
	}
	if got := DecideExecution(domain.SideBuy, 4910, 4929.99, tol); got == domain.ExecSkip {
		t.Error("delta just inside hard drift must not SKIP")
	}
}

func TestTPReached(t *testing.T) {
	tests := []struct {
		name          string
		side          domain.Side
		tp, bid, ask  float64
		want          bool
	}{
		{"buy bid at tp", domain.SideBuy, 4912, 4912, 4913, true},
		{"buy bid below tp", domain.SideBuy, 4912, 4911, 4912, false},
		{"buy bid above tp", domain.SideBuy, 4912, 4913, 4914, true},
		{"sell ask at tp", domain.SideSell, 4875, 4874, 4875, true},
		{"sell ask above tp", domain.SideSell, 4875, 4875, 4876, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TPReached(tt.side, tt.tp, tt.bid, tt.ask)
			if got != tt.want {
				t.Errorf("TPReached(%s, %v, %v, %v) = %v, want %v",
					tt.side, tt.tp, tt.bid, tt.ask, got, tt.want)
			}
		})
	}
}

func TestBEAllowed(t *testing.T) {
	// Inclusive boundary: exactly minDistance away is allowed.
	if !BEAllowed(domain.SideBuy, 4905, 4910, 4911, 5) {
		t.Error("BUY distance 5.0 with min 5 should allow BE")
	}
	if BEAllowed(domain.SideBuy, 4905.01, 4910, 4911, 5) {
		t.Error("BUY distance 4.99 with min 5 should not allow BE")
	}

	if !BEAllowed(domain.SideSell, 4916, 4910, 4911, 5) {
		t.Error("SELL distance 5.0 with min 5 should allow BE")
	}
	if BEAllowed(domain.SideSell, 4915.99, 4910, 4911, 5) {
		t.Error("SELL distance 4.99 with min 5 should not allow BE")
	}
}

func TestCloseAtTriggered(t *testing.T) {
	tests := []struct {
		name            string
		side            domain.Side
		target          float64
		bid, ask        float64
		buffer          float64
		want            bool
	}{
		{"buy at target", domain.SideBuy, 4912, 4912, 4913, 0, true},
		{"buy below target", domain.SideBuy, 4912, 4911.5, 4912.5, 0, false},
		{"buy buffer holds", domain.SideBuy, 4912, 4912, 4913, 0.5, false},
		{"buy buffer cleared", domain.SideBuy, 4912, 4912.5, 4913.5, 0.5, true},
		{"sell at target", domain.SideSell, 4875, 4874, 4875, 0, true},
		{"sell buffer holds", domain.SideSell, 4875, 4874, 4875, 0.5, false},
		{"sell buffer cleared", domain.SideSell, 4875, 4873.5, 4874.5, 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CloseAtTriggered(tt.side, tt.target, tt.bid, tt.ask, tt.buffer)
			if got != tt.want {
				t.Errorf("CloseAtTriggered(%s, %v, %v, %v, %v) = %v, want %v",
					tt.side, tt.target, tt.bid, tt.ask, tt.buffer, got, tt.want)
			}
		})
	}
}
