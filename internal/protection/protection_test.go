package protection

import (
	"testing"
	"time"

	"execution-core/internal/positionstore"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func losingTrade(symbol string, closedAt time.Time, loss string) positionstore.Trade {
	return positionstore.Trade{
		Symbol: symbol, Side: "BUY", Quantity: dec("1"),
		EntryPrice: dec("100"), ExitPrice: dec("100").Sub(dec(loss)),
		OpenedAt: closedAt.Add(-time.Minute), ClosedAt: closedAt,
	}
}

func TestStoplossGuardTripsAfterThreeLosses(t *testing.T) {
	g := NewStoplossGuard(3, time.Hour, time.Hour)
	base := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	trades := []positionstore.Trade{
		losingTrade("SPY", base.Add(-20*time.Minute), "1"),
		losingTrade("SPY", base.Add(-10*time.Minute), "1"),
		losingTrade("SPY", base, "1"),
	}

	status, err := g.Evaluate("SPY", trades, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if status.Allowed {
		t.Fatalf("Allowed = true, want blocked")
	}
	if status.Reason != "stoploss_guard_active" {
		t.Errorf("Reason = %q, want stoploss_guard_active", status.Reason)
	}
}

func TestStoplossGuardClearsAfterCooldown(t *testing.T) {
	g := NewStoplossGuard(3, time.Hour, time.Hour)
	base := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	trades := []positionstore.Trade{
		losingTrade("SPY", base.Add(-20*time.Minute), "1"),
		losingTrade("SPY", base.Add(-10*time.Minute), "1"),
		losingTrade("SPY", base, "1"),
	}

	status, err := g.Evaluate("SPY", trades, base.Add(61*time.Minute))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !status.Allowed {
		t.Errorf("Allowed = false after cooldown elapsed, want true")
	}
}

func TestStoplossGuardAllowsUnderThreshold(t *testing.T) {
	g := NewStoplossGuard(3, time.Hour, time.Hour)
	base := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	trades := []positionstore.Trade{
		losingTrade("SPY", base.Add(-20*time.Minute), "1"),
		losingTrade("SPY", base, "1"),
	}

	status, err := g.Evaluate("SPY", trades, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !status.Allowed {
		t.Errorf("Allowed = false with only 2 losses, want true")
	}
}

func TestCooldownPeriodTripsOnSingleLargeLoss(t *testing.T) {
	c := NewCooldownPeriod(dec("50"), 30*time.Minute)
	base := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	trades := []positionstore.Trade{losingTrade("SPY", base, "75")}

	status, err := c.Evaluate("SPY", trades, base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if status.Allowed {
		t.Fatalf("Allowed = true, want blocked after a 75 loss vs 50 threshold")
	}
}

func TestTradingWindowBlocksOutsideHours(t *testing.T) {
	w := NewTradingWindow(9*time.Hour+30*time.Minute, 16*time.Hour)
	before := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)

	status, err := w.Evaluate("SPY", nil, before)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if status.Allowed {
		t.Fatalf("Allowed = true before market open, want blocked")
	}
}

func TestTradingWindowAllowsDuringHours(t *testing.T) {
	w := NewTradingWindow(9*time.Hour+30*time.Minute, 16*time.Hour)
	during := time.Date(2026, 7, 31, 14, 30, 0, 0, time.UTC)

	status, err := w.Evaluate("SPY", nil, during)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !status.Allowed {
		t.Errorf("Allowed = false during market hours, want true")
	}
}

func TestManagerBlocksIfAnyProtectionActive(t *testing.T) {
	base := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	m := NewManager(
		NewCooldownPeriod(dec("50"), 30*time.Minute),
		NewStoplossGuard(3, time.Hour, time.Hour),
	)
	trades := []positionstore.Trade{losingTrade("SPY", base, "75")}

	status, err := m.Check("SPY", trades, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status.Allowed {
		t.Fatalf("Allowed = true, want the cooldown protection to block")
	}
}

func TestManagerAllowsWhenNothingActive(t *testing.T) {
	m := NewManager(NewStoplossGuard(3, time.Hour, time.Hour))
	status, err := m.Check("SPY", nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !status.Allowed {
		t.Errorf("Allowed = false, want true with no trade history")
	}
}
