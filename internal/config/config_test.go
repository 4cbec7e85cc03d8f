package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"execution-core/internal/positionstore"

	"github.com/shopspring/decimal"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "execution-core.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeTempConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Account.Mode != ModePaper {
		t.Errorf("Account.Mode = %s, want paper", cfg.Account.Mode)
	}
	if !cfg.Risk.MaxPortfolioNotionalPct.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("Risk.MaxPortfolioNotionalPct = %s, want 0.5", cfg.Risk.MaxPortfolioNotionalPct)
	}
	if cfg.Reconciler.MaxMissing != 3 {
		t.Errorf("Reconciler.MaxMissing = %d, want 3", cfg.Reconciler.MaxMissing)
	}
	if !cfg.Reconciler.MaxDriftPct.Equal(decimal.NewFromFloat(0.05)) {
		t.Errorf("Reconciler.MaxDriftPct = %s, want 0.05", cfg.Reconciler.MaxDriftPct)
	}
	if cfg.Runtime.MaxConsecutiveFailures != 5 {
		t.Errorf("Runtime.MaxConsecutiveFailures = %d, want 5", cfg.Runtime.MaxConsecutiveFailures)
	}
	if cfg.Execution.DefaultLimitTTLSeconds != 300 {
		t.Errorf("Execution.DefaultLimitTTLSeconds = %d, want 300", cfg.Execution.DefaultLimitTTLSeconds)
	}
}

func TestLoadRespectsExplicitValues(t *testing.T) {
	path := writeTempConfig(t, `{
		"account": {"mode": "live"},
		"risk": {"daily_loss_limit": "500", "max_position_notional": "25000", "max_portfolio_notional_pct": "0.25"},
		"reconciler": {"max_missing": 1, "max_drift_pct": "0.02"},
		"runtime": {"max_consecutive_failures": 10, "cycle_interval": 30},
		"execution": {"default_limit_ttl_seconds": 60}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Account.Mode != ModeLive {
		t.Errorf("Account.Mode = %s, want live", cfg.Account.Mode)
	}
	if !cfg.Risk.DailyLossLimit.Equal(decimal.RequireFromString("500")) {
		t.Errorf("Risk.DailyLossLimit = %s, want 500", cfg.Risk.DailyLossLimit)
	}
	if cfg.Reconciler.MaxMissing != 1 {
		t.Errorf("Reconciler.MaxMissing = %d, want 1 (explicit value must survive defaulting)", cfg.Reconciler.MaxMissing)
	}
	if cfg.Runtime.CycleIntervalS != 30 {
		t.Errorf("Runtime.CycleIntervalS = %d, want 30", cfg.Runtime.CycleIntervalS)
	}
	if cfg.Execution.DefaultLimitTTLSeconds != 60 {
		t.Errorf("Execution.DefaultLimitTTLSeconds = %d, want 60", cfg.Execution.DefaultLimitTTLSeconds)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, `{"risk": {"daily_loss_limit": "500", "typo_field": true}}`)

	if _, err := Load(path); err == nil {
		t.Fatalf("Load succeeded despite an unrecognized key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("Load succeeded for a nonexistent file")
	}
}

func TestRiskLimitsMapping(t *testing.T) {
	path := writeTempConfig(t, `{"risk": {"daily_loss_limit": "1000", "max_orders_per_day": 20}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	limits := cfg.RiskLimits()
	if !limits.DailyLossLimit.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("DailyLossLimit = %s, want 1000", limits.DailyLossLimit)
	}
	if limits.MaxDayTrades != 20 {
		t.Errorf("MaxDayTrades = %d, want 20", limits.MaxDayTrades)
	}
}

func TestProtectionManagerOmitsUnconfiguredGuards(t *testing.T) {
	path := writeTempConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	mgr := cfg.ProtectionManager(decimal.RequireFromString("20000"))
	now := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	status, err := mgr.Check("SPY", nil, now)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !status.Allowed {
		t.Errorf("Check blocked with no protections configured: %+v", status)
	}
}

func TestProtectionManagerWiresStoplossGuard(t *testing.T) {
	path := writeTempConfig(t, `{"protections": {"stoploss_guard": {"max": 1, "window": 3600, "cooldown": 3600}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	mgr := cfg.ProtectionManager(decimal.RequireFromString("20000"))
	now := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	recent := []positionstore.Trade{
		{
			ID:         "t1",
			Symbol:     "SPY",
			Side:       "BUY",
			Quantity:   decimal.RequireFromString("1"),
			EntryPrice: decimal.RequireFromString("450"),
			ExitPrice:  decimal.RequireFromString("440"),
			ClosedAt:   now.Add(-time.Minute),
		},
	}
	status, err := mgr.Check("SPY", recent, now)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status.Allowed {
		t.Errorf("Check allowed despite a configured StoplossGuard tripping")
	}
}
