// Package config decodes the execution core's single JSON configuration
// file, filling in defaults after decode.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// AccountMode selects paper or live trading.
type AccountMode string

const (
	ModePaper AccountMode = "paper"
	ModeLive  AccountMode = "live"
)

// Risk holds the risk.* configuration keys.
type Risk struct {
	DailyLossLimit          decimal.Decimal `json:"daily_loss_limit"`
	MaxPositionNotional     decimal.Decimal `json:"max_position_notional"`
	MaxPortfolioNotionalPct decimal.Decimal `json:"max_portfolio_notional_pct"`
	EnablePDTProtection     bool            `json:"enable_pdt_protection"`
	MaxOrdersPerDay         int             `json:"max_orders_per_day"`
}

// StoplossGuardConfig mirrors protections.stoploss_guard.*.
type StoplossGuardConfig struct {
	Max       int `json:"max"`
	WindowS   int `json:"window"`
	CooldownS int `json:"cooldown"`
}

func (c StoplossGuardConfig) Window() time.Duration { return time.Duration(c.WindowS) * time.Second }
func (c StoplossGuardConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownS) * time.Second
}

// MaxDrawdownConfig mirrors protections.max_drawdown.*.
type MaxDrawdownConfig struct {
	Pct     decimal.Decimal `json:"pct"`
	WindowS int             `json:"window"`
	HaltS   int             `json:"halt"`
}

func (c MaxDrawdownConfig) Window() time.Duration { return time.Duration(c.WindowS) * time.Second }
func (c MaxDrawdownConfig) Halt() time.Duration   { return time.Duration(c.HaltS) * time.Second }

// CooldownConfig mirrors protections.cooldown.*.
type CooldownConfig struct {
	LossThreshold decimal.Decimal `json:"loss_threshold"`
	PauseS        int             `json:"pause"`
}

func (c CooldownConfig) Pause() time.Duration { return time.Duration(c.PauseS) * time.Second }

// Protections holds the protections.* configuration keys.
type Protections struct {
	StoplossGuard StoplossGuardConfig `json:"stoploss_guard"`
	MaxDrawdown   MaxDrawdownConfig   `json:"max_drawdown"`
	Cooldown      CooldownConfig      `json:"cooldown"`
}

// Reconciler holds the reconciler.* configuration keys.
type Reconciler struct {
	MaxMissing  int             `json:"max_missing"`
	MaxDriftPct decimal.Decimal `json:"max_drift_pct"`
}

// Runtime holds the runtime.* configuration keys.
type Runtime struct {
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
	CycleIntervalS         int `json:"cycle_interval"`
}

func (r Runtime) CycleInterval() time.Duration { return time.Duration(r.CycleIntervalS) * time.Second }

// Execution holds the execution.* configuration keys.
type Execution struct {
	DefaultLimitTTLSeconds int `json:"default_limit_ttl_seconds"`
}

func (e Execution) DefaultLimitTTL() time.Duration {
	return time.Duration(e.DefaultLimitTTLSeconds) * time.Second
}

// Account holds the account.* configuration keys.
type Account struct {
	Mode AccountMode `json:"mode"`
}

// Config is the full decoded configuration surface.
type Config struct {
	Account     Account     `json:"account"`
	Risk        Risk        `json:"risk"`
	Protections Protections `json:"protections"`
	Reconciler  Reconciler  `json:"reconciler"`
	Runtime     Runtime     `json:"runtime"`
	Execution   Execution   `json:"execution"`
}

// Load reads and decodes path, rejecting unrecognized keys, then fills
// in defaults for anything left zero.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read execution-core config: %w", err)
	}

	var cfg Config
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse execution-core config: %w", err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Account.Mode == "" {
		cfg.Account.Mode = ModePaper
	}
	if cfg.Risk.MaxPortfolioNotionalPct.IsZero() {
		cfg.Risk.MaxPortfolioNotionalPct = decimal.NewFromFloat(0.5)
	}
	if cfg.Reconciler.MaxMissing == 0 {
		cfg.Reconciler.MaxMissing = 3
	}
	if cfg.Reconciler.MaxDriftPct.IsZero() {
		cfg.Reconciler.MaxDriftPct = decimal.NewFromFloat(0.05)
	}
	if cfg.Runtime.MaxConsecutiveFailures == 0 {
		cfg.Runtime.MaxConsecutiveFailures = 5
	}
	if cfg.Runtime.CycleIntervalS == 0 {
		cfg.Runtime.CycleIntervalS = 60
	}
	if cfg.Execution.DefaultLimitTTLSeconds == 0 {
		cfg.Execution.DefaultLimitTTLSeconds = 300
	}
}
