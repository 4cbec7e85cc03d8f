package config

import (
	"execution-core/internal/protection"
	"execution-core/internal/reconcile"
	"execution-core/internal/riskgate"

	"github.com/shopspring/decimal"
)

// RiskLimits builds a riskgate.Limits from the decoded risk.* section.
func (c Config) RiskLimits() riskgate.Limits {
	return riskgate.Limits{
		DailyLossLimit:          c.Risk.DailyLossLimit,
		MaxPositionNotional:     c.Risk.MaxPositionNotional,
		MaxPortfolioNotionalPct: c.Risk.MaxPortfolioNotionalPct,
		EnablePDTProtection:     c.Risk.EnablePDTProtection,
		MaxDayTrades:            c.Risk.MaxOrdersPerDay,
	}
}

// ReconcileThresholds builds a reconcile.Thresholds from the decoded
// reconciler.* section.
func (c Config) ReconcileThresholds() reconcile.Thresholds {
	return reconcile.Thresholds{
		MaxMissing:  c.Reconciler.MaxMissing,
		MaxDriftPct: c.Reconciler.MaxDriftPct,
	}
}

// ReconcileMode maps account.mode onto the Reconciler's resolution policy.
func (c Config) ReconcileMode() reconcile.Mode {
	if c.Account.Mode == ModeLive {
		return reconcile.Live
	}
	return reconcile.Paper
}

// ProtectionManager builds the enabled protection.Manager, one guard per
// configured section, skipping a guard entirely when its trigger is
// left at zero: an absent option disables that protection rather than
// erroring. baseEquity seeds
// MaxDrawdown's peak tracking and is only known at startup, from the
// broker's account snapshot, so it is not part of the decoded config.
func (c Config) ProtectionManager(baseEquity decimal.Decimal) *protection.Manager {
	var guards []protection.Protection

	if sg := c.Protections.StoplossGuard; sg.Max > 0 {
		guards = append(guards, protection.NewStoplossGuard(sg.Max, sg.Window(), sg.Cooldown()))
	}
	if md := c.Protections.MaxDrawdown; !md.Pct.IsZero() {
		guards = append(guards, protection.NewMaxDrawdown(baseEquity, md.Pct, md.Window(), md.Halt()))
	}
	if cd := c.Protections.Cooldown; !cd.LossThreshold.IsZero() {
		guards = append(guards, protection.NewCooldownPeriod(cd.LossThreshold, cd.Pause()))
	}

	return protection.NewManager(guards...)
}
