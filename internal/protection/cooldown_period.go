package protection

import (
	"time"

	"execution-core/internal/positionstore"

	"github.com/shopspring/decimal"
)

// CooldownPeriod pauses trading for Pause after a single trade, or the
// running session total, loses at least LossThreshold.
type CooldownPeriod struct {
	LossThreshold decimal.Decimal
	Pause         time.Duration
	SessionStart  func(now time.Time) time.Time
	guard         *guard
}

// NewCooldownPeriod builds a CooldownPeriod whose trading "session" is
// the calendar day containing now in UTC.
func NewCooldownPeriod(lossThreshold decimal.Decimal, pause time.Duration) *CooldownPeriod {
	return &CooldownPeriod{
		LossThreshold: lossThreshold,
		Pause:         pause,
		SessionStart: func(now time.Time) time.Time {
			return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		},
		guard: newGuard("cooldown_period"),
	}
}

func (p *CooldownPeriod) Name() string { return "cooldown_period" }

func (p *CooldownPeriod) Evaluate(symbol string, recent []positionstore.Trade, now time.Time) (Status, error) {
	return p.guard.run(p.Name(), now, func() (Status, error) {
		sessionStart := p.SessionStart(now)
		var sessionLoss decimal.Decimal
		var worstSingle decimal.Decimal
		var worstSingleAt time.Time

		for _, t := range tradesFor(recent, symbol) {
			if t.ClosedAt.Before(sessionStart) || t.ClosedAt.After(now) {
				continue
			}
			pnl := t.PnL()
			if pnl.IsNegative() {
				sessionLoss = sessionLoss.Add(pnl.Abs())
			}
			if pnl.Abs().GreaterThan(worstSingle) && pnl.IsNegative() {
				worstSingle = pnl.Abs()
				worstSingleAt = t.ClosedAt
			}
		}

		triggerAt := time.Time{}
		switch {
		case worstSingle.GreaterThanOrEqual(p.LossThreshold):
			triggerAt = worstSingleAt
		case sessionLoss.GreaterThanOrEqual(p.LossThreshold):
			triggerAt = now
		default:
			return allowed(), nil
		}

		until := triggerAt.Add(p.Pause)
		if now.After(until) || now.Equal(until) {
			return allowed(), nil
		}
		return blockedUntil(until, "cooldown_period_active", p.Name()), nil
	})
}
