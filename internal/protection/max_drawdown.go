package protection

import (
	"sort"
	"time"

	"execution-core/internal/positionstore"

	"github.com/shopspring/decimal"
)

// MaxDrawdown halts trading for Halt once realized equity has drawn down
// Pct or more from its peak within Window, across the whole book (not
// just one symbol).
type MaxDrawdown struct {
	BaseEquity decimal.Decimal
	Pct        decimal.Decimal
	Window     time.Duration
	Halt       time.Duration
	guard      *guard
}

func NewMaxDrawdown(baseEquity, pct decimal.Decimal, window, halt time.Duration) *MaxDrawdown {
	return &MaxDrawdown{BaseEquity: baseEquity, Pct: pct, Window: window, Halt: halt, guard: newGuard("max_drawdown")}
}

func (p *MaxDrawdown) Name() string { return "max_drawdown" }

func (p *MaxDrawdown) Evaluate(_ string, recent []positionstore.Trade, now time.Time) (Status, error) {
	return p.guard.run(p.Name(), now, func() (Status, error) {
		windowStart := now.Add(-p.Window)
		trades := make([]positionstore.Trade, 0, len(recent))
		for _, t := range recent {
			if t.ClosedAt.Before(windowStart) || t.ClosedAt.After(now) {
				continue
			}
			trades = append(trades, t)
		}
		sort.Slice(trades, func(i, j int) bool { return trades[i].ClosedAt.Before(trades[j].ClosedAt) })

		equity := p.BaseEquity
		peak := equity
		troughDrawdownEndsAt := time.Time{}
		worstPct := decimal.Zero

		for _, t := range trades {
			equity = equity.Add(t.PnL())
			if equity.GreaterThan(peak) {
				peak = equity
			}
			if peak.IsPositive() {
				drawdown := peak.Sub(equity).Div(peak)
				if drawdown.GreaterThan(worstPct) {
					worstPct = drawdown
					troughDrawdownEndsAt = t.ClosedAt.Add(p.Halt)
				}
			}
		}

		if worstPct.LessThan(p.Pct) {
			return allowed(), nil
		}
		if now.After(troughDrawdownEndsAt) {
			return allowed(), nil
		}
		return blockedUntil(troughDrawdownEndsAt, "max_drawdown_halt", p.Name()), nil
	})
}
