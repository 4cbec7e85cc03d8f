package protection

import (
	"time"

	"execution-core/internal/positionstore"
)

// StoplossGuard trips a cooldown after Max losing trades for a symbol
// within Window.
type StoplossGuard struct {
	Max      int
	Window   time.Duration
	Cooldown time.Duration
	guard    *guard
}

// NewStoplossGuard constructs a StoplossGuard with its own named breaker.
func NewStoplossGuard(max int, window, cooldown time.Duration) *StoplossGuard {
	return &StoplossGuard{Max: max, Window: window, Cooldown: cooldown, guard: newGuard("stoploss_guard")}
}

func (p *StoplossGuard) Name() string { return "stoploss_guard" }

func (p *StoplossGuard) Evaluate(symbol string, recent []positionstore.Trade, now time.Time) (Status, error) {
	return p.guard.run(p.Name(), now, func() (Status, error) {
		windowStart := now.Add(-p.Window)
		var losses []positionstore.Trade
		for _, t := range tradesFor(recent, symbol) {
			if t.ClosedAt.Before(windowStart) || t.ClosedAt.After(now) {
				continue
			}
			if isLoss(t) {
				losses = append(losses, t)
			}
		}
		if len(losses) < p.Max {
			return allowed(), nil
		}

		// Cooldown measured from the most recent qualifying loss.
		latest := losses[0].ClosedAt
		for _, l := range losses {
			if l.ClosedAt.After(latest) {
				latest = l.ClosedAt
			}
		}
		until := latest.Add(p.Cooldown)
		if now.After(until) || now.Equal(until) {
			return allowed(), nil
		}
		return blockedUntil(until, "stoploss_guard_active", p.Name()), nil
	})
}
