// Package protection implements the ProtectionManager and its built-in
// protections: StoplossGuard, MaxDrawdown,
// CooldownPeriod, TradingWindow, VolatilityHalt. Each protection is a
// pure function of (symbol, recent closed trades, now) — deterministic
// under the injected Clock, so tests never depend on wall time.
package protection

import (
	"time"

	"execution-core/internal/positionstore"

	"github.com/shopspring/decimal"
)

// Status is one protection's admission verdict. When Allowed is false,
// ActiveUntil is the timestamp at which the protection clears on its own
// (cleared when Clock.now() ≥ active_until).
type Status struct {
	Allowed     bool
	ActiveUntil time.Time
	Reason      string
	Trigger     string
}

// Protection is one independently configured admission check.
type Protection interface {
	Name() string
	Evaluate(symbol string, recent []positionstore.Trade, now time.Time) (Status, error)
}

func allowed() Status { return Status{Allowed: true} }

func blockedUntil(until time.Time, reason, trigger string) Status {
	return Status{Allowed: false, ActiveUntil: until, Reason: reason, Trigger: trigger}
}

// tradesFor filters recent to just symbol, a protection most often cares
// about one symbol's own history rather than the whole book.
func tradesFor(recent []positionstore.Trade, symbol string) []positionstore.Trade {
	var out []positionstore.Trade
	for _, t := range recent {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out
}

func isLoss(t positionstore.Trade) bool {
	return t.PnL().LessThan(decimal.Zero)
}
