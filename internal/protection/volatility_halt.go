package protection

import (
	"math"
	"time"

	"execution-core/internal/positionstore"
)

// VolatilityHalt blocks admission when the realized volatility of recent
// per-trade returns for a symbol exceeds Threshold, for Halt.
type VolatilityHalt struct {
	Window    time.Duration
	MinTrades int
	Threshold float64
	Halt      time.Duration
	guard     *guard
}

func NewVolatilityHalt(window time.Duration, minTrades int, threshold float64, halt time.Duration) *VolatilityHalt {
	return &VolatilityHalt{Window: window, MinTrades: minTrades, Threshold: threshold, Halt: halt, guard: newGuard("volatility_halt")}
}

func (p *VolatilityHalt) Name() string { return "volatility_halt" }

func (p *VolatilityHalt) Evaluate(symbol string, recent []positionstore.Trade, now time.Time) (Status, error) {
	return p.guard.run(p.Name(), now, func() (Status, error) {
		windowStart := now.Add(-p.Window)
		var returns []float64
		var lastClose time.Time

		for _, t := range tradesFor(recent, symbol) {
			if t.ClosedAt.Before(windowStart) || t.ClosedAt.After(now) {
				continue
			}
			if t.EntryPrice.IsZero() {
				continue
			}
			ret, _ := t.ExitPrice.Sub(t.EntryPrice).Div(t.EntryPrice).Float64()
			returns = append(returns, ret)
			if t.ClosedAt.After(lastClose) {
				lastClose = t.ClosedAt
			}
		}

		if len(returns) < p.MinTrades {
			return allowed(), nil
		}
		if realizedStdDev(returns) < p.Threshold {
			return allowed(), nil
		}
		until := lastClose.Add(p.Halt)
		if now.After(until) || now.Equal(until) {
			return allowed(), nil
		}
		return blockedUntil(until, "volatility_halt_active", p.Name()), nil
	})
}

func realizedStdDev(returns []float64) float64 {
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}
