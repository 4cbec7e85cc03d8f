package protection

import (
	"time"

	"execution-core/internal/positionstore"
)

// TradingWindow blocks admission outside [Open, Close) UTC clock time, or
// inside any configured blackout interval. Blackouts are wall-clock
// windows (e.g. around a scheduled data release) rather than calendar
// dates.
type TradingWindow struct {
	Open, Close time.Duration // offsets from UTC midnight
	Blackouts   []TimeRange
	guard       *guard
}

// TimeRange is a half-open [Start, End) interval of wall-clock time.
type TimeRange struct {
	Start, End time.Duration // offsets from UTC midnight
}

func NewTradingWindow(open, close time.Duration, blackouts ...TimeRange) *TradingWindow {
	return &TradingWindow{Open: open, Close: close, Blackouts: blackouts, guard: newGuard("trading_window")}
}

func (p *TradingWindow) Name() string { return "trading_window" }

func (p *TradingWindow) Evaluate(_ string, _ []positionstore.Trade, now time.Time) (Status, error) {
	return p.guard.run(p.Name(), now, func() (Status, error) {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		sinceMidnight := now.Sub(midnight)

		if sinceMidnight < p.Open {
			return blockedUntil(midnight.Add(p.Open), "outside_trading_window", p.Name()), nil
		}
		if sinceMidnight >= p.Close {
			return blockedUntil(midnight.Add(24*time.Hour+p.Open), "outside_trading_window", p.Name()), nil
		}
		for _, b := range p.Blackouts {
			if sinceMidnight >= b.Start && sinceMidnight < b.End {
				return blockedUntil(midnight.Add(b.End), "trading_blackout_active", p.Name()), nil
			}
		}
		return allowed(), nil
	})
}
