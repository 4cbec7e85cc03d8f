// Package positionstore is the exclusive owner of Positions. It is backed by a single-writer
// relational store — Postgres in production, sqlite in paper/dev mode —
// with transactional writes and committed-only reads.
package positionstore

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is keyed by symbol; at most one open position per symbol
// exists at a time.
type Position struct {
	Symbol              string
	Quantity            decimal.Decimal
	EntryVWAP           decimal.Decimal
	OpenedAt            time.Time
	StrategyID          string
	ProtectiveStopOrder string
	UnrealizedPnL       decimal.Decimal
	RealizedPnL         decimal.Decimal
}

// IsFlat reports whether the position carries no quantity.
func (p Position) IsFlat() bool { return p.Quantity.IsZero() }

// Trade is one closed round-trip, recorded for reporting and for the
// StoplossGuard/CooldownPeriod protections' lookback windows.
type Trade struct {
	ID         string
	Symbol     string
	Side       string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	OpenedAt   time.Time
	ClosedAt   time.Time
	StrategyID string
}

// PnL returns the realized profit or loss of the trade,
// `(exit − entry)·quantity`. Commission is not part of Trade, and no
// caller in this module subtracts it when a position is closed.
func (t Trade) PnL() decimal.Decimal {
	return t.ExitPrice.Sub(t.EntryPrice).Mul(t.Quantity)
}
