// Package riskgate implements PreTradeRiskGate, the second admission
// stage: six synchronous checks over a signal, a
// position snapshot, and a limits configuration, failing fast on the
// first rejection.
package riskgate

import (
	"fmt"

	"execution-core/internal/order"
	"execution-core/internal/positionstore"

	"github.com/shopspring/decimal"
)

// Code is a machine-readable reason for a rejection, mirroring
// libs/risk.ViolationCode.
type Code string

const (
	CodeDailyLossExceeded    Code = "DAILY_LOSS_EXCEEDED"
	CodeDuplicateOrder       Code = "DUPLICATE_CLIENT_ORDER_ID"
	CodePatternDayTrader     Code = "PATTERN_DAY_TRADER_LIMIT"
	CodePositionSizeExceeded Code = "POSITION_SIZE_EXCEEDED"
	CodePortfolioCapExceeded Code = "PORTFOLIO_NOTIONAL_CAP_EXCEEDED"
	CodeSinglePositionRule   Code = "SINGLE_POSITION_PER_SYMBOL"
)

// Violation is a single rejection, carrying limit and observed values for
// audit logging.
type Violation struct {
	Code     Code
	Message  string
	Limit    decimal.Decimal
	Observed decimal.Decimal
}

func (v Violation) Error() string {
	return fmt.Sprintf("riskgate: %s: %s (limit=%s observed=%s)", v.Code, v.Message, v.Limit, v.Observed)
}

// SignalInput carries exactly the signal-level values the gate needs.
type SignalInput struct {
	ClientOrderID  string
	Symbol         string
	Side           order.Side
	Quantity       decimal.Decimal
	EstimatedPrice decimal.Decimal
}

// Notional returns the estimated dollar exposure of the signal.
func (s SignalInput) Notional() decimal.Decimal {
	return s.Quantity.Mul(s.EstimatedPrice)
}

// Limits is the configured risk surface.
type Limits struct {
	DailyLossLimit          decimal.Decimal
	MaxPositionNotional     decimal.Decimal
	MaxPortfolioNotionalPct decimal.Decimal
	EnablePDTProtection     bool
	PDTEquityThreshold      decimal.Decimal
	MaxDayTrades            int
}

// PortfolioView is the state the gate reads to evaluate portfolio-wide
// checks; callers assemble it from PositionStore and account data.
type PortfolioView struct {
	AccountEquity    decimal.Decimal
	DailyLossDollar  decimal.Decimal
	DayTradeCount    int
	OpenNotional     decimal.Decimal
	Position         *positionstore.Position // nil if flat
	SeenClientOrders func(clientOrderID string) bool
}

// Gate is the PreTradeRiskGate.
type Gate struct {
	limits Limits
}

// New constructs a Gate bound to limits.
func New(limits Limits) *Gate {
	return &Gate{limits: limits}
}

// Evaluate runs all six checks in order, returning the first
// Violation encountered, or nil if the signal is admitted.
func (g *Gate) Evaluate(sig SignalInput, view PortfolioView) *Violation {
	if v := g.checkDailyLoss(view); v != nil {
		return v
	}
	if v := g.checkDuplicate(sig, view); v != nil {
		return v
	}
	if v := g.checkPatternDayTrader(view); v != nil {
		return v
	}
	if v := g.checkPositionSize(sig); v != nil {
		return v
	}
	if v := g.checkPortfolioCap(sig, view); v != nil {
		return v
	}
	if v := g.checkSinglePosition(sig, view); v != nil {
		return v
	}
	return nil
}

func (g *Gate) checkDailyLoss(view PortfolioView) *Violation {
	if g.limits.DailyLossLimit.IsZero() {
		return nil
	}
	if view.DailyLossDollar.GreaterThanOrEqual(g.limits.DailyLossLimit) {
		return &Violation{
			Code:     CodeDailyLossExceeded,
			Message:  "cumulative daily loss at or above configured limit",
			Limit:    g.limits.DailyLossLimit,
			Observed: view.DailyLossDollar,
		}
	}
	return nil
}

func (g *Gate) checkDuplicate(sig SignalInput, view PortfolioView) *Violation {
	if view.SeenClientOrders == nil {
		return nil
	}
	if view.SeenClientOrders(sig.ClientOrderID) {
		return &Violation{
			Code:    CodeDuplicateOrder,
			Message: fmt.Sprintf("client_order_id %s already submitted", sig.ClientOrderID),
		}
	}
	return nil
}

func (g *Gate) checkPatternDayTrader(view PortfolioView) *Violation {
	if !g.limits.EnablePDTProtection {
		return nil
	}
	if view.AccountEquity.GreaterThanOrEqual(g.limits.PDTEquityThreshold) {
		return nil
	}
	if view.DayTradeCount >= g.limits.MaxDayTrades {
		return &Violation{
			Code:     CodePatternDayTrader,
			Message:  "account equity below PDT threshold and day trade limit reached",
			Limit:    decimal.NewFromInt(int64(g.limits.MaxDayTrades)),
			Observed: decimal.NewFromInt(int64(view.DayTradeCount)),
		}
	}
	return nil
}

func (g *Gate) checkPositionSize(sig SignalInput) *Violation {
	if g.limits.MaxPositionNotional.IsZero() {
		return nil
	}
	notional := sig.Notional()
	if notional.GreaterThan(g.limits.MaxPositionNotional) {
		return &Violation{
			Code:     CodePositionSizeExceeded,
			Message:  fmt.Sprintf("proposed notional for %s exceeds per-symbol cap", sig.Symbol),
			Limit:    g.limits.MaxPositionNotional,
			Observed: notional,
		}
	}
	return nil
}

func (g *Gate) checkPortfolioCap(sig SignalInput, view PortfolioView) *Violation {
	if g.limits.MaxPortfolioNotionalPct.IsZero() || view.AccountEquity.IsZero() {
		return nil
	}
	resulting := view.OpenNotional.Add(sig.Notional())
	portfolioCap := g.limits.MaxPortfolioNotionalPct.Mul(view.AccountEquity)
	if resulting.GreaterThan(portfolioCap) {
		return &Violation{
			Code:     CodePortfolioCapExceeded,
			Message:  "resulting portfolio notional exceeds configured percentage of equity",
			Limit:    portfolioCap,
			Observed: resulting,
		}
	}
	return nil
}

// checkSinglePosition rejects pyramiding (a BUY while already long). A
// SELL that exceeds the open position is not this gate's concern: the
// engine caps it to the position size before the order is ever created.
func (g *Gate) checkSinglePosition(sig SignalInput, view PortfolioView) *Violation {
	if view.Position == nil || view.Position.IsFlat() {
		return nil
	}
	if sig.Side == order.Buy && view.Position.Quantity.IsPositive() {
		return &Violation{
			Code:    CodeSinglePositionRule,
			Message: fmt.Sprintf("%s already has an open long position", sig.Symbol),
		}
	}
	return nil
}
