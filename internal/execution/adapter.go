package execution

import (
	"context"
	"time"

	"execution-core/internal/broker"
	"execution-core/internal/clock"
	"execution-core/internal/order"
	"execution-core/internal/positionstore"
	"execution-core/internal/riskgate"

	"github.com/shopspring/decimal"
)

// StoreAdapter implements PortfolioViewer and TradeHistory directly over
// PositionStore and the Broker port, so cmd/engine-core does not need a
// bespoke collaborator for every signal the risk gate and protections
// read.
type StoreAdapter struct {
	Store  *positionstore.Store
	Broker broker.Broker
	Clock  clock.Clock
	Orders *order.StateMachine
}

// seenClientOrder reports whether clientOrderID has already been created
// in the state machine, the independent idempotency source the risk
// gate's duplicate check evaluates against.
func (a StoreAdapter) seenClientOrder(clientOrderID string) bool {
	_, err := a.Orders.Get(clientOrderID)
	return err == nil
}

// View assembles a riskgate.PortfolioView from the broker's account
// snapshot and the symbol's current local position.
func (a StoreAdapter) View(ctx context.Context, symbol string) (riskgate.PortfolioView, error) {
	account, err := a.Broker.GetAccount(ctx)
	if err != nil {
		return riskgate.PortfolioView{}, err
	}

	var position *positionstore.Position
	if pos, err := a.Store.Get(ctx, symbol); err == nil && !pos.IsFlat() {
		position = &pos
	}

	dayStart := time.Date(a.Clock.Now().Year(), a.Clock.Now().Month(), a.Clock.Now().Day(), 0, 0, 0, 0, time.UTC)
	trades, err := a.Store.TradesSince(ctx, dayStart)
	if err != nil {
		return riskgate.PortfolioView{}, err
	}

	var dailyLoss decimal.Decimal
	for _, t := range trades {
		if pnl := t.PnL(); pnl.IsNegative() {
			dailyLoss = dailyLoss.Add(pnl.Abs())
		}
	}

	openPositions, err := a.Store.ListOpen(ctx)
	if err != nil {
		return riskgate.PortfolioView{}, err
	}
	var openNotional decimal.Decimal
	for _, p := range openPositions {
		openNotional = openNotional.Add(p.Quantity.Mul(p.EntryVWAP).Abs())
	}

	return riskgate.PortfolioView{
		AccountEquity:    account.NetLiquidation,
		DailyLossDollar:  dailyLoss,
		DayTradeCount:    account.DayTradeCount,
		OpenNotional:     openNotional,
		Position:         position,
		SeenClientOrders: a.seenClientOrder,
	}, nil
}

// RecentTrades implements TradeHistory directly over the store's last
// 24 hours of closed trades for symbol.
func (a StoreAdapter) RecentTrades(ctx context.Context, symbol string) ([]positionstore.Trade, error) {
	all, err := a.Store.TradesSince(ctx, a.Clock.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	trades := make([]positionstore.Trade, 0, len(all))
	for _, t := range all {
		if t.Symbol == symbol {
			trades = append(trades, t)
		}
	}
	return trades, nil
}
