// Package execution implements the ExecutionEngine: the component that
// turns an admitted trading signal into a broker order, tracks it
// through to a terminal state, and enforces TTL expiry on unfilled
// limit orders.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"execution-core/internal/broker"
	"execution-core/internal/clock"
	"execution-core/internal/order"
	"execution-core/internal/positionstore"
	"execution-core/internal/protection"
	"execution-core/internal/riskgate"
	"execution-core/internal/tracker"
	"execution-core/internal/txlog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// clientOrderNamespace seeds the deterministic UUIDv5 computation in
// computeClientOrderID. Any fixed namespace works; this one is private
// to this package.
var clientOrderNamespace = uuid.MustParse("6f2b6a10-6e8a-4c8e-9c0e-3a6d9a6b9f31")

// PortfolioViewer supplies the account/position context
// PreTradeRiskGate needs to evaluate a signal.
type PortfolioViewer interface {
	View(ctx context.Context, symbol string) (riskgate.PortfolioView, error)
}

// TradeHistory supplies ProtectionManager the recent closed trades for
// a symbol.
type TradeHistory interface {
	RecentTrades(ctx context.Context, symbol string) ([]positionstore.Trade, error)
}

// PositionWriter is the slice of PositionStore a fill needs to touch:
// read the current position, write the post-fill snapshot, and record a
// closed trade when a fill reduces or closes one. *positionstore.Store
// satisfies this directly.
type PositionWriter interface {
	Get(ctx context.Context, symbol string) (positionstore.Position, error)
	Upsert(ctx context.Context, p positionstore.Position) error
	Close(ctx context.Context, symbol string) error
	RecordTrade(ctx context.Context, t positionstore.Trade) error
}

// Engine is the ExecutionEngine.
type Engine struct {
	clock       clock.Clock
	orders      *order.StateMachine
	tracker     *tracker.Tracker
	protections *protection.Manager
	riskGate    *riskgate.Gate
	broker      broker.Broker
	symbols     SymbolInfo
	limiter     *Limiter
	portfolio   PortfolioViewer
	trades      TradeHistory
	positions   PositionWriter
	log         order.EventAppender

	mu           sync.Mutex
	submittedIDs map[string]struct{}
}

// Config bundles Engine's collaborators.
type Config struct {
	Clock       clock.Clock
	Orders      *order.StateMachine
	Tracker     *tracker.Tracker
	Protections *protection.Manager
	RiskGate    *riskgate.Gate
	Broker      broker.Broker
	Symbols     SymbolInfo
	Limiter     *Limiter
	Portfolio   PortfolioViewer
	Trades      TradeHistory
	Positions   PositionWriter
	Log         order.EventAppender
}

// New builds an Engine with an empty idempotency set. Call Restore
// after replaying the transaction log to reseed it.
func New(cfg Config) *Engine {
	return &Engine{
		clock:        cfg.Clock,
		orders:       cfg.Orders,
		tracker:      cfg.Tracker,
		protections:  cfg.Protections,
		riskGate:     cfg.RiskGate,
		broker:       cfg.Broker,
		symbols:      cfg.Symbols,
		limiter:      cfg.Limiter,
		portfolio:    cfg.Portfolio,
		trades:       cfg.Trades,
		positions:    cfg.Positions,
		log:          cfg.Log,
		submittedIDs: make(map[string]struct{}),
	}
}

// Restore reseeds the idempotency set from a replayed transaction log
// . Replayed events do not
// re-invoke the broker.
func (e *Engine) Restore(events []txlog.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range events {
		if ev.EventType == txlog.EventOrderSubmit && ev.ClientOrderID != "" {
			e.submittedIDs[ev.ClientOrderID] = struct{}{}
		}
	}
}

func computeClientOrderID(sig Signal) string {
	name := fmt.Sprintf("%s|%s|%s|%s|%s", sig.Symbol, sig.Side, sig.StrategyID, sig.Time.UTC().Format(time.RFC3339Nano), sig.Nonce)
	return uuid.NewSHA1(clientOrderNamespace, []byte(name)).String()
}

// Submit runs the seven-step submission algorithm and returns the
// assigned client_order_id. Once the order has been created, the id is
// returned alongside any later error so the caller can look the order up.
func (e *Engine) Submit(ctx context.Context, sig Signal) (string, error) {
	view, err := e.portfolio.View(ctx, sig.Symbol)
	if err != nil {
		return "", fmt.Errorf("%w: portfolio view: %v", ErrBlocked, err)
	}
	sig = capSellToPosition(sig, view)

	clientOrderID := computeClientOrderID(sig)

	if e.alreadySubmitted(clientOrderID) {
		return "", fmt.Errorf("%w: %s", ErrDuplicateOrder, clientOrderID)
	}

	if _, err := e.orders.Create(order.Spec{
		ClientOrderID: clientOrderID,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Type:          sig.Type,
		RequestedQty:  sig.Quantity,
		LimitPrice:    sig.LimitPrice,
		TTL:           sig.TTL,
		StrategyID:    sig.StrategyID,
	}); err != nil {
		return "", err
	}

	qty, limitPrice, err := e.validate(sig)
	if err != nil {
		e.reject(clientOrderID, err.Error())
		return clientOrderID, err
	}

	if err := e.checkAdmission(ctx, sig, view); err != nil {
		e.reject(clientOrderID, err.Error())
		return clientOrderID, err
	}

	if !e.limiter.Allow() {
		if err := e.waitForLimiter(ctx); err != nil {
			return clientOrderID, err
		}
	}

	spec := broker.OrderSpec{
		ClientOrderID: clientOrderID,
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		Type:          sig.Type,
		Quantity:      qty,
		LimitPrice:    limitPrice,
	}
	brokerOrderID, err := e.broker.Submit(ctx, spec)
	if err != nil {
		if broker.IsTransient(err) {
			// Left PENDING: the order is not lost, just unresolved.
			// Reconciliation and a future retry decide what happens next.
			return clientOrderID, err
		}
		e.reject(clientOrderID, err.Error())
		return clientOrderID, err
	}

	if err := e.orders.Transition(clientOrderID, order.Submitted, order.TransitionData{
		BrokerOrderID: brokerOrderID,
	}); err != nil {
		return clientOrderID, err
	}
	e.markSubmitted(clientOrderID)

	submitted, err := e.orders.Get(clientOrderID)
	if err != nil {
		return clientOrderID, err
	}
	e.tracker.StartTracking(*submitted)

	return clientOrderID, nil
}

func (e *Engine) validate(sig Signal) (decimal.Decimal, *decimal.Decimal, error) {
	props, err := e.symbols.Properties(sig.Symbol)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	return validateAndRound(sig, props)
}

func (e *Engine) checkAdmission(ctx context.Context, sig Signal, view riskgate.PortfolioView) error {
	recent, err := e.trades.RecentTrades(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("%w: recent trades: %v", ErrBlocked, err)
	}
	status, err := e.protections.Check(sig.Symbol, recent, e.clock.Now())
	if err != nil {
		return fmt.Errorf("%w: protection check: %v", ErrBlocked, err)
	}
	if !status.Allowed {
		return fmt.Errorf("%w: %s (%s)", ErrBlocked, status.Reason, status.Trigger)
	}

	estimatedPrice := sig.EstimatedPrice
	if sig.LimitPrice != nil {
		estimatedPrice = *sig.LimitPrice
	}
	if v := e.riskGate.Evaluate(riskgate.SignalInput{
		ClientOrderID:  computeClientOrderID(sig),
		Symbol:         sig.Symbol,
		Side:           sig.Side,
		Quantity:       sig.Quantity,
		EstimatedPrice: estimatedPrice,
	}, view); v != nil {
		return fmt.Errorf("%w: %s", ErrBlocked, v.Error())
	}
	return nil
}

// capSellToPosition caps a SELL signal's quantity to the open position
// size: selling more than is held is clamped before the order is ever
// created, rather than rejected at the risk gate.
func capSellToPosition(sig Signal, view riskgate.PortfolioView) Signal {
	if sig.Side != order.Sell || view.Position == nil || !view.Position.Quantity.IsPositive() {
		return sig
	}
	if sig.Quantity.GreaterThan(view.Position.Quantity) {
		sig.Quantity = view.Position.Quantity
	}
	return sig
}

func (e *Engine) reject(clientOrderID, reason string) {
	_ = e.orders.Transition(clientOrderID, order.Rejected, order.TransitionData{Reason: reason})
}

// waitForLimiter blocks in small increments until the limiter admits
// another call or ctx is cancelled. The sleep is real wall time: this
// throttle guards outbound call volume, not business-clock semantics,
// so it does not need to respect a simulated Clock.
func (e *Engine) waitForLimiter(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if e.limiter.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel calls the broker to cancel a working order. If the broker
// reports the order already terminal, no local state changes;
// reconciliation picks it up on its next cycle.
func (e *Engine) Cancel(ctx context.Context, clientOrderID, reason string) error {
	o, err := e.orders.Get(clientOrderID)
	if err != nil {
		return err
	}
	if o.State.IsTerminal() {
		return nil
	}
	if o.BrokerOrderID == "" {
		return nil
	}

	ack, err := e.broker.Cancel(ctx, o.BrokerOrderID)
	if err != nil {
		return err
	}
	if !ack.Accepted {
		return nil
	}

	if err := e.orders.Transition(clientOrderID, order.Cancelled, order.TransitionData{Reason: reason}); err != nil {
		return err
	}
	e.tracker.ProcessStatus(clientOrderID, tracker.StatusUpdate{State: order.Cancelled, Time: e.clock.Now()})
	return nil
}

// IsStale reports whether a non-terminal order has been outstanding at
// least ttl since it was submitted.
func (e *Engine) IsStale(clientOrderID string, ttl time.Duration) bool {
	o, err := e.orders.Get(clientOrderID)
	if err != nil || o.SubmittedAt == nil || o.State.IsTerminal() {
		return false
	}
	return e.clock.Now().Sub(*o.SubmittedAt) >= ttl
}

// PollStatus cancels any non-terminal limit order whose TTL has
// elapsed. The runtime calls this once per trading cycle.
func (e *Engine) PollStatus(ctx context.Context) {
	for _, o := range e.orders.Pending() {
		if o.Type != order.Limit && o.Type != order.StopLimit {
			continue
		}
		if o.TTL == nil {
			continue
		}
		if e.IsStale(o.ClientOrderID, *o.TTL) {
			_ = e.Cancel(ctx, o.ClientOrderID, "ttl_expired")
		}
	}
}

// SyncFills polls the broker for working orders and advances any order
// whose reported filled quantity has grown since the last cycle,
// transitioning it through the state machine and folding the fill into
// PositionStore. The runtime calls this once per trading cycle.
func (e *Engine) SyncFills(ctx context.Context) error {
	open, err := e.broker.ListOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("execution: sync fills: %w", err)
	}
	reported := make(map[string]broker.OpenOrder, len(open))
	for _, o := range open {
		reported[o.BrokerOrderID] = o
	}

	for _, o := range e.orders.Pending() {
		if o.BrokerOrderID == "" {
			continue
		}
		ro, ok := reported[o.BrokerOrderID]
		if !ok {
			continue
		}
		if err := e.applyFill(ctx, o, ro); err != nil {
			return err
		}
	}
	return nil
}

// applyFill advances o to PARTIALLY_FILLED/FILLED when reported carries
// more cumulative filled quantity than the state machine has recorded,
// reconstructing the incremental fill price from the broker's cumulative
// average (the broker reports only running totals, never individual
// fills).
func (e *Engine) applyFill(ctx context.Context, o *order.Order, reported broker.OpenOrder) error {
	delta := reported.FilledQty.Sub(o.CumulativeQty)
	if !delta.IsPositive() {
		return nil
	}

	fillPrice := reported.AvgFillPrice
	if !o.CumulativeQty.IsZero() {
		priorNotional := o.AvgFillPrice.Mul(o.CumulativeQty)
		totalNotional := reported.AvgFillPrice.Mul(reported.FilledQty)
		fillPrice = totalNotional.Sub(priorNotional).Div(delta)
	}

	to := order.PartiallyFilled
	if reported.FilledQty.GreaterThanOrEqual(o.RequestedQty) {
		to = order.Filled
	}

	if err := e.orders.Transition(o.ClientOrderID, to, order.TransitionData{
		FillQty:   delta,
		FillPrice: fillPrice,
	}); err != nil {
		return err
	}

	e.tracker.ProcessFill(o.ClientOrderID, tracker.FillEvent{
		Time:     e.clock.Now(),
		Quantity: delta,
		Price:    fillPrice,
	})
	if to == order.Filled {
		e.tracker.ProcessStatus(o.ClientOrderID, tracker.StatusUpdate{State: order.Filled, Time: e.clock.Now()})
	}

	return e.applyFillToPosition(ctx, o.Symbol, o.Side, delta, fillPrice, o.StrategyID)
}

// applyFillToPosition folds a fill into PositionStore. A BUY opens a new
// long position or averages into an existing one; a SELL reduces it,
// realizing P&L on the closed quantity and recording a Trade, closing
// the position once it flattens. The model is long-only: a SELL never
// carries a position negative past flat (the engine already caps SELL
// quantity to the held size before an order is created).
func (e *Engine) applyFillToPosition(ctx context.Context, symbol string, side order.Side, qty, price decimal.Decimal, strategyID string) error {
	pos, err := e.positions.Get(ctx, symbol)
	existed := err == nil
	if err != nil && !errors.Is(err, positionstore.ErrPositionNotFound) {
		return fmt.Errorf("execution: position lookup %s: %w", symbol, err)
	}
	now := e.clock.Now()

	if side == order.Buy {
		if !existed || pos.IsFlat() {
			pos = positionstore.Position{
				Symbol:     symbol,
				Quantity:   qty,
				EntryVWAP:  price,
				OpenedAt:   now,
				StrategyID: strategyID,
			}
			if err := e.positions.Upsert(ctx, pos); err != nil {
				return err
			}
			return e.log.Append(txlog.Event{
				EventType: txlog.EventPositionOpen,
				LoggedAt:  now,
				Payload: map[string]any{
					"symbol": symbol, "qty": qty.String(), "entry_vwap": price.String(),
				},
			})
		}

		totalQty := pos.Quantity.Add(qty)
		totalNotional := pos.EntryVWAP.Mul(pos.Quantity).Add(price.Mul(qty))
		pos.Quantity = totalQty
		pos.EntryVWAP = totalNotional.Div(totalQty)
		if err := e.positions.Upsert(ctx, pos); err != nil {
			return err
		}
		return e.log.Append(txlog.Event{
			EventType: txlog.EventPositionUpdate,
			LoggedAt:  now,
			Payload: map[string]any{
				"symbol": symbol, "qty": pos.Quantity.String(), "entry_vwap": pos.EntryVWAP.String(),
			},
		})
	}

	// SELL: reduce the position, realizing P&L on the closed quantity.
	if !existed || pos.IsFlat() {
		return nil
	}
	closedQty := qty
	if closedQty.GreaterThan(pos.Quantity) {
		closedQty = pos.Quantity
	}

	trade := positionstore.Trade{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       string(order.Sell),
		Quantity:   closedQty,
		EntryPrice: pos.EntryVWAP,
		ExitPrice:  price,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   now,
		StrategyID: pos.StrategyID,
	}
	if err := e.positions.RecordTrade(ctx, trade); err != nil {
		return err
	}

	pos.RealizedPnL = pos.RealizedPnL.Add(trade.PnL())
	pos.Quantity = pos.Quantity.Sub(closedQty)

	if pos.IsFlat() {
		if err := e.positions.Close(ctx, symbol); err != nil {
			return err
		}
		return e.log.Append(txlog.Event{
			EventType: txlog.EventPositionClose,
			LoggedAt:  now,
			Payload: map[string]any{
				"symbol": symbol, "realized_pnl": pos.RealizedPnL.String(),
			},
		})
	}

	if err := e.positions.Upsert(ctx, pos); err != nil {
		return err
	}
	return e.log.Append(txlog.Event{
		EventType: txlog.EventPositionUpdate,
		LoggedAt:  now,
		Payload: map[string]any{
			"symbol": symbol, "qty": pos.Quantity.String(), "realized_pnl": pos.RealizedPnL.String(),
		},
	})
}

func (e *Engine) alreadySubmitted(clientOrderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.submittedIDs[clientOrderID]
	return ok
}

func (e *Engine) markSubmitted(clientOrderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submittedIDs[clientOrderID] = struct{}{}
}
