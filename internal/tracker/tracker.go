// Package tracker implements the OrderTracker: the live fill-and-status
// view of in-flight orders. It does not mutate
// OrderStateMachine state; it aggregates broker-reported fills and flags
// orphan/shadow discrepancies for the Reconciler to act on.
package tracker

import (
	"sync"
	"time"

	"execution-core/internal/order"

	"github.com/shopspring/decimal"
)

// FillEvent is one broker-reported fill, retained in arrival order.
type FillEvent struct {
	Time       time.Time
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
}

// InFlightOrder is the tracker's superset view of an Order: its last-known
// snapshot plus the ordered fill history that produced it.
type InFlightOrder struct {
	Order       order.Order
	Fills       []FillEvent
	CompletedAt time.Time
}

// StatusUpdate is a non-fill broker status report (e.g. an out-of-band
// acknowledgement or rejection) applied via ProcessStatus.
type StatusUpdate struct {
	State order.State
	Time  time.Time
}

// Tracker holds in-flight orders in memory, keyed by client order id, and
// migrates them to a completed collection once they reach a terminal
// state. Its own lock is distinct from the state machine's; callers must
// never hold the state-machine lock while
// calling into the tracker.
type Tracker struct {
	mu        sync.Mutex
	inFlight  map[string]*InFlightOrder
	completed []*InFlightOrder
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{inFlight: make(map[string]*InFlightOrder)}
}

// StartTracking registers o as in-flight. Calling it twice for the same
// client order id replaces the tracked snapshot but keeps any fills
// already recorded, so a tracker rebuilt from a restored state machine can
// be seeded without losing fill history gathered before the restart.
func (t *Tracker) StartTracking(o order.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.inFlight[o.ClientOrderID]; ok {
		existing.Order = o
		return
	}
	t.inFlight[o.ClientOrderID] = &InFlightOrder{Order: o}
}

// ProcessFill appends fill to clientOrderID's fill history, in the order
// the broker reported it, and recomputes the running average price
// (avg_price = Σ(qty·price)/Σ(qty)). When cumulative filled
// quantity reaches the requested quantity the record moves to the
// completed collection.
func (t *Tracker) ProcessFill(clientOrderID string, fill FillEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, ok := t.inFlight[clientOrderID]
	if !ok {
		return
	}
	in.Fills = append(in.Fills, fill)

	var qty, notional decimal.Decimal
	for _, f := range in.Fills {
		qty = qty.Add(f.Quantity)
		notional = notional.Add(f.Quantity.Mul(f.Price))
	}
	in.Order.CumulativeQty = qty
	if !qty.IsZero() {
		in.Order.AvgFillPrice = notional.Div(qty)
	}

	if qty.Equal(in.Order.RequestedQty) {
		in.Order.State = order.Filled
		t.moveToCompletedLocked(clientOrderID, fill.Time)
	} else {
		in.Order.State = order.PartiallyFilled
	}
}

// ProcessStatus applies a non-fill status report. A terminal update
// migrates the order to the completed collection.
func (t *Tracker) ProcessStatus(clientOrderID string, update StatusUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, ok := t.inFlight[clientOrderID]
	if !ok {
		return
	}
	in.Order.State = update.State
	if update.State.IsTerminal() {
		t.moveToCompletedLocked(clientOrderID, update.Time)
	}
}

// moveToCompletedLocked must be called with mu held.
func (t *Tracker) moveToCompletedLocked(clientOrderID string, now time.Time) {
	in, ok := t.inFlight[clientOrderID]
	if !ok {
		return
	}
	in.CompletedAt = now
	t.completed = append(t.completed, in)
	delete(t.inFlight, clientOrderID)
}

// Orphans returns every broker order id present in brokerOpen that is not
// locally tracked as in-flight.
func (t *Tracker) Orphans(brokerOpen []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	known := make(map[string]bool, len(t.inFlight))
	for _, in := range t.inFlight {
		if in.Order.BrokerOrderID != "" {
			known[in.Order.BrokerOrderID] = true
		}
	}

	var orphans []string
	for _, id := range brokerOpen {
		if !known[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans
}

// Shadows returns the client order ids of locally tracked, non-terminal
// orders whose broker order id is absent from brokerOpen.
func (t *Tracker) Shadows(brokerOpen []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	open := make(map[string]bool, len(brokerOpen))
	for _, id := range brokerOpen {
		open[id] = true
	}

	var shadows []string
	for clientID, in := range t.inFlight {
		if in.Order.State.IsTerminal() {
			continue
		}
		if in.Order.BrokerOrderID == "" {
			continue
		}
		if !open[in.Order.BrokerOrderID] {
			shadows = append(shadows, clientID)
		}
	}
	return shadows
}

// Completed returns every order that reached a terminal state at or after
// window, most-recent fill history retained.
func (t *Tracker) Completed(window time.Time) []*InFlightOrder {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*InFlightOrder
	for _, in := range t.completed {
		if in.CompletedAt.Before(window) {
			continue
		}
		out = append(out, in)
	}
	return out
}
