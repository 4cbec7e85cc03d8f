package order

import (
	"fmt"
	"sync"
	"time"

	"execution-core/internal/clock"
	"execution-core/internal/txlog"
)

// EventAppender is the subset of TransactionLog the state machine needs.
// Depending on an interface rather than *txlog.TransactionLog keeps this
// package free to run against a fake in tests.
type EventAppender interface {
	Append(txlog.Event) error
}

// legalTransitions is the exhaustive table of allowed order state moves. Any (from, to)
// pair not present here is rejected with ErrInvalidTransition.
var legalTransitions = map[State]map[State]bool{
	Pending: {
		Submitted: true,
		Rejected:  true,
	},
	Submitted: {
		PartiallyFilled: true,
		Filled:          true,
		Cancelled:       true,
		Rejected:        true,
		Expired:         true,
	},
	PartiallyFilled: {
		Filled:    true,
		Cancelled: true,
	},
}

// StateMachine is the exclusive owner of Orders. All
// operations serialize under a single mutex; no transition completes
// without a corresponding, preceding log append.
type StateMachine struct {
	mu     sync.Mutex
	clock  clock.Clock
	log    EventAppender
	orders map[string]*Order
}

// New constructs an empty StateMachine. Callers that need crash recovery
// should follow with Restore before accepting new submissions.
func New(c clock.Clock, log EventAppender) *StateMachine {
	return &StateMachine{
		clock:  c,
		log:    log,
		orders: make(map[string]*Order),
	}
}

// Create admits a new order in the Pending state. It fails with
// ErrDuplicateOrder if the client order id has been seen before, which is
// the core's idempotency guard against a resubmitted signal after a
// crash.
func (m *StateMachine) Create(spec Spec) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[spec.ClientOrderID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, spec.ClientOrderID)
	}

	now := m.clock.Now()
	o := &Order{
		ClientOrderID: spec.ClientOrderID,
		Symbol:        spec.Symbol,
		Side:          spec.Side,
		Type:          spec.Type,
		RequestedQty:  spec.RequestedQty,
		LimitPrice:    spec.LimitPrice,
		TTL:           spec.TTL,
		StrategyID:    spec.StrategyID,
		CreatedAt:     now,
		State:         Pending,
	}

	if err := m.log.Append(txlog.Event{
		EventType:     txlog.EventOrderSubmit,
		LoggedAt:      now,
		ClientOrderID: o.ClientOrderID,
		Payload: map[string]any{
			"symbol":        o.Symbol,
			"side":          string(o.Side),
			"type":          string(o.Type),
			"requested_qty": o.RequestedQty.String(),
			"strategy_id":   o.StrategyID,
		},
	}); err != nil {
		return nil, fmt.Errorf("order: log create %s: %w", o.ClientOrderID, err)
	}

	m.orders[o.ClientOrderID] = o
	return copyOrder(o), nil
}

// Transition moves order clientOrderID from its current state to to,
// validating the move against legalTransitions and applying data. The
// append to the transaction log happens after the in-memory mutation and
// before the lock is released: on success
// both have happened; on any failure neither has, and the Order is left
// exactly as it was.
func (m *StateMachine) Transition(clientOrderID string, to State, data TransitionData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[clientOrderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, clientOrderID)
	}

	from := o.State
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalStateViolation, clientOrderID, from)
	}
	if !legalTransitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if to == Submitted && data.BrokerOrderID == "" {
		return fmt.Errorf("%w: %s", ErrMissingBrokerAck, clientOrderID)
	}
	if (to == PartiallyFilled || to == Filled) && data.FillQty.GreaterThan(o.Remaining()) {
		return fmt.Errorf("%w: %s fill %s exceeds remaining %s",
			ErrOverFill, clientOrderID, data.FillQty, o.Remaining())
	}

	now := m.clock.Now()
	mutated := *o
	eventType, payload := applyTransition(&mutated, to, data, now)

	if err := m.log.Append(txlog.Event{
		EventType:     eventType,
		LoggedAt:      now,
		ClientOrderID: clientOrderID,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("order: log transition %s %s->%s: %w", clientOrderID, from, to, err)
	}

	*o = mutated
	return nil
}

// applyTransition computes the post-transition Order fields and the log
// event that records them. It mutates o in place; Transition hands it a
// copy and stores that copy only after the log append has succeeded.
func applyTransition(o *Order, to State, data TransitionData, now time.Time) (txlog.EventType, map[string]any) {
	o.State = to

	switch to {
	case Submitted:
		o.BrokerOrderID = data.BrokerOrderID
		o.SubmittedAt = &now
		return txlog.EventOrderAck, map[string]any{"broker_order_id": data.BrokerOrderID}

	case PartiallyFilled, Filled:
		priorQty := o.CumulativeQty
		priorNotional := o.AvgFillPrice.Mul(priorQty)
		newNotional := data.FillPrice.Mul(data.FillQty)
		totalQty := priorQty.Add(data.FillQty)

		o.CumulativeQty = totalQty
		if !totalQty.IsZero() {
			o.AvgFillPrice = priorNotional.Add(newNotional).Div(totalQty)
		}
		o.Commission = o.Commission.Add(data.Commission)

		if to == Filled {
			o.FilledAt = &now
		}
		return txlog.EventOrderFill, map[string]any{
			"fill_qty":       data.FillQty.String(),
			"fill_price":     data.FillPrice.String(),
			"commission":     data.Commission.String(),
			"cumulative_qty": o.CumulativeQty.String(),
			"avg_price":      o.AvgFillPrice.String(),
		}

	case Cancelled:
		o.CancelledAt = &now
		return txlog.EventOrderCancel, map[string]any{"reason": data.Reason}

	case Rejected:
		return txlog.EventOrderReject, map[string]any{"reason": data.Reason}

	case Expired:
		return txlog.EventOrderExpire, map[string]any{"reason": data.Reason}

	default:
		// Unreachable: legalTransitions only maps to these five states.
		return txlog.EventOrderReject, nil
	}
}

// Get returns a copy of the order identified by clientOrderID.
func (m *StateMachine) Get(clientOrderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[clientOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, clientOrderID)
	}
	return copyOrder(o), nil
}

// Pending returns every order not yet in a terminal state, in no
// particular order.
func (m *StateMachine) Pending() []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Order
	for _, o := range m.orders {
		if !o.State.IsTerminal() {
			out = append(out, copyOrder(o))
		}
	}
	return out
}

// BySymbol returns every order (any state) for the given symbol.
func (m *StateMachine) BySymbol(symbol string) []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Order
	for _, o := range m.orders {
		if o.Symbol == symbol {
			out = append(out, copyOrder(o))
		}
	}
	return out
}

// ByState returns every order currently in the given state.
func (m *StateMachine) ByState(state State) []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Order
	for _, o := range m.orders {
		if o.State == state {
			out = append(out, copyOrder(o))
		}
	}
	return out
}

func copyOrder(o *Order) *Order {
	c := *o
	return &c
}
