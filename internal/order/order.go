// Package order implements the OrderStateMachine: the exclusive owner of
// Order records and the only component allowed to mutate their state
// . Every legal transition is appended to the transaction log
// before the state-machine lock is released, so a crash can lose at most
// the most recent transition, which reconciliation reconstructs from the
// broker on the next cycle.
package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Type is the order type recognized by the execution core.
type Type string

const (
	Market    Type = "MARKET"
	Limit     Type = "LIMIT"
	Stop      Type = "STOP"
	StopLimit Type = "STOP_LIMIT"
)

// State is a position in the order lifecycle. See the transition table in
// Transition for the legal moves between states.
type State string

const (
	Pending         State = "PENDING"
	Submitted       State = "SUBMITTED"
	PartiallyFilled State = "PARTIALLY_FILLED"
	Filled          State = "FILLED"
	Cancelled       State = "CANCELLED"
	Rejected        State = "REJECTED"
	Expired         State = "EXPIRED"
)

// IsTerminal reports whether no further transition is legal from s.
func (s State) IsTerminal() bool {
	switch s {
	case Filled, Cancelled, Rejected, Expired:
		return true
	default:
		return false
	}
}

// Order is owned exclusively by the OrderStateMachine; every other
// component references it by ClientOrderID and reads a copy via Get.
type Order struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          Type
	RequestedQty  decimal.Decimal
	LimitPrice    *decimal.Decimal
	TTL           *time.Duration
	StrategyID    string
	CreatedAt     time.Time
	State         State
	BrokerOrderID string
	CumulativeQty decimal.Decimal
	AvgFillPrice  decimal.Decimal
	Commission    decimal.Decimal

	SubmittedAt *time.Time
	FilledAt    *time.Time
	CancelledAt *time.Time
}

// Remaining returns the quantity still unfilled.
func (o Order) Remaining() decimal.Decimal {
	return o.RequestedQty.Sub(o.CumulativeQty)
}

// Spec is the input to Create: everything the caller supplies when a new
// order is admitted, before the machine assigns lifecycle state.
type Spec struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          Type
	RequestedQty  decimal.Decimal
	LimitPrice    *decimal.Decimal
	TTL           *time.Duration
	StrategyID    string
}

// TransitionData carries the attributes a given transition writes onto
// the Order atomically with its state change.
type TransitionData struct {
	// BrokerOrderID is required when moving into Submitted.
	BrokerOrderID string
	// FillQty/FillPrice/Commission are required for PartiallyFilled/Filled.
	FillQty    decimal.Decimal
	FillPrice  decimal.Decimal
	Commission decimal.Decimal
	// Reason is an optional free-text note for Rejected/Cancelled/Expired.
	Reason string
}
