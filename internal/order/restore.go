package order

import (
	"execution-core/internal/txlog"

	"github.com/shopspring/decimal"
)

// Restore rebuilds in-memory order state from a previously replayed
// transaction log, without re-appending anything (those events are
// already durable). It must be called before the machine accepts any
// concurrent traffic; callers typically get events from txlog.Replay at
// process startup.
//
// Restore folds the order-keyed events back through the same state
// transitions Create/Transition would have applied, so a submission that
// crashed after its ORDER_SUBMIT record but before a reply is still
// visible to Create's duplicate check on restart.
func (m *StateMachine) Restore(events []txlog.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range events {
		if !ev.IsOrderEvent() {
			continue
		}
		switch ev.EventType {
		case txlog.EventOrderSubmit:
			m.orders[ev.ClientOrderID] = restoreCreate(ev)
		default:
			if o, ok := m.orders[ev.ClientOrderID]; ok {
				restoreApply(o, ev)
			}
		}
	}
}

func restoreCreate(ev txlog.Event) *Order {
	o := &Order{
		ClientOrderID: ev.ClientOrderID,
		CreatedAt:     ev.LoggedAt,
		State:         Pending,
	}
	if v, ok := ev.Payload["symbol"].(string); ok {
		o.Symbol = v
	}
	if v, ok := ev.Payload["side"].(string); ok {
		o.Side = Side(v)
	}
	if v, ok := ev.Payload["type"].(string); ok {
		o.Type = Type(v)
	}
	if v, ok := ev.Payload["strategy_id"].(string); ok {
		o.StrategyID = v
	}
	if v, ok := ev.Payload["requested_qty"].(string); ok {
		o.RequestedQty = mustDecimal(v)
	}
	return o
}

func restoreApply(o *Order, ev txlog.Event) {
	loggedAt := ev.LoggedAt
	switch ev.EventType {
	case txlog.EventOrderAck:
		o.State = Submitted
		o.SubmittedAt = &loggedAt
		if v, ok := ev.Payload["broker_order_id"].(string); ok {
			o.BrokerOrderID = v
		}
	case txlog.EventOrderFill:
		if v, ok := ev.Payload["cumulative_qty"].(string); ok {
			o.CumulativeQty = mustDecimal(v)
		}
		if v, ok := ev.Payload["avg_price"].(string); ok {
			o.AvgFillPrice = mustDecimal(v)
		}
		if v, ok := ev.Payload["commission"].(string); ok {
			o.Commission = o.Commission.Add(mustDecimal(v))
		}
		if o.CumulativeQty.Equal(o.RequestedQty) {
			o.State = Filled
			o.FilledAt = &loggedAt
		} else {
			o.State = PartiallyFilled
		}
	case txlog.EventOrderCancel:
		o.State = Cancelled
		o.CancelledAt = &loggedAt
	case txlog.EventOrderReject:
		o.State = Rejected
	case txlog.EventOrderExpire:
		o.State = Expired
	}
}

// mustDecimal parses a payload field that was always written by
// decimal.Decimal.String on the way in; a parse failure means the log was
// hand-edited or corrupted in a way earlier replay validation should have
// already caught.
func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("order: restore: invalid decimal in log: " + s)
	}
	return d
}
