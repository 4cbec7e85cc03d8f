package txlog

import "time"

// EventType is a stable, wire-level enum string. Downstream tooling
// consumes the transaction log file directly, so these values are part of
// the on-disk contract and must never be renamed once shipped.
type EventType string

const (
	EventOrderSubmit    EventType = "ORDER_SUBMIT"
	EventOrderAck       EventType = "ORDER_ACK"
	EventOrderFill      EventType = "ORDER_FILL"
	EventOrderCancel    EventType = "ORDER_CANCEL"
	EventOrderReject    EventType = "ORDER_REJECT"
	EventOrderExpire    EventType = "ORDER_EXPIRE"
	EventPositionOpen   EventType = "POSITION_OPEN"
	EventPositionUpdate EventType = "POSITION_UPDATE"
	EventPositionClose  EventType = "POSITION_CLOSE"
	EventProtectionTrip EventType = "PROTECTION_TRIGGER"
	EventReconcileDelta EventType = "RECONCILE_DELTA"
	EventHalt           EventType = "HALT"
)

// Event is one append-only log record. Its composite identity is
// (EventType, ClientOrderID) for order events, or (EventType, LoggedAt)
// otherwise.
type Event struct {
	EventType     EventType      `json:"event_type"`
	LoggedAt      time.Time      `json:"logged_at"`
	ClientOrderID string         `json:"client_order_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// IsOrderEvent reports whether this event is keyed by client order id.
func (e Event) IsOrderEvent() bool { return e.ClientOrderID != "" }
