// Package broker defines the Broker port: the boundary between
// the execution core and whatever concrete venue API is wired in. No
// vendor SDK is bound here; the reference adapter in http_adapter.go
// talks to a generic JSON REST bridge, the way ib_adapter.go does for
// Interactive Brokers.
package broker

import (
	"context"
	"errors"
	"time"

	"execution-core/internal/order"

	"github.com/shopspring/decimal"
)

// OrderSpec is what ExecutionEngine hands the broker to place an order.
type OrderSpec struct {
	ClientOrderID string
	Symbol        string
	Side          order.Side
	Type          order.Type
	Quantity      decimal.Decimal
	LimitPrice    *decimal.Decimal
}

// Ack is a generic broker acknowledgement (cancel confirmations, etc.).
type Ack struct {
	Accepted bool
	Message  string
}

// OpenOrder is one broker-reported order still working.
type OpenOrder struct {
	BrokerOrderID string
	Symbol        string
	Side          order.Side
	Type          order.Type
	FilledQty     decimal.Decimal
	AvgFillPrice  decimal.Decimal
	Status        string
}

// BrokerPosition is the broker's view of a held position, used by the
// Reconciler to detect drift against PositionStore.
type BrokerPosition struct {
	Symbol   string
	Quantity decimal.Decimal
}

// AccountSnapshot carries the account values the risk gate and
// protections need (equity, day-trade count).
type AccountSnapshot struct {
	NetLiquidation decimal.Decimal
	BuyingPower    decimal.Decimal
	DayTradeCount  int
	AsOf           time.Time
}

// Broker is the port every component consumes instead of a vendor SDK
// directly. Every method may block; errors are classified via IsTransient
// so callers know whether to retry.
type Broker interface {
	Submit(ctx context.Context, spec OrderSpec) (brokerOrderID string, err error)
	Cancel(ctx context.Context, brokerOrderID string) (Ack, error)
	ListOpenOrders(ctx context.Context) ([]OpenOrder, error)
	ListPositions(ctx context.Context) ([]BrokerPosition, error)
	GetAccount(ctx context.Context) (AccountSnapshot, error)
}

// Error wraps a broker failure with a Transient flag so ExecutionEngine
// can classify it without string-matching.
type Error struct {
	Transient bool
	Err       error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err (possibly wrapped) is a retriable
// broker error.
func IsTransient(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Transient
	}
	return false
}
