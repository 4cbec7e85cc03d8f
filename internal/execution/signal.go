package execution

import (
	"time"

	"execution-core/internal/order"

	"github.com/shopspring/decimal"
)

// Signal is what a strategy hands ExecutionEngine.Submit. EstimatedPrice
// is the strategy's own mark, used for notional checks before a broker
// ack supplies anything authoritative.
type Signal struct {
	Symbol         string
	Side           order.Side
	Type           order.Type
	Quantity       decimal.Decimal
	LimitPrice     *decimal.Decimal
	EstimatedPrice decimal.Decimal
	TTL            *time.Duration
	StrategyID     string

	// Time and Nonce feed deterministic client_order_id computation: the
	// same (Symbol, Side, StrategyID, Time, Nonce) tuple always produces
	// the same id, so a retried signal after a crash is recognized as a
	// duplicate rather than double-submitted.
	Time  time.Time
	Nonce string
}
