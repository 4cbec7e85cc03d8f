package execution

import "errors"

var (
	// ErrDuplicateOrder is returned at step 2 of the submission algorithm
	// when client_order_id is already in the idempotency set.
	ErrDuplicateOrder = errors.New("execution: client_order_id already submitted")

	// ErrMalformedSignal is returned at step 3 when the signal fails
	// symbol-property validation before any broker call is made.
	ErrMalformedSignal = errors.New("execution: malformed signal")

	// ErrBlocked wraps a rejection from ProtectionManager or
	// PreTradeRiskGate at step 4.
	ErrBlocked = errors.New("execution: admission blocked")

	// ErrOrderNotFound is not returned by Engine; lookups of an unknown
	// order surface order.ErrOrderNotFound from the order package.
	ErrOrderNotFound = errors.New("execution: order not found")
)
