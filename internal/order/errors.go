package order

import "errors"

var (
	// ErrInvalidTransition is returned when the requested (from, to) pair
	// does not appear in the legal transition table. Callers must treat
	// this as an invariant violation and halt, not retry.
	ErrInvalidTransition = errors.New("order: invalid state transition")

	// ErrTerminalStateViolation is returned when a transition is attempted
	// out of a terminal state.
	ErrTerminalStateViolation = errors.New("order: transition from terminal state")

	// ErrMissingBrokerAck is returned when a transition into Submitted
	// carries no broker order id.
	ErrMissingBrokerAck = errors.New("order: submitted transition missing broker order id")

	// ErrOverFill is returned when a partial-fill transition would push
	// cumulative filled quantity past the requested quantity.
	ErrOverFill = errors.New("order: fill exceeds requested quantity")

	// ErrOrderNotFound is returned by Get/Transition for an unknown id.
	ErrOrderNotFound = errors.New("order: unknown client order id")

	// ErrDuplicateOrder is returned by Create when the client order id has
	// already been seen, including across a restart replayed from the log.
	ErrDuplicateOrder = errors.New("order: duplicate client order id")
)
