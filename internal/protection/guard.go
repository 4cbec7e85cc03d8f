package protection

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// guard wraps a protection's Evaluate body in a named circuit breaker, the
// way libs/resilience.CircuitBreaker wraps a risky call: if the
// evaluation function itself starts erroring (malformed trade data, a nil
// collaborator), the breaker opens and the protection fails closed —
// blocking admission — rather than the runtime thread repeatedly hitting
// the same broken evaluation. Business cooldown timing (ActiveUntil) is
// computed entirely from the caller-supplied now, never from the
// breaker's own internal timer, so it stays deterministic under a
// Simulated clock.
type guard struct {
	cb *gobreaker.CircuitBreaker[Status]
}

func newGuard(name string) *guard {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &guard{cb: gobreaker.NewCircuitBreaker[Status](settings)}
}

// run executes fn through the breaker. If the breaker is open (repeated
// prior failures), it fails closed: blocked until the breaker's own
// retry timeout, with a reason identifying the guard itself rather than
// a business trigger.
func (g *guard) run(name string, now time.Time, fn func() (Status, error)) (Status, error) {
	result, err := g.cb.Execute(fn)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return blockedUntil(now.Add(30*time.Second), fmt.Sprintf("%s_evaluation_unavailable", name), name), nil
		}
		return Status{}, fmt.Errorf("protection: %s: %w", name, err)
	}
	return result, nil
}
