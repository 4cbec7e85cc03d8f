package runtime

import "sync"

// FailureBreaker counts consecutive unhandled cycle failures and trips
// at a threshold. Grounded on
// guardrails.HealthMonitor's failStreak escalation, scoped to a plain
// counter since the escalation action here is a single halt, not a
// callback registry.
type FailureBreaker struct {
	mu        sync.Mutex
	threshold int
	streak    int
}

// DefaultFailureThreshold is the number of consecutive cycle failures
// that trips the breaker.
const DefaultFailureThreshold = 5

func NewFailureBreaker(threshold int) *FailureBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &FailureBreaker{threshold: threshold}
}

// RecordFailure increments the streak and reports whether it has now
// reached the trip threshold.
func (b *FailureBreaker) RecordFailure() (tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak++
	return b.streak >= b.threshold
}

// RecordSuccess resets the streak after a clean cycle.
func (b *FailureBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak = 0
}

func (b *FailureBreaker) Streak() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streak
}
