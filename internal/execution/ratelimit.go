package execution

import (
	"sync"
	"time"

	"execution-core/internal/clock"
)

// Limiter throttles outbound Broker.Submit calls, grounded on
// libs/middleware/ratelimit.go's windowed-counter shape but scoped to a
// single bucket (the engine's own outbound call budget, not per-client).
type Limiter struct {
	mu              sync.Mutex
	clock           clock.Clock
	perMinute       int
	minuteCount     int
	minuteResetTime time.Time
}

// NewLimiter builds a Limiter allowing perMinute Broker calls per fixed
// one-minute window; the count resets on the first call after the window
// ends. perMinute <= 0 disables throttling.
func NewLimiter(c clock.Clock, perMinute int) *Limiter {
	return &Limiter{clock: c, perMinute: perMinute, minuteResetTime: c.Now().Add(time.Minute)}
}

// Allow reports whether a Broker call may proceed now.
func (l *Limiter) Allow() bool {
	if l.perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.minuteResetTime) {
		l.minuteCount = 0
		l.minuteResetTime = now.Add(time.Minute)
	}
	if l.minuteCount >= l.perMinute {
		return false
	}
	l.minuteCount++
	return true
}
