package runtime

import (
	"sync"

	"execution-core/internal/clock"
)

// OverrideState is the current operator-controlled trading state.
type OverrideState string

const (
	OverrideNone  OverrideState = "NONE"
	OverridePause OverrideState = "PAUSE"
	OverrideHalt  OverrideState = "HALT"
)

// Override lets an operator manually pause new entries or halt all
// activity. Every timestamp comes from the Runtime's Clock rather than
// wall time, so override state changes stay reproducible in tests that
// drive a clock.Simulated.
type Override struct {
	clock clock.Clock

	mu     sync.RWMutex
	state  OverrideState
	reason string
}

func NewOverride(c clock.Clock) *Override {
	return &Override{clock: c, state: OverrideNone}
}

func (o *Override) Pause(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = OverridePause
	o.reason = reason
}

func (o *Override) Halt(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = OverrideHalt
	o.reason = reason
}

func (o *Override) Resume(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = OverrideNone
	o.reason = reason
}

func (o *Override) State() (OverrideState, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state, o.reason
}

// AllowEntry reports whether new signals may be submitted.
func (o *Override) AllowEntry() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state == OverrideNone
}

// AllowAnyActivity reports whether any trading activity (including
// cancels and polling) is permitted.
func (o *Override) AllowAnyActivity() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state != OverrideHalt
}
