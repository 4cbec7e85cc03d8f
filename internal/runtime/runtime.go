// Package runtime drives the trading cycle and enforces the
// invariant-halt layer: fetch bar, run strategy, submit any
// resulting signal, poll for TTL expiry, and reconcile periodically.
// Any of three triggers synchronously halts the loop with exit code 1.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"execution-core/internal/clock"
	"execution-core/internal/execution"
	"execution-core/internal/order"
	"execution-core/internal/reconcile"
	"execution-core/internal/txlog"

	"github.com/shopspring/decimal"
)

// Bar is one unit of market data handed to a Strategy, grounded on
// libs/contracts/services.Bar but carrying decimal.Decimal fields to
// stay consistent with the rest of the execution-core's money types.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// BarSource supplies the next bar for the runtime loop to act on. ok is
// false once the source is exhausted (end of a backtest feed); a live
// feed never returns ok=false and instead blocks inside NextBar.
type BarSource interface {
	NextBar(ctx context.Context) (bar Bar, ok bool, err error)
}

// Strategy turns a bar into an optional signal. A nil signal means no
// action this cycle.
type Strategy interface {
	Decide(ctx context.Context, bar Bar) (*execution.Signal, error)
}

// Log is the subset of *txlog.TransactionLog the runtime needs: append
// for the HALT event, and Close on the way out.
type Log interface {
	order.EventAppender
	Close() error
}

// Config bundles Runtime's collaborators.
type Config struct {
	Clock          clock.Clock
	Log            Log
	Orders         *order.StateMachine
	Execution      *execution.Engine
	Reconciler     *reconcile.Reconciler
	Mode           reconcile.Mode
	FailureBreaker *FailureBreaker
	ReconcileEvery int // reconcile every N cycles; 0 disables periodic reconciliation
}

// Runtime owns the trading loop and the halt decision.
type Runtime struct {
	clock      clock.Clock
	log        Log
	orders     *order.StateMachine
	execution  *execution.Engine
	reconciler *reconcile.Reconciler
	mode       reconcile.Mode
	breaker    *FailureBreaker
	override   *Override

	reconcileEvery int
	cycleCount     int
}

func New(cfg Config) *Runtime {
	breaker := cfg.FailureBreaker
	if breaker == nil {
		breaker = NewFailureBreaker(DefaultFailureThreshold)
	}
	return &Runtime{
		clock:          cfg.Clock,
		log:            cfg.Log,
		orders:         cfg.Orders,
		execution:      cfg.Execution,
		reconciler:     cfg.Reconciler,
		mode:           cfg.Mode,
		breaker:        breaker,
		override:       NewOverride(cfg.Clock),
		reconcileEvery: cfg.ReconcileEvery,
	}
}

// Override exposes the operator-control surface.
func (r *Runtime) Override() *Override { return r.override }

// Start runs mandatory startup reconciliation. A failure in live mode
// means the loop never starts.
func (r *Runtime) Start(ctx context.Context) (exitCode int, err error) {
	if _, err := r.reconciler.Run(ctx); err != nil {
		return r.halt(ctx, fmt.Sprintf("RECOVERY_FAILED: %v", err)), err
	}
	return 0, nil
}

// RunLoop drives cycles until bars is exhausted, ctx is cancelled, or a
// halt trigger fires. It returns the process exit code.
func (r *Runtime) RunLoop(ctx context.Context, bars BarSource, strategy Strategy) int {
	for {
		select {
		case <-ctx.Done():
			return 0
		default:
		}

		bar, ok, err := bars.NextBar(ctx)
		if err != nil {
			if r.breaker.RecordFailure() {
				return r.halt(ctx, "CONSECUTIVE_FAILURE_BREAKER: bar fetch")
			}
			continue
		}
		if !ok {
			return 0
		}

		if code, halted := r.runCycle(ctx, bar, strategy); halted {
			return code
		}
	}
}

// runCycle executes one fetch-decide-submit-poll-reconcile cycle.
func (r *Runtime) runCycle(ctx context.Context, bar Bar, strategy Strategy) (exitCode int, halted bool) {
	if !r.override.AllowAnyActivity() {
		return 0, false
	}

	signal, err := strategy.Decide(ctx, bar)
	if err != nil {
		if r.breaker.RecordFailure() {
			return r.halt(ctx, "CONSECUTIVE_FAILURE_BREAKER: strategy"), true
		}
		return 0, false
	}

	if signal != nil && r.override.AllowEntry() {
		if _, err := r.execution.Submit(ctx, *signal); err != nil {
			if isInvariantViolation(err) {
				return r.halt(ctx, fmt.Sprintf("INVARIANT_VIOLATION: %v", err)), true
			}
			// Admission rejections and transient broker errors are
			// expected operational outcomes, not failures of the loop.
		}
	}

	if err := r.execution.SyncFills(ctx); err != nil {
		if isInvariantViolation(err) {
			return r.halt(ctx, fmt.Sprintf("INVARIANT_VIOLATION: %v", err)), true
		}
	}

	r.execution.PollStatus(ctx)

	r.cycleCount++
	if r.reconcileEvery > 0 && r.cycleCount%r.reconcileEvery == 0 {
		if _, err := r.reconciler.Run(ctx); err != nil {
			if r.mode == reconcile.Live {
				return r.halt(ctx, fmt.Sprintf("INVARIANT_VIOLATION: reconcile drift: %v", err)), true
			}
		}
	}

	r.breaker.RecordSuccess()
	return 0, false
}

// isInvariantViolation reports whether err is one of the invariant
// errors that are named as unconditional halt triggers, never counted
// against the consecutive-failure breaker.
func isInvariantViolation(err error) bool {
	return errors.Is(err, order.ErrInvalidTransition) ||
		errors.Is(err, order.ErrTerminalStateViolation) ||
		errors.Is(err, order.ErrOverFill) ||
		errors.Is(err, execution.ErrDuplicateOrder)
}

// halt is the synchronous, auditable halt action: append HALT, stop
// accepting new signals, cancel pending non-terminal orders, close the
// log, return exit code 1.
func (r *Runtime) halt(ctx context.Context, reason string) int {
	r.override.Halt(reason)

	_ = r.log.Append(txlog.Event{
		EventType: txlog.EventHalt,
		LoggedAt:  r.clock.Now(),
		Payload:   map[string]any{"reason": reason},
	})

	for _, o := range r.orders.Pending() {
		_ = r.execution.Cancel(ctx, o.ClientOrderID, "runtime_halt")
	}

	_ = r.log.Close()
	return 1
}
