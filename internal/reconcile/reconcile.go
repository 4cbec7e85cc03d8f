// Package reconcile implements the Reconciler: the
// mandatory broker-authoritative sync that runs before the trading
// loop starts and on demand thereafter.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"execution-core/internal/broker"
	"execution-core/internal/clock"
	"execution-core/internal/order"
	"execution-core/internal/positionstore"
	"execution-core/internal/tracker"
	"execution-core/internal/txlog"

	"github.com/shopspring/decimal"
)

// Mode selects the resolution policy: Paper heals local state to match
// the broker, Live halts above tolerance.
type Mode string

const (
	Paper Mode = "PAPER"
	Live  Mode = "LIVE"
)

// ErrReconcileFailed is returned by Run when live-mode drift exceeds
// tolerance; the runtime treats this as a halt trigger.
var ErrReconcileFailed = errors.New("reconcile: drift exceeds tolerance")

// Thresholds bounds how much drift Run tolerates before treating the
// broker-vs-local mismatch as a failure rather than a warning.
type Thresholds struct {
	MaxMissing  int
	MaxDriftPct decimal.Decimal
}

// DefaultThresholds is max_missing=3, max_drift_pct=5%.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxMissing: 3, MaxDriftPct: decimal.NewFromFloat(0.05)}
}

// Result is everything one reconciliation pass found and did.
type Result struct {
	Positions       []PositionDiscrepancy
	Orphans         []string
	Shadows         []string
	ProtectiveStops map[string]string
	Healed          bool
}

// Reconciler owns no state of its own; every field is a collaborator it
// compares or heals.
type Reconciler struct {
	mode       Mode
	thresholds Thresholds
	positions  *positionstore.Store
	orders     *order.StateMachine
	tracker    *tracker.Tracker
	broker     broker.Broker
	clock      clock.Clock
	log        order.EventAppender
}

// Config bundles Reconciler's collaborators.
type Config struct {
	Mode       Mode
	Thresholds Thresholds
	Positions  *positionstore.Store
	Orders     *order.StateMachine
	Tracker    *tracker.Tracker
	Broker     broker.Broker
	Clock      clock.Clock
	Log        order.EventAppender
}

func New(cfg Config) *Reconciler {
	th := cfg.Thresholds
	if th.MaxDriftPct.IsZero() && th.MaxMissing == 0 {
		th = DefaultThresholds()
	}
	return &Reconciler{
		mode:       cfg.Mode,
		thresholds: th,
		positions:  cfg.Positions,
		orders:     cfg.Orders,
		tracker:    cfg.Tracker,
		broker:     cfg.Broker,
		clock:      cfg.Clock,
		log:        cfg.Log,
	}
}

// Run performs one full reconciliation pass: positions, orders, and
// (live mode only) protective-stop discovery.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	positionDiff, err := r.reconcilePositions(ctx)
	if err != nil {
		return Result{}, err
	}

	orphans, shadows, err := r.reconcileOrders(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Positions: positionDiff,
		Orphans:   orphans,
		Shadows:   shadows,
	}

	for _, d := range positionDiff {
		if d.Kind != Match {
			r.appendDelta(d)
		}
	}

	breaching := breachingDiscrepancies(positionDiff, r.thresholds)
	if len(breaching) > 0 {
		if r.mode == Paper {
			if err := r.heal(ctx, positionDiff); err != nil {
				return result, fmt.Errorf("reconcile: heal: %w", err)
			}
			result.Healed = true
			return result, nil
		}
		return result, fmt.Errorf("%w: %d symbol(s) beyond tolerance", ErrReconcileFailed, len(breaching))
	}

	if r.mode == Live {
		stops, err := r.loadProtectiveStops(ctx)
		if err != nil {
			// Fail-open: an empty map is safe, the single-position-per-symbol
			// invariant prevents duplicate stops downstream.
			stops = map[string]string{}
		}
		result.ProtectiveStops = stops
	}

	return result, nil
}

func (r *Reconciler) appendDelta(d PositionDiscrepancy) {
	if r.log == nil {
		return
	}
	_ = r.log.Append(txlog.Event{
		EventType: txlog.EventReconcileDelta,
		LoggedAt:  r.clock.Now(),
		Payload: map[string]any{
			"symbol":     d.Symbol,
			"kind":       string(d.Kind),
			"local_qty":  d.LocalQty.String(),
			"broker_qty": d.BrokerQty.String(),
			"drift_pct":  d.DriftPct.String(),
		},
	})
}
