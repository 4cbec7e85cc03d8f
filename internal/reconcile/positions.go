package reconcile

import (
	"context"
	"fmt"

	"execution-core/internal/broker"
	"execution-core/internal/positionstore"

	"github.com/shopspring/decimal"
)

// Kind classifies one symbol's local-vs-broker comparison.
type Kind string

const (
	Match            Kind = "MATCH"
	MissingLocal     Kind = "MISSING_LOCAL"
	MissingBroker    Kind = "MISSING_BROKER"
	QuantityMismatch Kind = "QUANTITY_MISMATCH"
)

// PositionDiscrepancy is one symbol's comparison result.
type PositionDiscrepancy struct {
	Symbol    string
	Kind      Kind
	LocalQty  decimal.Decimal
	BrokerQty decimal.Decimal
	DriftPct  decimal.Decimal
}

func (r *Reconciler) reconcilePositions(ctx context.Context) ([]PositionDiscrepancy, error) {
	local, err := r.positions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list local positions: %w", err)
	}
	brokerPositions, err := r.broker.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list broker positions: %w", err)
	}

	localBySymbol := make(map[string]positionstore.Position, len(local))
	for _, p := range local {
		localBySymbol[p.Symbol] = p
	}
	brokerBySymbol := make(map[string]decimal.Decimal, len(brokerPositions))
	for _, p := range brokerPositions {
		brokerBySymbol[p.Symbol] = p.Quantity
	}

	symbols := make(map[string]struct{})
	for s := range localBySymbol {
		symbols[s] = struct{}{}
	}
	for s := range brokerBySymbol {
		symbols[s] = struct{}{}
	}

	out := make([]PositionDiscrepancy, 0, len(symbols))
	for symbol := range symbols {
		localQty, hasLocal := decimal.Zero, false
		if p, ok := localBySymbol[symbol]; ok {
			localQty, hasLocal = p.Quantity, true
		}
		brokerQty, hasBroker := brokerBySymbol[symbol]

		out = append(out, classify(symbol, localQty, hasLocal, brokerQty, hasBroker))
	}
	return out, nil
}

func classify(symbol string, localQty decimal.Decimal, hasLocal bool, brokerQty decimal.Decimal, hasBroker bool) PositionDiscrepancy {
	switch {
	case hasLocal && !localQty.IsZero() && (!hasBroker || brokerQty.IsZero()):
		return PositionDiscrepancy{Symbol: symbol, Kind: MissingBroker, LocalQty: localQty, BrokerQty: decimal.Zero, DriftPct: decimal.NewFromInt(1)}
	case (!hasLocal || localQty.IsZero()) && hasBroker && !brokerQty.IsZero():
		return PositionDiscrepancy{Symbol: symbol, Kind: MissingLocal, LocalQty: decimal.Zero, BrokerQty: brokerQty, DriftPct: decimal.NewFromInt(1)}
	case localQty.Equal(brokerQty):
		return PositionDiscrepancy{Symbol: symbol, Kind: Match, LocalQty: localQty, BrokerQty: brokerQty, DriftPct: decimal.Zero}
	default:
		drift := localQty.Sub(brokerQty).Abs()
		base := brokerQty.Abs()
		var driftPct decimal.Decimal
		if base.IsZero() {
			driftPct = decimal.NewFromInt(1)
		} else {
			driftPct = drift.Div(base)
		}
		return PositionDiscrepancy{Symbol: symbol, Kind: QuantityMismatch, LocalQty: localQty, BrokerQty: brokerQty, DriftPct: driftPct}
	}
}

// breachingDiscrepancies applies the configured thresholds: more than
// MaxMissing missing-local/missing-broker symbols, or any single
// symbol's drift above MaxDriftPct.
func breachingDiscrepancies(diffs []PositionDiscrepancy, th Thresholds) []PositionDiscrepancy {
	var missing, breaching []PositionDiscrepancy
	for _, d := range diffs {
		switch d.Kind {
		case MissingLocal, MissingBroker:
			if d.DriftPct.GreaterThan(th.MaxDriftPct) {
				breaching = append(breaching, d)
			} else {
				missing = append(missing, d)
			}
		case QuantityMismatch:
			if d.DriftPct.GreaterThan(th.MaxDriftPct) {
				breaching = append(breaching, d)
			}
		}
	}
	if len(missing) > th.MaxMissing {
		breaching = append(breaching, missing...)
	}
	return breaching
}

// heal applies the broker's view onto local state (paper mode only).
func (r *Reconciler) heal(ctx context.Context, diffs []PositionDiscrepancy) error {
	for _, d := range diffs {
		switch d.Kind {
		case MissingLocal:
			if err := r.positions.Upsert(ctx, positionstore.Position{
				Symbol:   d.Symbol,
				Quantity: d.BrokerQty,
			}); err != nil {
				return err
			}
		case MissingBroker:
			if err := r.positions.Close(ctx, d.Symbol); err != nil {
				return err
			}
		case QuantityMismatch:
			p, err := r.positions.Get(ctx, d.Symbol)
			if err != nil {
				return err
			}
			p.Quantity = d.BrokerQty
			if err := r.positions.Upsert(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reconciler) reconcileOrders(ctx context.Context) (orphans, shadows []string, err error) {
	open, err := r.broker.ListOpenOrders(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile: list broker open orders: %w", err)
	}
	ids := make([]string, 0, len(open))
	for _, o := range open {
		ids = append(ids, o.BrokerOrderID)
	}
	return r.tracker.Orphans(ids), r.tracker.Shadows(ids), nil
}

// loadProtectiveStops loads the symbol -> broker_order_id map for
// resting stop-sell orders, so the runtime can cancel the correct
// order when exiting a position.
func (r *Reconciler) loadProtectiveStops(ctx context.Context) (map[string]string, error) {
	open, err := r.broker.ListOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	stops := make(map[string]string)
	for _, o := range open {
		if isStopSell(o) {
			stops[o.Symbol] = o.BrokerOrderID
		}
	}
	return stops, nil
}

func isStopSell(o broker.OpenOrder) bool {
	return o.Side == "SELL" && (o.Type == "STOP" || o.Type == "STOP_LIMIT")
}
