package execution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolProperties is the external per-symbol contract step 3 of the
// submission algorithm rounds and validates against.
type SymbolProperties struct {
	TickSize    decimal.Decimal
	LotSize     decimal.Decimal
	MinNotional decimal.Decimal
	Tradable    bool
}

// SymbolInfo is the collaborator ExecutionEngine asks for a symbol's
// tradable properties. The one implementation in this module is
// StaticSymbolInfo below, which cmd/engine-core wires from a fixed table.
type SymbolInfo interface {
	Properties(symbol string) (SymbolProperties, error)
}

// StaticSymbolInfo is a SymbolInfo backed by a fixed map, useful for
// tests and for paper-mode deployments with a hand-maintained table.
type StaticSymbolInfo struct {
	props map[string]SymbolProperties
}

func NewStaticSymbolInfo(props map[string]SymbolProperties) *StaticSymbolInfo {
	return &StaticSymbolInfo{props: props}
}

func (s *StaticSymbolInfo) Properties(symbol string) (SymbolProperties, error) {
	p, ok := s.props[symbol]
	if !ok {
		return SymbolProperties{}, fmt.Errorf("execution: unknown symbol %q", symbol)
	}
	return p, nil
}

// roundToStep rounds v down to the nearest non-negative multiple of
// step. step <= 0 means no rounding is applied.
func roundToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.LessThanOrEqual(decimal.Zero) {
		return v
	}
	units := v.Div(step).Truncate(0)
	return units.Mul(step)
}

// roundPriceToTick rounds p to the nearest multiple of tick. tick <= 0
// means no rounding is applied.
func roundPriceToTick(p, tick decimal.Decimal) decimal.Decimal {
	if tick.LessThanOrEqual(decimal.Zero) {
		return p
	}
	units := p.DivRound(tick, 0)
	return units.Mul(tick)
}

// validateAndRound applies step 3 of the submission algorithm: round
// quantity to the symbol's lot size, round any limit price to its tick
// size, and reject malformed or untradable requests before any broker
// call is made.
func validateAndRound(sig Signal, props SymbolProperties) (decimal.Decimal, *decimal.Decimal, error) {
	if !props.Tradable {
		return decimal.Zero, nil, fmt.Errorf("%w: %s is not tradable", ErrMalformedSignal, sig.Symbol)
	}
	qty := roundToStep(sig.Quantity, props.LotSize)
	if qty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, nil, fmt.Errorf("%w: rounded quantity is zero", ErrMalformedSignal)
	}

	var limitPrice *decimal.Decimal
	if sig.LimitPrice != nil {
		rounded := roundPriceToTick(*sig.LimitPrice, props.TickSize)
		limitPrice = &rounded
	}

	notionalPrice := sig.EstimatedPrice
	if limitPrice != nil {
		notionalPrice = *limitPrice
	}
	if !props.MinNotional.IsZero() && qty.Mul(notionalPrice).LessThan(props.MinNotional) {
		return decimal.Zero, nil, fmt.Errorf("%w: notional below minimum", ErrMalformedSignal)
	}

	return qty, limitPrice, nil
}
