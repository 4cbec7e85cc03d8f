package main

import (
	"context"

	"execution-core/internal/execution"
	"execution-core/internal/runtime"
)

// noopStrategy never emits a signal. It is the default wired by main
// when no strategy plugin is configured: the runtime loop, halt layer,
// and reconciliation all function correctly against a feed that never
// trades, which is what a dry-run / reconciliation-only deployment uses.
// A real strategy implements runtime.Strategy and is wired in its place;
// strategy research and backtesting are outside this core's scope.
type noopStrategy struct{}

func (noopStrategy) Decide(ctx context.Context, bar runtime.Bar) (*execution.Signal, error) {
	return nil, nil
}
