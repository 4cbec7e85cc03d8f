package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"execution-core/internal/broker"
	"execution-core/internal/clock"
	"execution-core/internal/execution"
	"execution-core/internal/order"
	"execution-core/internal/positionstore"
	"execution-core/internal/protection"
	"execution-core/internal/reconcile"
	"execution-core/internal/riskgate"
	"execution-core/internal/tracker"
	"execution-core/internal/txlog"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeLog struct {
	events []txlog.Event
}

func (f *fakeLog) Append(ev txlog.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeLog) Close() error { return nil }

func (f *fakeLog) has(t txlog.EventType) bool {
	for _, ev := range f.events {
		if ev.EventType == t {
			return true
		}
	}
	return false
}

type staticPortfolio struct{ view riskgate.PortfolioView }

func (s staticPortfolio) View(context.Context, string) (riskgate.PortfolioView, error) {
	return s.view, nil
}

type noTrades struct{}

func (noTrades) RecentTrades(context.Context, string) ([]positionstore.Trade, error) {
	return nil, nil
}

// fixedBars yields n bars, then reports exhausted. An errAt index makes
// that call return an error instead of a bar.
type fixedBars struct {
	n     int
	errAt int
	calls int
}

func (b *fixedBars) NextBar(ctx context.Context) (Bar, bool, error) {
	b.calls++
	if b.errAt > 0 && b.calls == b.errAt {
		return Bar{}, false, errors.New("feed hiccup")
	}
	if b.calls > b.n {
		return Bar{}, false, nil
	}
	return Bar{Symbol: "SPY", Time: time.Now(), Close: dec("450")}, true, nil
}

// noopStrategy never produces a signal.
type noopStrategy struct{}

func (noopStrategy) Decide(ctx context.Context, bar Bar) (*execution.Signal, error) {
	return nil, nil
}

// errStrategy always fails.
type errStrategy struct{}

func (errStrategy) Decide(ctx context.Context, bar Bar) (*execution.Signal, error) {
	return nil, errors.New("strategy blew up")
}

// dupStrategy always emits the same signal, so the second submission
// trips the engine's idempotency guard — an invariant violation.
type dupStrategy struct{}

func (dupStrategy) Decide(ctx context.Context, bar Bar) (*execution.Signal, error) {
	return &execution.Signal{
		Symbol:         "SPY",
		Side:           order.Buy,
		Type:           order.Market,
		Quantity:       dec("1"),
		EstimatedPrice: dec("450"),
		StrategyID:     "strat-1",
		Time:           time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC),
		Nonce:          "fixed",
	}, nil
}

func newTestStore(t *testing.T, name string) *positionstore.Store {
	t.Helper()
	ctx := context.Background()
	db, err := positionstore.ConnectWithMigrations(ctx, positionstore.Config{
		Driver:          "sqlite3",
		DSN:             "file:" + name + "?mode=memory&cache=shared",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		RetryAttempts:   1,
		RetryDelay:      time.Millisecond,
	})
	if err != nil {
		t.Fatalf("ConnectWithMigrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return positionstore.NewStore(db)
}

// testRig wires a Runtime against fakes, mirroring how cmd/engine-core
// assembles the real collaborators.
type testRig struct {
	rt     *Runtime
	log    *fakeLog
	clk    *clock.Simulated
	fb     *broker.Fake
	orders *order.StateMachine
}

func newTestRig(t *testing.T, storeName string, mode reconcile.Mode, fb *broker.Fake) *testRig {
	t.Helper()
	c := clock.NewSimulated(time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC))
	log := &fakeLog{}
	orders := order.New(c, log)
	trk := tracker.New()
	store := newTestStore(t, storeName)
	mgr := protection.NewManager()
	gate := riskgate.New(riskgate.Limits{
		DailyLossLimit:          dec("1000"),
		MaxPositionNotional:     dec("50000"),
		MaxPortfolioNotionalPct: dec("1"),
	})
	symbols := execution.NewStaticSymbolInfo(map[string]execution.SymbolProperties{
		"SPY": {TickSize: dec("0.01"), LotSize: dec("1"), MinNotional: dec("1"), Tradable: true},
	})
	portfolio := staticPortfolio{view: riskgate.PortfolioView{
		AccountEquity:    dec("20000"),
		SeenClientOrders: func(string) bool { return false },
	}}
	eng := execution.New(execution.Config{
		Clock:       c,
		Orders:      orders,
		Tracker:     trk,
		Protections: mgr,
		RiskGate:    gate,
		Broker:      fb,
		Symbols:     symbols,
		Limiter:     execution.NewLimiter(c, 0),
		Portfolio:   portfolio,
		Trades:      noTrades{},
		Positions:   store,
		Log:         log,
	})
	rec := reconcile.New(reconcile.Config{
		Mode:      mode,
		Positions: store,
		Orders:    orders,
		Tracker:   trk,
		Broker:    fb,
		Clock:     c,
		Log:       log,
	})
	rt := New(Config{
		Clock:      c,
		Log:        log,
		Orders:     orders,
		Execution:  eng,
		Reconciler: rec,
		Mode:       mode,
	})
	return &testRig{rt: rt, log: log, clk: c, fb: fb, orders: orders}
}

func TestRunLoopCleanRunNoHalt(t *testing.T) {
	rig := newTestRig(t, "cleanrun", reconcile.Paper, broker.NewFake())
	if code, err := rig.rt.Start(context.Background()); err != nil || code != 0 {
		t.Fatalf("Start: code=%d err=%v", code, err)
	}

	bars := &fixedBars{n: 3}
	code := rig.rt.RunLoop(context.Background(), bars, noopStrategy{})
	if code != 0 {
		t.Fatalf("RunLoop exit code = %d, want 0", code)
	}
	if rig.log.has(txlog.EventHalt) {
		t.Errorf("HALT event logged during a clean run")
	}
	if state, _ := rig.rt.Override().State(); state != OverrideNone {
		t.Errorf("Override state = %s, want NONE", state)
	}
}

func TestStartHaltsOnRecoveryFailureInLiveMode(t *testing.T) {
	fb := broker.NewFake()
	fb.Positions = []broker.BrokerPosition{{Symbol: "SPY", Quantity: dec("100")}}
	rig := newTestRig(t, "recoveryfail", reconcile.Live, fb)
	// No local position recorded: an unexplained broker position is a
	// MissingLocal discrepancy at 100% drift, beyond tolerance, which Run
	// fails on in live mode.

	code, err := rig.rt.Start(context.Background())
	if err == nil {
		t.Fatalf("Start succeeded despite an unreconcilable broker position")
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !rig.log.has(txlog.EventHalt) {
		t.Errorf("HALT event not logged on recovery failure")
	}
	if state, _ := rig.rt.Override().State(); state != OverrideHalt {
		t.Errorf("Override state = %s, want HALT", state)
	}
}

func TestInvariantViolationHaltsImmediatelyBypassingBreaker(t *testing.T) {
	rig := newTestRig(t, "invariant", reconcile.Paper, broker.NewFake())
	if code, err := rig.rt.Start(context.Background()); err != nil || code != 0 {
		t.Fatalf("Start: code=%d err=%v", code, err)
	}

	// The same signal submitted twice trips the engine's duplicate-order
	// guard on the second bar. A single occurrence must halt regardless
	// of the failure breaker's threshold (default 5).
	bars := &fixedBars{n: 2}
	code := rig.rt.RunLoop(context.Background(), bars, dupStrategy{})
	if code != 1 {
		t.Fatalf("RunLoop exit code = %d, want 1", code)
	}
	if !rig.log.has(txlog.EventHalt) {
		t.Errorf("HALT event not logged on invariant violation")
	}
	if rig.rt.breaker.Streak() != 0 {
		t.Errorf("breaker streak = %d, an invariant halt should not touch it", rig.rt.breaker.Streak())
	}
}

func TestConsecutiveFailureBreakerTripsOnRepeatedBarErrors(t *testing.T) {
	rig := newTestRig(t, "breaker", reconcile.Paper, broker.NewFake())
	rig.rt.breaker = NewFailureBreaker(3)
	if code, err := rig.rt.Start(context.Background()); err != nil || code != 0 {
		t.Fatalf("Start: code=%d err=%v", code, err)
	}

	code := rig.rt.RunLoop(context.Background(), &alwaysErrBars{}, noopStrategy{})
	if code != 1 {
		t.Fatalf("RunLoop exit code = %d, want 1", code)
	}
	if !rig.log.has(txlog.EventHalt) {
		t.Errorf("HALT event not logged when the breaker trips")
	}
}

type alwaysErrBars struct{}

func (alwaysErrBars) NextBar(ctx context.Context) (Bar, bool, error) {
	return Bar{}, false, errors.New("feed down")
}

func TestConsecutiveFailureBreakerTripsOnRepeatedStrategyErrors(t *testing.T) {
	rig := newTestRig(t, "breakerstrategy", reconcile.Paper, broker.NewFake())
	rig.rt.breaker = NewFailureBreaker(2)
	if code, err := rig.rt.Start(context.Background()); err != nil || code != 0 {
		t.Fatalf("Start: code=%d err=%v", code, err)
	}

	bars := &fixedBars{n: 10}
	code := rig.rt.RunLoop(context.Background(), bars, errStrategy{})
	if code != 1 {
		t.Fatalf("RunLoop exit code = %d, want 1", code)
	}
	if !rig.log.has(txlog.EventHalt) {
		t.Errorf("HALT event not logged when the breaker trips on strategy errors")
	}
}

func TestOverridePauseBlocksEntryButAllowsPolling(t *testing.T) {
	rig := newTestRig(t, "pause", reconcile.Paper, broker.NewFake())
	if code, err := rig.rt.Start(context.Background()); err != nil || code != 0 {
		t.Fatalf("Start: code=%d err=%v", code, err)
	}
	rig.rt.Override().Pause("operator_review")

	bars := &fixedBars{n: 1}
	code := rig.rt.RunLoop(context.Background(), bars, dupStrategy{})
	if code != 0 {
		t.Fatalf("RunLoop exit code = %d, want 0 (paused, no submission attempted)", code)
	}
	if len(rig.fb.Submitted) != 0 {
		t.Errorf("broker received %d orders while paused, want 0", len(rig.fb.Submitted))
	}
}

func TestOverrideHaltBlocksAllActivity(t *testing.T) {
	rig := newTestRig(t, "halted", reconcile.Paper, broker.NewFake())
	if code, err := rig.rt.Start(context.Background()); err != nil || code != 0 {
		t.Fatalf("Start: code=%d err=%v", code, err)
	}
	rig.rt.Override().Halt("manual_kill_switch")

	bars := &fixedBars{n: 1}
	code := rig.rt.RunLoop(context.Background(), bars, dupStrategy{})
	if code != 0 {
		t.Fatalf("RunLoop exit code = %d, want 0 (halted loop just idles through remaining bars)", code)
	}
	if len(rig.fb.Submitted) != 0 {
		t.Errorf("broker received %d orders while halted, want 0", len(rig.fb.Submitted))
	}
}
