package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"execution-core/internal/broker"
	"execution-core/internal/clock"
	"execution-core/internal/order"
	"execution-core/internal/positionstore"
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

func newTestReconciler(t *testing.T, name string, mode Mode, b broker.Broker) (*Reconciler, *positionstore.Store, *tracker.Tracker) {
	t.Helper()
	store := newTestStore(t, name)
	trk := tracker.New()
	c := clock.NewSimulated(time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC))
	r := New(Config{
		Mode:      mode,
		Positions: store,
		Orders:    order.New(c, &fakeLog{}),
		Tracker:   trk,
		Broker:    b,
		Clock:     c,
		Log:       &fakeLog{},
	})
	return r, store, trk
}

func TestReconcilePositionsMatch(t *testing.T) {
	fb := broker.NewFake()
	fb.Positions = []broker.BrokerPosition{{Symbol: "SPY", Quantity: dec("10")}}
	r, store, _ := newTestReconciler(t, "match", Live, fb)
	ctx := context.Background()
	store.Upsert(ctx, positionstore.Position{Symbol: "SPY", Quantity: dec("10"), EntryVWAP: dec("450"), OpenedAt: time.Now().UTC()})

	result, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, d := range result.Positions {
		if d.Kind != Match {
			t.Errorf("discrepancy %+v, want all Match", d)
		}
	}
}

func TestReconcileMissingLocalHealsInPaperMode(t *testing.T) {
	fb := broker.NewFake()
	fb.Positions = []broker.BrokerPosition{{Symbol: "SPY", Quantity: dec("10")}}
	r, store, _ := newTestReconciler(t, "missinglocal", Paper, fb)
	ctx := context.Background()

	result, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Healed {
		t.Errorf("Healed = false, want true in paper mode")
	}
	got, err := store.Get(ctx, "SPY")
	if err != nil {
		t.Fatalf("Get after heal: %v", err)
	}
	if !got.Quantity.Equal(dec("10")) {
		t.Errorf("Quantity after heal = %s, want 10", got.Quantity)
	}
}

func TestReconcileQuantityMismatchBeyondToleranceHaltsInLiveMode(t *testing.T) {
	fb := broker.NewFake()
	fb.Positions = []broker.BrokerPosition{{Symbol: "SPY", Quantity: dec("5")}}
	r, store, _ := newTestReconciler(t, "mismatch", Live, fb)
	ctx := context.Background()
	store.Upsert(ctx, positionstore.Position{Symbol: "SPY", Quantity: dec("10"), EntryVWAP: dec("450"), OpenedAt: time.Now().UTC()})

	_, err := r.Run(ctx)
	if !errors.Is(err, ErrReconcileFailed) {
		t.Fatalf("error = %v, want ErrReconcileFailed", err)
	}
}

func TestReconcileSmallDriftToleratedInLiveMode(t *testing.T) {
	fb := broker.NewFake()
	fb.Positions = []broker.BrokerPosition{{Symbol: "SPY", Quantity: dec("100")}}
	r, store, _ := newTestReconciler(t, "drifttolerated", Live, fb)
	ctx := context.Background()
	store.Upsert(ctx, positionstore.Position{Symbol: "SPY", Quantity: dec("102"), EntryVWAP: dec("450"), OpenedAt: time.Now().UTC()})

	result, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Positions) != 1 || result.Positions[0].Kind != QuantityMismatch {
		t.Fatalf("Positions = %+v, want one QuantityMismatch", result.Positions)
	}
}

func TestReconcileOrdersOrphansAndShadows(t *testing.T) {
	fb := broker.NewFake()
	fb.OpenOrders = []broker.OpenOrder{{BrokerOrderID: "B-ORPHAN", Symbol: "SPY", Status: "open"}}
	r, _, trk := newTestReconciler(t, "orphanshadow", Live, fb)

	if _, err := r.orders.Create(order.Spec{ClientOrderID: "C-SHADOW", Symbol: "QQQ", Side: order.Buy, Type: order.Market, RequestedQty: dec("1")}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.orders.Transition("C-SHADOW", order.Submitted, order.TransitionData{BrokerOrderID: "B-SHADOW"}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	sub, err := r.orders.Get("C-SHADOW")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	trk.StartTracking(*sub)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Orphans) != 1 || result.Orphans[0] != "B-ORPHAN" {
		t.Errorf("Orphans = %v, want [B-ORPHAN]", result.Orphans)
	}
	if len(result.Shadows) != 1 || result.Shadows[0] != "C-SHADOW" {
		t.Errorf("Shadows = %v, want [C-SHADOW]", result.Shadows)
	}
}

func TestLoadProtectiveStopsInLiveMode(t *testing.T) {
	fb := broker.NewFake()
	fb.OpenOrders = []broker.OpenOrder{
		{BrokerOrderID: "STOP-1", Symbol: "SPY", Side: order.Sell, Type: order.Stop, Status: "open"},
		{BrokerOrderID: "LIMIT-1", Symbol: "QQQ", Side: order.Buy, Type: order.Limit, Status: "open"},
	}
	r, _, _ := newTestReconciler(t, "protectivestops", Live, fb)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := result.ProtectiveStops["SPY"]; got != "STOP-1" {
		t.Errorf("ProtectiveStops[SPY] = %q, want STOP-1", got)
	}
	if _, ok := result.ProtectiveStops["QQQ"]; ok {
		t.Errorf("ProtectiveStops contains QQQ, want only stop-sell orders")
	}
}
