package positionstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := ConnectWithMigrations(ctx, Config{
		Driver:          "sqlite3",
		DSN:             "file::memory:?cache=shared",
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
	return NewStore(db)
}

func TestUpsertThenGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := Position{
		Symbol:     "SPY",
		Quantity:   dec("10"),
		EntryVWAP:  dec("450.00"),
		OpenedAt:   time.Date(2026, 7, 31, 14, 30, 0, 0, time.UTC),
		StrategyID: "momentum-1",
	}
	if err := s.Upsert(ctx, want); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Get(ctx, "SPY")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Quantity.Equal(want.Quantity) || !got.EntryVWAP.Equal(want.EntryVWAP) {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestGetMissingPosition(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "QQQ")
	if !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("error = %v, want ErrPositionNotFound", err)
	}
}

func TestCloseRemovesPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Upsert(ctx, Position{Symbol: "SPY", Quantity: dec("5"), EntryVWAP: dec("100"), OpenedAt: time.Now().UTC()})

	if err := s.Close(ctx, "SPY"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Get(ctx, "SPY"); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("error after Close = %v, want ErrPositionNotFound", err)
	}
}

func TestRecordTradeAndTradesSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	closedAt := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)

	err := s.RecordTrade(ctx, Trade{
		ID: "T1", Symbol: "SPY", Side: "BUY", Quantity: dec("10"),
		EntryPrice: dec("450"), ExitPrice: dec("445"),
		OpenedAt: closedAt.Add(-time.Hour), ClosedAt: closedAt, StrategyID: "s1",
	})
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	trades, err := s.TradesSince(ctx, closedAt.Add(-time.Minute))
	if err != nil {
		t.Fatalf("TradesSince: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if !trades[0].PnL().Equal(dec("-50")) {
		t.Errorf("PnL = %s, want -50", trades[0].PnL())
	}

	none, err := s.TradesSince(ctx, closedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("TradesSince (future): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("len(none) = %d, want 0", len(none))
	}
}

func TestListOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Upsert(ctx, Position{Symbol: "SPY", Quantity: dec("1"), EntryVWAP: dec("1"), OpenedAt: time.Now().UTC()})
	s.Upsert(ctx, Position{Symbol: "QQQ", Quantity: dec("2"), EntryVWAP: dec("2"), OpenedAt: time.Now().UTC()})

	open, err := s.ListOpen(ctx)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("len(ListOpen) = %d, want 2", len(open))
	}
}
