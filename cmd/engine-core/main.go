// Command engine-core wires the execution core's components in
// initialization order (Clock → Log → States → Risk → Execution →
// Runtime) and drives the trading loop until a halt trigger
// fires, the bar feed is exhausted, or it receives SIGINT/SIGTERM.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"execution-core/internal/broker"
	"execution-core/internal/clock"
	"execution-core/internal/config"
	"execution-core/internal/execution"
	"execution-core/internal/observability"
	"execution-core/internal/order"
	"execution-core/internal/positionstore"
	"execution-core/internal/reconcile"
	"execution-core/internal/riskgate"
	"execution-core/internal/runtime"
	"execution-core/internal/tracker"
	"execution-core/internal/txlog"

	"github.com/google/uuid"
)

// defaultReconcileEvery turns the "periodically" reconcile cadence into
// a concrete cycle count: every 30 cycles (roughly once every 30 bars).
const defaultReconcileEvery = 30

func main() {
	configPath := flag.String("config", "execution-core.json", "path to the execution core's JSON configuration file")
	txlogPath := flag.String("txlog", "execution-core.log", "path to the append-only transaction log")
	dbDriver := flag.String("db-driver", "sqlite3", "position store driver: sqlite3 or postgres")
	dbDSN := flag.String("db-dsn", "file:execution-core.db", "position store DSN")
	brokerURL := flag.String("broker-url", "", "broker HTTP base URL (empty uses an in-memory fake, for paper/dry-run)")
	symbolsPath := flag.String("symbols", "", "path to a JSON file of symbol properties (tick size, lot size, min notional, tradable)")
	barsPath := flag.String("bars", "-", "path to a JSON-lines bar feed, or - for stdin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	runCtx := observability.WithRunInfo(context.Background(), observability.RunInfo{RunID: uuid.NewString()})

	c := clock.System{}

	txLog, err := txlog.Open(*txlogPath)
	if err != nil {
		log.Fatalf("open transaction log: %v", err)
	}
	defer txLog.Close()

	events, err := txlog.Replay(*txlogPath, txlog.All)
	if err != nil {
		log.Fatalf("replay transaction log: %v", err)
	}

	orders := order.New(c, txLog)
	orders.Restore(events)
	trk := tracker.New()

	storeCfg := positionstore.DefaultConfig(*dbDriver, *dbDSN)
	db, err := positionstore.ConnectWithMigrations(runCtx, storeCfg)
	if err != nil {
		log.Fatalf("connect position store: %v", err)
	}
	defer db.Close()
	store := positionstore.NewStore(db)

	brokerPort := newBrokerPort(*brokerURL)

	symbols, err := loadSymbolInfo(*symbolsPath)
	if err != nil {
		log.Fatalf("load symbol properties: %v", err)
	}

	account, err := brokerPort.GetAccount(runCtx)
	if err != nil {
		observability.LogEvent(runCtx, "warn", "startup_account_fetch_failed", map[string]any{"error": err})
	}

	gate := riskgate.New(cfg.RiskLimits())
	protections := cfg.ProtectionManager(account.NetLiquidation)
	adapter := execution.StoreAdapter{Store: store, Broker: brokerPort, Clock: c, Orders: orders}

	engine := execution.New(execution.Config{
		Clock:       c,
		Orders:      orders,
		Tracker:     trk,
		Protections: protections,
		RiskGate:    gate,
		Broker:      brokerPort,
		Symbols:     symbols,
		Limiter:     execution.NewLimiter(c, 0),
		Portfolio:   adapter,
		Trades:      adapter,
		Positions:   store,
		Log:         txLog,
	})
	engine.Restore(events)

	reconciler := reconcile.New(reconcile.Config{
		Mode:       cfg.ReconcileMode(),
		Thresholds: cfg.ReconcileThresholds(),
		Positions:  store,
		Orders:     orders,
		Tracker:    trk,
		Broker:     brokerPort,
		Clock:      c,
		Log:        txLog,
	})

	rt := runtime.New(runtime.Config{
		Clock:          c,
		Log:            txLog,
		Orders:         orders,
		Execution:      engine,
		Reconciler:     reconciler,
		Mode:           cfg.ReconcileMode(),
		FailureBreaker: runtime.NewFailureBreaker(cfg.Runtime.MaxConsecutiveFailures),
		ReconcileEvery: defaultReconcileEvery,
	})

	ctx, cancel := context.WithCancel(runCtx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		observability.LogEvent(runCtx, "info", "shutdown_signal_received", nil)
		rt.Override().Halt("operator_signal")
		cancel()
	}()

	if code, err := rt.Start(ctx); err != nil {
		observability.LogEvent(runCtx, "error", "startup_reconciliation_failed", map[string]any{"error": err})
		os.Exit(code)
	}

	feed, err := openBarFeed(*barsPath)
	if err != nil {
		log.Fatalf("open bar feed: %v", err)
	}
	defer feed.Close()

	code := rt.RunLoop(ctx, NewJSONLBarSource(feed), noopStrategy{})
	os.Exit(code)
}

func newBrokerPort(url string) broker.Broker {
	if url == "" {
		return broker.NewFake()
	}
	return broker.NewHTTPAdapter(url)
}

func loadSymbolInfo(path string) (execution.SymbolInfo, error) {
	if path == "" {
		return execution.NewStaticSymbolInfo(map[string]execution.SymbolProperties{}), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	var props map[string]execution.SymbolProperties
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&props); err != nil {
		return nil, fmt.Errorf("parse symbols file: %w", err)
	}
	return execution.NewStaticSymbolInfo(props), nil
}
