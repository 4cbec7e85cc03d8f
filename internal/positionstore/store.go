package positionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the PositionStore: transactional CRUD over the positions and
// trades tables, usable against either backend Connect opened.
type Store struct {
	db     *DB
	driver string
}

// NewStore wraps an already-connected, already-migrated DB.
func NewStore(db *DB) *Store {
	return &Store{db: db, driver: db.config.Driver}
}

// placeholder returns the driver-appropriate bind parameter for position
// n (1-indexed): "$1" for postgres, "?" for sqlite3.
func (s *Store) placeholder(n int) string {
	if s.driver == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Get returns the position for symbol, or ErrPositionNotFound.
func (s *Store) Get(ctx context.Context, symbol string) (Position, error) {
	query := fmt.Sprintf(
		`SELECT symbol, qty, entry_vwap, opened_at, strategy_id, protective_stop_id, realized_pnl
		 FROM positions WHERE symbol = %s`, s.placeholder(1))

	var p Position
	var qty, vwap, pnl string
	row := s.db.QueryRowContext(ctx, query, symbol)
	err := row.Scan(&p.Symbol, &qty, &vwap, &p.OpenedAt, &p.StrategyID, &p.ProtectiveStopOrder, &pnl)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, ErrPositionNotFound
	}
	if err != nil {
		return Position{}, fmt.Errorf("positionstore: get %s: %w", symbol, err)
	}
	if p.Quantity, err = decimal.NewFromString(qty); err != nil {
		return Position{}, fmt.Errorf("positionstore: parse qty for %s: %w", symbol, err)
	}
	if p.EntryVWAP, err = decimal.NewFromString(vwap); err != nil {
		return Position{}, fmt.Errorf("positionstore: parse entry_vwap for %s: %w", symbol, err)
	}
	if p.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
		return Position{}, fmt.Errorf("positionstore: parse realized_pnl for %s: %w", symbol, err)
	}
	return p, nil
}

// Upsert writes p transactionally, replacing any existing row for the
// symbol. Closing a position is a call to Close, which removes the row
// so at-most-one-open-position-per-symbol never needs a flag column.
func (s *Store) Upsert(ctx context.Context, p Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("positionstore: begin upsert %s: %w", p.Symbol, err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf(`DELETE FROM positions WHERE symbol = %s`, s.placeholder(1))
	if _, err := tx.ExecContext(ctx, del, p.Symbol); err != nil {
		return fmt.Errorf("positionstore: clear %s before upsert: %w", p.Symbol, err)
	}

	ins := fmt.Sprintf(
		`INSERT INTO positions (symbol, qty, entry_vwap, opened_at, strategy_id, protective_stop_id, realized_pnl)
		 VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7))
	_, err = tx.ExecContext(ctx, ins,
		p.Symbol, p.Quantity.String(), p.EntryVWAP.String(), p.OpenedAt,
		p.StrategyID, p.ProtectiveStopOrder, p.RealizedPnL.String())
	if err != nil {
		return fmt.Errorf("positionstore: insert %s: %w", p.Symbol, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("positionstore: commit upsert %s: %w", p.Symbol, err)
	}
	return nil
}

// Close removes the position row for symbol, marking it flat.
func (s *Store) Close(ctx context.Context, symbol string) error {
	del := fmt.Sprintf(`DELETE FROM positions WHERE symbol = %s`, s.placeholder(1))
	if _, err := s.db.ExecContext(ctx, del, symbol); err != nil {
		return fmt.Errorf("positionstore: close %s: %w", symbol, err)
	}
	return nil
}

// ListOpen returns every currently open position.
func (s *Store) ListOpen(ctx context.Context) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, qty, entry_vwap, opened_at, strategy_id, protective_stop_id, realized_pnl FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("positionstore: list open: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		var qty, vwap, pnl string
		if err := rows.Scan(&p.Symbol, &qty, &vwap, &p.OpenedAt, &p.StrategyID, &p.ProtectiveStopOrder, &pnl); err != nil {
			return nil, fmt.Errorf("positionstore: scan position: %w", err)
		}
		p.Quantity, _ = decimal.NewFromString(qty)
		p.EntryVWAP, _ = decimal.NewFromString(vwap)
		p.RealizedPnL, _ = decimal.NewFromString(pnl)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordTrade inserts a closed trade row, used for P&L reporting and as
// the source for protections' "recent closed trades" lookback windows.
func (s *Store) RecordTrade(ctx context.Context, t Trade) error {
	ins := fmt.Sprintf(
		`INSERT INTO trades (id, symbol, side, qty, entry_price, exit_price, opened_at, closed_at, strategy_id)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9))
	_, err := s.db.ExecContext(ctx, ins,
		t.ID, t.Symbol, t.Side, t.Quantity.String(), t.EntryPrice.String(),
		t.ExitPrice.String(), t.OpenedAt, t.ClosedAt, t.StrategyID)
	if err != nil {
		return fmt.Errorf("positionstore: record trade %s: %w", t.ID, err)
	}
	return nil
}

// TradesSince returns every trade closed at or after since, across all
// symbols, ordered oldest first — the window ProtectionManager's
// StoplossGuard/CooldownPeriod/MaxDrawdown protections evaluate against.
func (s *Store) TradesSince(ctx context.Context, since time.Time) ([]Trade, error) {
	query := fmt.Sprintf(`SELECT id, symbol, side, qty, entry_price, exit_price, opened_at, closed_at, strategy_id
		FROM trades WHERE closed_at >= %s ORDER BY closed_at ASC`, s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("positionstore: trades since %v: %w", since, err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		var qty, entry, exit string
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &qty, &entry, &exit, &t.OpenedAt, &t.ClosedAt, &t.StrategyID); err != nil {
			return nil, fmt.Errorf("positionstore: scan trade: %w", err)
		}
		t.Quantity, _ = decimal.NewFromString(qty)
		t.EntryPrice, _ = decimal.NewFromString(entry)
		t.ExitPrice, _ = decimal.NewFromString(exit)
		out = append(out, t)
	}
	return out, rows.Err()
}
