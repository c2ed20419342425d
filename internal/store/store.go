// Package store persists orders, positions, fills and daily counters in a
// local SQLite database so the engine can recover its state across restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"auto-trading-engine/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	instrument      TEXT NOT NULL,
	side            TEXT NOT NULL,
	qty             REAL NOT NULL,
	requested_price REAL NOT NULL,
	status          TEXT NOT NULL,
	executed_price  REAL NOT NULL DEFAULT 0,
	executed_qty    REAL NOT NULL DEFAULT 0,
	fees            REAL NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);

CREATE TABLE IF NOT EXISTS positions (
	instrument      TEXT PRIMARY KEY,
	side            TEXT NOT NULL,
	quantity        REAL NOT NULL,
	avg_entry_price REAL NOT NULL,
	current_price   REAL NOT NULL,
	stop_loss       REAL NOT NULL,
	take_profit     REAL NOT NULL,
	entry_time      TEXT NOT NULL,
	last_update     TEXT NOT NULL,
	unrealized_pnl  REAL NOT NULL,
	state           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_history (
	id          TEXT PRIMARY KEY,
	instrument  TEXT NOT NULL,
	side        TEXT NOT NULL,
	qty         REAL NOT NULL,
	price       REAL NOT NULL,
	pnl         REAL NOT NULL,
	reason      TEXT NOT NULL,
	executed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_executed ON trade_history(executed_at);

CREATE TABLE IF NOT EXISTS daily_counters (
	date         TEXT PRIMARY KEY,
	realized_pnl REAL NOT NULL,
	trade_count  INTEGER NOT NULL
);
`

// Store wraps the SQLite handle. Safe for concurrent use; the driver
// serializes writes.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and its parent directory) if needed,
// applies the WAL pragmas and runs the schema migration.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY under concurrent loops.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveOrder inserts an order or updates its fill fields once the gateway
// reports an outcome. Rows are never deleted.
func (s *Store) SaveOrder(ctx context.Context, o types.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, instrument, side, qty, requested_price, status, executed_price, executed_qty, fees, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			executed_price = excluded.executed_price,
			executed_qty = excluded.executed_qty,
			fees = excluded.fees`,
		o.ID, o.Instrument, string(o.Side), o.Qty, o.RequestedPrice, string(o.Status),
		o.ExecutedPrice, o.ExecutedQty, o.Fees, fmtTime(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

// RecentOrders returns up to limit orders, newest first.
func (s *Store) RecentOrders(ctx context.Context, limit int) ([]types.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instrument, side, qty, requested_price, status, executed_price, executed_qty, fees, created_at
		FROM orders ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []types.Order
	for rows.Next() {
		var o types.Order
		var side, status, created string
		if err := rows.Scan(&o.ID, &o.Instrument, &side, &o.Qty, &o.RequestedPrice, &status,
			&o.ExecutedPrice, &o.ExecutedQty, &o.Fees, &created); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Side = types.OrderSide(side)
		o.Status = types.OrderStatus(status)
		o.CreatedAt = parseTime(created)
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpsertPosition writes the current snapshot of one position.
func (s *Store) UpsertPosition(ctx context.Context, p types.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (instrument, side, quantity, avg_entry_price, current_price, stop_loss, take_profit, entry_time, last_update, unrealized_pnl, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instrument) DO UPDATE SET
			side = excluded.side,
			quantity = excluded.quantity,
			avg_entry_price = excluded.avg_entry_price,
			current_price = excluded.current_price,
			stop_loss = excluded.stop_loss,
			take_profit = excluded.take_profit,
			entry_time = excluded.entry_time,
			last_update = excluded.last_update,
			unrealized_pnl = excluded.unrealized_pnl,
			state = excluded.state`,
		p.Instrument, string(p.Side), p.Quantity, p.AvgEntryPrice, p.CurrentPrice,
		p.StopLoss, p.TakeProfit, fmtTime(p.EntryTime), fmtTime(p.LastUpdate),
		p.UnrealizedPnL, string(p.State))
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.Instrument, err)
	}
	return nil
}

// DeletePosition removes a closed position's row.
func (s *Store) DeletePosition(ctx context.Context, instrument string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE instrument = ?`, instrument); err != nil {
		return fmt.Errorf("delete position %s: %w", instrument, err)
	}
	return nil
}

// LoadPositions returns every persisted position, used on restart.
func (s *Store) LoadPositions(ctx context.Context) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument, side, quantity, avg_entry_price, current_price, stop_loss, take_profit, entry_time, last_update, unrealized_pnl, state
		FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		var p types.Position
		var side, state, entry, update string
		if err := rows.Scan(&p.Instrument, &side, &p.Quantity, &p.AvgEntryPrice, &p.CurrentPrice,
			&p.StopLoss, &p.TakeProfit, &entry, &update, &p.UnrealizedPnL, &state); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Side = types.OrderSide(side)
		p.State = types.PositionState(state)
		p.EntryTime = parseTime(entry)
		p.LastUpdate = parseTime(update)
		out = append(out, p)
	}
	return out, rows.Err()
}

// AppendFill records one completed trade in the append-only history.
func (s *Store) AppendFill(ctx context.Context, f types.TradeFill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_history (id, instrument, side, qty, price, pnl, reason, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Instrument, string(f.Side), f.Qty, f.Price, f.PnL, f.Reason, fmtTime(f.ExecutedAt))
	if err != nil {
		return fmt.Errorf("append fill %s: %w", f.ID, err)
	}
	return nil
}

// SaveCounters upserts the running totals for one trading day.
func (s *Store) SaveCounters(ctx context.Context, c types.DailyCounters) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_counters (date, realized_pnl, trade_count)
		VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			realized_pnl = excluded.realized_pnl,
			trade_count = excluded.trade_count`,
		c.Date, c.RealizedPnL, c.TradeCount)
	if err != nil {
		return fmt.Errorf("save counters %s: %w", c.Date, err)
	}
	return nil
}

// LoadCounters returns the counters for a date, zero-valued when the day has
// no row yet.
func (s *Store) LoadCounters(ctx context.Context, date string) (types.DailyCounters, error) {
	c := types.DailyCounters{Date: date}
	err := s.db.QueryRowContext(ctx,
		`SELECT realized_pnl, trade_count FROM daily_counters WHERE date = ?`, date).
		Scan(&c.RealizedPnL, &c.TradeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("load counters %s: %w", date, err)
	}
	return c, nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
