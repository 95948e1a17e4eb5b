package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
)

// SQLiteStore persists the ledger to a SQLite database. Money is stored as
// decimal TEXT and timestamps as unix nanoseconds so a save/load round-trip is exact.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ ledger.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite ledger store opened", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_account (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			starting_cash TEXT NOT NULL,
			cash          TEXT NOT NULL,
			realized_pnl  TEXT NOT NULL,
			updated_at    INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ledger_positions (
			symbol       TEXT PRIMARY KEY,
			quantity     INTEGER NOT NULL,
			avg_cost     TEXT NOT NULL,
			realized_pnl TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ledger_trades (
			seq          INTEGER PRIMARY KEY,
			id           TEXT NOT NULL UNIQUE,
			symbol       TEXT NOT NULL,
			side         TEXT NOT NULL,
			quantity     INTEGER NOT NULL,
			price        TEXT NOT NULL,
			cash_delta   TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			timestamp    INTEGER NOT NULL,
			executor     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON ledger_trades(symbol)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Load reads the full ledger. Returns nil if nothing has been saved.
func (s *SQLiteStore) Load(ctx context.Context) (*model.LedgerState, error) {
	var (
		startingCash, cash, realized string
		updatedAt                    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT starting_cash, cash, realized_pnl, updated_at FROM ledger_account WHERE id = 1`,
	).Scan(&startingCash, &cash, &realized, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	state := &model.LedgerState{UpdatedAt: time.Unix(0, updatedAt).UTC()}
	if state.StartingCash, err = decimal.NewFromString(startingCash); err != nil {
		return nil, fmt.Errorf("parse starting_cash: %w", err)
	}
	if state.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("parse cash: %w", err)
	}
	if state.RealizedPnL, err = decimal.NewFromString(realized); err != nil {
		return nil, fmt.Errorf("parse realized_pnl: %w", err)
	}

	if state.Positions, err = s.loadPositions(ctx); err != nil {
		return nil, err
	}
	if state.Trades, err = s.loadTrades(ctx); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *SQLiteStore) loadPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, quantity, avg_cost, realized_pnl FROM ledger_positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	positions := []model.Position{}
	for rows.Next() {
		var (
			p             model.Position
			avg, realized string
		)
		if err := rows.Scan(&p.Symbol, &p.Quantity, &avg, &realized); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if p.AvgCost, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("parse avg_cost for %s: %w", p.Symbol, err)
		}
		if p.RealizedPnL, err = decimal.NewFromString(realized); err != nil {
			return nil, fmt.Errorf("parse realized_pnl for %s: %w", p.Symbol, err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *SQLiteStore) loadTrades(ctx context.Context) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, side, quantity, price, cash_delta, realized_pnl, timestamp, executor
		 FROM ledger_trades ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	trades := []model.Trade{}
	for rows.Next() {
		var (
			t                      model.Trade
			side                   string
			price, delta, realized string
			ts                     int64
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.Quantity, &price, &delta, &realized, &ts, &t.Executor); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = model.Side(side)
		t.Timestamp = time.Unix(0, ts).UTC()
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price for trade %s: %w", t.ID, err)
		}
		if t.CashDelta, err = decimal.NewFromString(delta); err != nil {
			return nil, fmt.Errorf("parse cash_delta for trade %s: %w", t.ID, err)
		}
		if t.RealizedPnL, err = decimal.NewFromString(realized); err != nil {
			return nil, fmt.Errorf("parse realized_pnl for trade %s: %w", t.ID, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Save replaces the stored ledger in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, state *model.LedgerState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_account (id, starting_cash, cash, realized_pnl, updated_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			starting_cash = excluded.starting_cash,
			cash = excluded.cash,
			realized_pnl = excluded.realized_pnl,
			updated_at = excluded.updated_at`,
		state.StartingCash.String(), state.Cash.String(), state.RealizedPnL.String(), state.UpdatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for _, p := range state.Positions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_positions (symbol, quantity, avg_cost, realized_pnl) VALUES (?,?,?,?)`,
			p.Symbol, p.Quantity, p.AvgCost.String(), p.RealizedPnL.String(),
		); err != nil {
			return fmt.Errorf("save position %s: %w", p.Symbol, err)
		}
	}

	if err := s.saveTrades(ctx, tx, state.Trades); err != nil {
		return err
	}
	return tx.Commit()
}

// saveTrades appends trades not yet stored. History is append-only, so the
// stored rows are a prefix of trades unless the ledger was reset.
func (s *SQLiteStore) saveTrades(ctx context.Context, tx *sql.Tx, trades []model.Trade) error {
	var (
		stored int
		lastID sql.NullString
	)
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*), (SELECT id FROM ledger_trades ORDER BY seq DESC LIMIT 1) FROM ledger_trades`,
	).Scan(&stored, &lastID); err != nil {
		return fmt.Errorf("count trades: %w", err)
	}

	if stored > len(trades) || (stored > 0 && trades[stored-1].ID != lastID.String) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_trades`); err != nil {
			return fmt.Errorf("clear trades: %w", err)
		}
		stored = 0
	}

	for i := stored; i < len(trades); i++ {
		t := trades[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_trades
			(seq, id, symbol, side, quantity, price, cash_delta, realized_pnl, timestamp, executor)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			i, t.ID, t.Symbol, string(t.Side), t.Quantity, t.Price.String(), t.CashDelta.String(),
			t.RealizedPnL.String(), t.Timestamp.UnixNano(), t.Executor,
		); err != nil {
			return fmt.Errorf("save trade %s: %w", t.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.logger.Info("closing sqlite ledger store")
	return s.db.Close()
}
