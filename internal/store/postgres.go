package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// PostgresStore persists the ledger in PostgreSQL. Money columns are NUMERIC
// and are exchanged as text so no precision is lost in either direction.
type PostgresStore struct {
	pool *Pool
}

var _ ledger.Store = (*PostgresStore)(nil)

// NewPostgresStore creates the schema if needed and returns a store on pool.
func NewPostgresStore(ctx context.Context, pool *Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_account (
			id            SMALLINT PRIMARY KEY CHECK (id = 1),
			starting_cash NUMERIC NOT NULL,
			cash          NUMERIC NOT NULL CHECK (cash >= 0),
			realized_pnl  NUMERIC NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_positions (
			symbol       TEXT PRIMARY KEY,
			quantity     BIGINT NOT NULL CHECK (quantity > 0),
			avg_cost     NUMERIC NOT NULL,
			realized_pnl NUMERIC NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_trades (
			seq          INTEGER PRIMARY KEY,
			id           TEXT NOT NULL UNIQUE,
			symbol       TEXT NOT NULL,
			side         TEXT NOT NULL,
			quantity     BIGINT NOT NULL,
			price        NUMERIC NOT NULL,
			cash_delta   NUMERIC NOT NULL,
			realized_pnl NUMERIC NOT NULL,
			ts           TIMESTAMPTZ NOT NULL,
			executor     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_trades_symbol ON ledger_trades(symbol)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Load reads the full ledger. Returns nil if nothing has been saved.
func (s *PostgresStore) Load(ctx context.Context) (*model.LedgerState, error) {
	var startingCash, cash, realized string
	state := &model.LedgerState{}
	err := s.pool.QueryRow(ctx,
		`SELECT starting_cash::text, cash::text, realized_pnl::text, updated_at
		 FROM ledger_account WHERE id = 1`,
	).Scan(&startingCash, &cash, &realized, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	state.UpdatedAt = state.UpdatedAt.UTC()
	if state.StartingCash, err = decimal.NewFromString(startingCash); err != nil {
		return nil, fmt.Errorf("parse starting_cash: %w", err)
	}
	if state.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("parse cash: %w", err)
	}
	if state.RealizedPnL, err = decimal.NewFromString(realized); err != nil {
		return nil, fmt.Errorf("parse realized_pnl: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT symbol, quantity, avg_cost::text, realized_pnl::text FROM ledger_positions ORDER BY symbol COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	state.Positions, err = pgx.CollectRows(rows, scanPosition)
	if err != nil {
		return nil, fmt.Errorf("scan positions: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT id, symbol, side, quantity, price::text, cash_delta::text, realized_pnl::text, ts, executor
		 FROM ledger_trades ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	state.Trades, err = pgx.CollectRows(rows, scanTrade)
	if err != nil {
		return nil, fmt.Errorf("scan trades: %w", err)
	}
	return state, nil
}

func scanPosition(row pgx.CollectableRow) (model.Position, error) {
	var (
		p             model.Position
		avg, realized string
	)
	if err := row.Scan(&p.Symbol, &p.Quantity, &avg, &realized); err != nil {
		return p, err
	}
	var err error
	if p.AvgCost, err = decimal.NewFromString(avg); err != nil {
		return p, err
	}
	p.RealizedPnL, err = decimal.NewFromString(realized)
	return p, err
}

func scanTrade(row pgx.CollectableRow) (model.Trade, error) {
	var (
		t                      model.Trade
		side                   string
		price, delta, realized string
	)
	if err := row.Scan(&t.ID, &t.Symbol, &side, &t.Quantity, &price, &delta, &realized, &t.Timestamp, &t.Executor); err != nil {
		return t, err
	}
	t.Side = model.Side(side)
	t.Timestamp = t.Timestamp.UTC()
	var err error
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return t, err
	}
	if t.CashDelta, err = decimal.NewFromString(delta); err != nil {
		return t, err
	}
	t.RealizedPnL, err = decimal.NewFromString(realized)
	return t, err
}

// Save replaces the stored ledger in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, state *model.LedgerState) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_account (id, starting_cash, cash, realized_pnl, updated_at)
		 VALUES (1, $1::text::numeric, $2::text::numeric, $3::text::numeric, $4)
		 ON CONFLICT (id) DO UPDATE SET
			starting_cash = EXCLUDED.starting_cash,
			cash = EXCLUDED.cash,
			realized_pnl = EXCLUDED.realized_pnl,
			updated_at = EXCLUDED.updated_at`,
		state.StartingCash.String(), state.Cash.String(), state.RealizedPnL.String(), state.UpdatedAt,
	); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM ledger_positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	batch := &pgx.Batch{}
	for _, p := range state.Positions {
		batch.Queue(
			`INSERT INTO ledger_positions (symbol, quantity, avg_cost, realized_pnl)
			 VALUES ($1, $2, $3::text::numeric, $4::text::numeric)`,
			p.Symbol, p.Quantity, p.AvgCost.String(), p.RealizedPnL.String())
	}

	var (
		stored int
		lastID *string
	)
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*), (SELECT id FROM ledger_trades ORDER BY seq DESC LIMIT 1) FROM ledger_trades`,
	).Scan(&stored, &lastID); err != nil {
		return fmt.Errorf("count trades: %w", err)
	}
	if stored > len(state.Trades) || (stored > 0 && (lastID == nil || state.Trades[stored-1].ID != *lastID)) {
		batch.Queue(`DELETE FROM ledger_trades`)
		stored = 0
	}
	for i := stored; i < len(state.Trades); i++ {
		t := state.Trades[i]
		batch.Queue(
			`INSERT INTO ledger_trades
			(seq, id, symbol, side, quantity, price, cash_delta, realized_pnl, ts, executor)
			VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7::text::numeric, $8::text::numeric, $9, $10)`,
			i, t.ID, t.Symbol, string(t.Side), t.Quantity, t.Price.String(), t.CashDelta.String(),
			t.RealizedPnL.String(), t.Timestamp, t.Executor)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save rows: %w", err)
		}
	}
	return tx.Commit(ctx)
}
