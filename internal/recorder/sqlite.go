package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
	"BotInvest/internal/screener"
)

// SQLiteRecorder persists historical data to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger

	shortWindow, longWindow int
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
// shortWindow and longWindow select which SMAs are denormalised into result rows.
func NewSQLiteRecorder(dbPath string, shortWindow, longWindow int, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger, shortWindow: shortWindow, longWindow: longWindow}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS screening_runs (
			run_id        TEXT PRIMARY KEY,
			timestamp     INTEGER NOT NULL,
			duration_ms   INTEGER,
			universe_size INTEGER,
			long_count    INTEGER,
			short_count   INTEGER,
			watch_count   INTEGER,
			error_count   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON screening_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS screening_results (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			tag        TEXT NOT NULL,
			score      REAL,
			close      REAL,
			rsi        REAL,
			sma_short  REAL,
			sma_long   REAL,
			atr        REAL,
			support    REAL,
			resistance REAL,
			reason     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run ON screening_results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_symbol ON screening_results(symbol)`,

		`CREATE TABLE IF NOT EXISTS screening_errors (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			error  TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS equity_snapshots (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			cash           TEXT,
			market_value   TEXT,
			unrealized_pnl TEXT,
			realized_pnl   TEXT,
			equity         TEXT,
			positions      INTEGER,
			missing_prices INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_ts ON equity_snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordScreening(ctx context.Context, res *screener.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO screening_runs
		(run_id, timestamp, duration_ms, universe_size, long_count, short_count, watch_count, error_count)
		VALUES (?,?,?,?,?,?,?,?)`,
		res.RunID, res.StartedAt.Unix(), res.Duration.Milliseconds(), len(res.Universe),
		len(res.LongTerm), len(res.ShortTerm), len(res.Watch), len(res.Errors),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, bucket := range [][]model.Opportunity{res.LongTerm, res.ShortTerm, res.Watch} {
		for _, o := range bucket {
			if err := r.insertResult(ctx, tx, res.RunID, &o); err != nil {
				return err
			}
		}
	}
	for _, e := range res.Errors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO screening_errors (run_id, symbol, error) VALUES (?,?,?)`,
			res.RunID, e.Symbol, e.Err.Error(),
		); err != nil {
			return fmt.Errorf("insert error row: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) insertResult(ctx context.Context, tx *sql.Tx, runID string, o *model.Opportunity) error {
	snap := &o.Snapshot
	_, err := tx.ExecContext(ctx, `INSERT INTO screening_results
		(run_id, symbol, tag, score, close, rsi, sma_short, sma_long, atr, support, resistance, reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		runID, o.Symbol, string(o.Tag), o.Score, snap.Close,
		nullable(snap.RSI), smaValue(snap, r.shortWindow), smaValue(snap, r.longWindow),
		nullable(snap.ATR), nullable(snap.Support), nullable(snap.Resistance), o.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", o.Symbol, err)
	}
	return nil
}

func (r *SQLiteRecorder) RecordEquity(ctx context.Context, v *ledger.Valuation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO equity_snapshots
		(timestamp, cash, market_value, unrealized_pnl, realized_pnl, equity, positions, missing_prices)
		VALUES (?,?,?,?,?,?,?,?)`,
		v.AsOf.Unix(), v.Cash.String(), v.MarketValue.String(), v.UnrealizedPnL.String(),
		v.RealizedPnL.String(), v.Equity.String(), len(v.Positions), len(v.Warnings),
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func smaValue(snap *model.IndicatorSnapshot, window int) sql.NullFloat64 {
	v, ok := snap.SMAFor(window)
	return sql.NullFloat64{Float64: v, Valid: ok}
}
