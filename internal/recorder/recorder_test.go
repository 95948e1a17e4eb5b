package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
	"BotInvest/internal/screener"
)

func TestSQLiteRecorder(t *testing.T) {
	ctx := context.Background()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"), 20, 60, nil)
	require.NoError(t, err)
	defer r.Close()

	rsi := 55.0
	res := &screener.Result{
		RunID:     "run-1",
		StartedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Universe:  []string{"AAPL", "MSFT", "BAD"},
		LongTerm: []model.Opportunity{{
			Symbol: "AAPL", Tag: model.TagLongTerm, Score: 0.2, Reason: "trend",
			Snapshot: model.IndicatorSnapshot{Symbol: "AAPL", Close: 150, RSI: &rsi, SMA: map[int]float64{20: 145, 60: 140}},
		}},
		Watch: []model.Opportunity{{
			Symbol: "MSFT", Tag: model.TagNone,
			Snapshot: model.IndicatorSnapshot{Symbol: "MSFT", Close: 300},
		}},
		Errors: []screener.SymbolError{{Symbol: "BAD", Err: errors.New("no data")}},
	}
	require.NoError(t, r.RecordScreening(ctx, res))

	var runs, results, errs int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM screening_runs`).Scan(&runs))
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM screening_results WHERE run_id = 'run-1'`).Scan(&results))
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM screening_errors`).Scan(&errs))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 2, results)
	assert.Equal(t, 1, errs)

	var smaLong *float64
	require.NoError(t, r.db.QueryRow(`SELECT sma_long FROM screening_results WHERE symbol = 'MSFT'`).Scan(&smaLong))
	assert.Nil(t, smaLong, "unknown indicators are stored as NULL")

	v := &ledger.Valuation{
		AsOf:   time.Now(),
		Cash:   decimal.RequireFromString("98500"),
		Equity: decimal.RequireFromString("100100"),
	}
	require.NoError(t, r.RecordEquity(ctx, v))
	var equity string
	require.NoError(t, r.db.QueryRow(`SELECT equity FROM equity_snapshots`).Scan(&equity))
	assert.Equal(t, "100100", equity)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	require.NoError(t, r.RecordScreening(context.Background(), &screener.Result{}))
	require.NoError(t, r.RecordEquity(context.Background(), &ledger.Valuation{}))
	require.NoError(t, r.Close())
}
