package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
)

func sampleState() *model.LedgerState {
	ts := time.Date(2024, 5, 1, 14, 30, 15, 123456000, time.UTC)
	return &model.LedgerState{
		StartingCash: decimal.RequireFromString("100000"),
		Cash:         decimal.RequireFromString("99080"),
		RealizedPnL:  decimal.RequireFromString("150"),
		Positions: []model.Position{
			{Symbol: "0700.HK", Quantity: 100, AvgCost: decimal.RequireFromString("3.2"), RealizedPnL: decimal.Zero},
			{Symbol: "AAPL", Quantity: 5, AvgCost: decimal.RequireFromString("150"), RealizedPnL: decimal.RequireFromString("150")},
		},
		Trades: []model.Trade{
			{ID: "t1", Symbol: "AAPL", Side: model.SideBuy, Quantity: 10, Price: decimal.RequireFromString("150"),
				CashDelta: decimal.RequireFromString("-1500"), Timestamp: ts, Executor: "paper"},
			{ID: "t2", Symbol: "AAPL", Side: model.SideSell, Quantity: 5, Price: decimal.RequireFromString("180"),
				CashDelta: decimal.RequireFromString("900"), RealizedPnL: decimal.RequireFromString("150"),
				Timestamp: ts.Add(time.Minute), Executor: "paper"},
			{ID: "t3", Symbol: "0700.HK", Side: model.SideBuy, Quantity: 100, Price: decimal.RequireFromString("3.2"),
				CashDelta: decimal.RequireFromString("-320"), Timestamp: ts.Add(2 * time.Minute), Executor: "paper"},
			{ID: "t4", Symbol: "MSFT", Side: model.SideBuy, Quantity: 1, Price: decimal.RequireFromString("0.25"),
				CashDelta: decimal.RequireFromString("-0.25"), Timestamp: ts.Add(3 * time.Minute), Executor: "paper"},
			{ID: "t5", Symbol: "MSFT", Side: model.SideSell, Quantity: 1, Price: decimal.RequireFromString("0.25"),
				CashDelta: decimal.RequireFromString("0.25"), RealizedPnL: decimal.Zero, Timestamp: ts.Add(4 * time.Minute), Executor: "paper"},
		},
		UpdatedAt: ts.Add(5 * time.Minute),
	}
}

// testStoreContract exercises the behaviour every ledger.Store must share.
func testStoreContract(t *testing.T, s ledger.Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "empty store loads as nil")

	want := sampleState()
	require.NoError(t, want.Verify())

	require.NoError(t, s.Save(ctx, want))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, want.Equal(got), "round trip mismatch:\nwant %+v\ngot  %+v", want, got)

	// save(load()) is a fixed point.
	require.NoError(t, s.Save(ctx, got))
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(again))

	// Appending a trade keeps earlier history intact.
	extra := model.Trade{ID: "t6", Symbol: "AAPL", Side: model.SideSell, Quantity: 5, Price: decimal.RequireFromString("200"),
		CashDelta: decimal.RequireFromString("1000"), RealizedPnL: decimal.RequireFromString("250"),
		Timestamp: want.UpdatedAt.Add(time.Minute), Executor: "paper"}
	want.Trades = append(want.Trades, extra)
	want.Cash = want.Cash.Add(extra.CashDelta)
	want.Positions = want.Positions[:1]
	require.NoError(t, s.Save(ctx, want))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	// A reset shrinks history.
	fresh := model.NewLedgerState(decimal.RequireFromString("5000"))
	fresh.UpdatedAt = want.UpdatedAt
	require.NoError(t, s.Save(ctx, fresh))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, fresh.Equal(got))
	assert.Empty(t, got.Trades)
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_CopiesOnSave(t *testing.T) {
	s := NewMemoryStore()
	state := sampleState()
	require.NoError(t, s.Save(context.Background(), state))
	state.Positions[0].Quantity = 1

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Positions[0].Quantity)
}

func TestJSONStore(t *testing.T) {
	testStoreContract(t, NewJSONStore(filepath.Join(t.TempDir(), "nested", "ledger.json")))
}

func TestJSONStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewJSONStore(path).Load(context.Background())
	require.Error(t, err)
}

func TestJSONStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONStore(filepath.Join(dir, "ledger.json"))
	require.NoError(t, s.Save(context.Background(), sampleState()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ledger.json", entries[0].Name())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	defer s.Close()
	testStoreContract(t, s)
}

func TestSQLiteStore_ReopenKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sampleState()))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, sampleState().Equal(got))
}

func TestLedgerOverSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	l, err := ledger.Open(ctx, s)
	require.NoError(t, err)
	_, err = l.Buy(ctx, "AAPL", 10, decimal.RequireFromString("150"))
	require.NoError(t, err)
	_, err = l.Sell(ctx, "AAPL", 5, decimal.RequireFromString("180"))
	require.NoError(t, err)

	reopened, err := ledger.Open(ctx, s)
	require.NoError(t, err)
	assert.True(t, l.State().Equal(reopened.State()))
	assert.True(t, reopened.Cash().Equal(decimal.RequireFromString("99400")))
}
