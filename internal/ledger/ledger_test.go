package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BotInvest/internal/model"
)

type fakeStore struct {
	mu      sync.Mutex
	state   *model.LedgerState
	saves   int
	saveErr error
	loadErr error
}

func (f *fakeStore) Load(context.Context) (*model.LedgerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.state.Clone(), nil
}

func (f *fakeStore) Save(_ context.Context, s *model.LedgerState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.state = s.Clone()
	return nil
}

type fixedExecutor struct {
	price decimal.Decimal
	err   error
}

func (f *fixedExecutor) Name() string { return "fixed" }

func (f *fixedExecutor) Execute(_ context.Context, o Order) (Fill, error) {
	if f.err != nil {
		return Fill{}, f.err
	}
	return Fill{Quantity: o.Quantity, Price: f.price}, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var clock = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

func openLedger(t *testing.T, store Store, opts ...Option) *Ledger {
	t.Helper()
	opts = append([]Option{WithClock(clock)}, opts...)
	l, err := Open(context.Background(), store, opts...)
	require.NoError(t, err)
	return l
}

func TestOpen_FreshDefault(t *testing.T) {
	store := &fakeStore{}
	l := openLedger(t, store)

	assert.True(t, l.Cash().Equal(d("100000")))
	assert.Equal(t, 1, store.saves, "fresh ledger should be persisted")
	assert.Equal(t, "paper", l.ExecutorName())
}

func TestOpen_LoadsExisting(t *testing.T) {
	state := model.NewLedgerState(d("5000"))
	store := &fakeStore{state: state}
	l := openLedger(t, store, WithStartingCash(d("1")))

	assert.True(t, l.Cash().Equal(d("5000")))
	assert.Equal(t, 0, store.saves)
}

func TestOpen_RejectsInconsistentState(t *testing.T) {
	state := model.NewLedgerState(d("5000"))
	state.Cash = d("4000")
	_, err := Open(context.Background(), &fakeStore{state: state})
	require.Error(t, err)
}

func TestOpen_RejectsDuplicatePositions(t *testing.T) {
	state := model.NewLedgerState(d("5000"))
	state.Positions = []model.Position{
		{Symbol: "AAPL", Quantity: 5, AvgCost: d("100")},
		{Symbol: "AAPL", Quantity: 5, AvgCost: d("100")},
	}
	_, err := Open(context.Background(), &fakeStore{state: state})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate position AAPL")
}

func TestOpen_LoadError(t *testing.T) {
	_, err := Open(context.Background(), &fakeStore{loadErr: errors.New("disk gone")})
	require.Error(t, err)
}

func TestBuySellScenario(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	l := openLedger(t, store)

	buy, err := l.Buy(ctx, "AAPL", 10, d("150"))
	require.NoError(t, err)
	assert.True(t, buy.CashDelta.Equal(d("-1500")))
	assert.True(t, l.Cash().Equal(d("98500")))

	pos := l.Positions()
	require.Len(t, pos, 1)
	assert.Equal(t, int64(10), pos[0].Quantity)
	assert.True(t, pos[0].AvgCost.Equal(d("150")))

	sell, err := l.Sell(ctx, "AAPL", 5, d("180"))
	require.NoError(t, err)
	assert.True(t, sell.CashDelta.Equal(d("900")))
	assert.True(t, sell.RealizedPnL.Equal(d("150")))
	assert.True(t, l.Cash().Equal(d("99400")))

	pos = l.Positions()
	require.Len(t, pos, 1)
	assert.Equal(t, int64(5), pos[0].Quantity)
	assert.True(t, pos[0].AvgCost.Equal(d("150")))
	assert.True(t, pos[0].RealizedPnL.Equal(d("150")))

	assert.Len(t, l.History(), 2)
	assert.True(t, store.state.Equal(l.State()), "every trade is persisted")
	require.NoError(t, l.State().Verify())
}

func TestBuy_WeightedAverageCost(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, &fakeStore{})

	_, err := l.Buy(ctx, "MSFT", 10, d("100"))
	require.NoError(t, err)
	_, err = l.Buy(ctx, "MSFT", 10, d("200"))
	require.NoError(t, err)

	pos := l.Positions()
	require.Len(t, pos, 1)
	assert.Equal(t, int64(20), pos[0].Quantity)
	assert.True(t, pos[0].AvgCost.Equal(d("150")), "got %s", pos[0].AvgCost)
}

func TestSell_FullQuantityRemovesPosition(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, &fakeStore{})

	_, err := l.Buy(ctx, "NVDA", 3, d("100"))
	require.NoError(t, err)
	_, err = l.Sell(ctx, "NVDA", 3, d("90"))
	require.NoError(t, err)

	assert.Empty(t, l.Positions())
	assert.True(t, l.State().RealizedPnL.Equal(d("-30")))
}

func TestSell_OversellLeavesLedgerUnchanged(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	l := openLedger(t, store)

	_, err := l.Buy(ctx, "AAPL", 10, d("150"))
	require.NoError(t, err)
	_, err = l.Sell(ctx, "AAPL", 5, d("180"))
	require.NoError(t, err)

	before := l.State()
	saves := store.saves
	_, err = l.Sell(ctx, "AAPL", 6, d("180"))
	require.ErrorIs(t, err, ErrInsufficientPosition)
	assert.True(t, before.Equal(l.State()))
	assert.Equal(t, saves, store.saves)

	_, err = l.Sell(ctx, "TSLA", 1, d("10"))
	require.ErrorIs(t, err, ErrInsufficientPosition)
}

func TestBuy_InsufficientFunds(t *testing.T) {
	l := openLedger(t, &fakeStore{}, WithStartingCash(d("1000")))

	_, err := l.Buy(context.Background(), "AAPL", 7, d("150"))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, l.Cash().Equal(d("1000")))
	assert.Empty(t, l.History())

	// Spending exactly all cash is allowed.
	_, err = l.Buy(context.Background(), "AAPL", 4, d("250"))
	require.NoError(t, err)
	assert.True(t, l.Cash().IsZero())
}

func TestOrders_InvalidInput(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, &fakeStore{})

	tests := []struct {
		name   string
		symbol string
		qty    int64
		price  string
	}{
		{"zero quantity", "AAPL", 0, "10"},
		{"negative quantity", "AAPL", -1, "10"},
		{"zero price", "AAPL", 1, "0"},
		{"negative price", "AAPL", 1, "-5"},
		{"blank symbol", "  ", 1, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Buy(ctx, tt.symbol, tt.qty, d(tt.price))
			require.ErrorIs(t, err, ErrInvalidOrder)
			_, err = l.Sell(ctx, tt.symbol, tt.qty, d(tt.price))
			require.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
	assert.Empty(t, l.History())
}

func TestPersistenceFailure_IsWarningWithoutRollback(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	l := openLedger(t, store)

	store.saveErr = errors.New("disk full")
	trade, err := l.Buy(ctx, "AAPL", 1, d("100"))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrPersistence)

	var pw *PersistenceWarning
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, "buy", pw.Op)
	assert.NotEmpty(t, trade.ID, "the committed trade is still returned")
	assert.True(t, l.Cash().Equal(d("99900")), "in-memory mutation is kept")
	assert.Len(t, l.History(), 1)
}

func TestExecutor_FillPriceRecheckedAgainstCash(t *testing.T) {
	l := openLedger(t, &fakeStore{}, WithStartingCash(d("1000")), WithExecutor(&fixedExecutor{price: d("200")}))

	_, err := l.Buy(context.Background(), "AAPL", 6, d("150"))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, l.Cash().Equal(d("1000")))

	trade, err := l.Buy(context.Background(), "AAPL", 5, d("150"))
	require.NoError(t, err)
	assert.True(t, trade.Price.Equal(d("200")), "trade books the fill price")
	assert.Equal(t, "fixed", trade.Executor)
}

func TestExecutor_Failure(t *testing.T) {
	l := openLedger(t, &fakeStore{}, WithExecutor(&fixedExecutor{err: errors.New("venue closed")}))

	_, err := l.Buy(context.Background(), "AAPL", 1, d("10"))
	require.ErrorIs(t, err, ErrExecution)
	assert.Empty(t, l.History())
}

func TestValuation(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, &fakeStore{})

	_, err := l.Buy(ctx, "AAPL", 10, d("150"))
	require.NoError(t, err)
	_, err = l.Buy(ctx, "MSFT", 2, d("300"))
	require.NoError(t, err)

	v := l.Valuation(map[string]decimal.Decimal{"AAPL": d("160")})
	require.Len(t, v.Warnings, 1)
	assert.ErrorIs(t, v.Warnings[0], ErrMissingPriceData)
	var mp *MissingPriceError
	require.ErrorAs(t, v.Warnings[0], &mp)
	assert.Equal(t, "MSFT", mp.Symbol)

	require.Len(t, v.Positions, 1)
	assert.True(t, v.Cash.Equal(d("97900")))
	assert.True(t, v.MarketValue.Equal(d("1600")))
	assert.True(t, v.UnrealizedPnL.Equal(d("100")))
	assert.True(t, v.Equity.Equal(d("99500")))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	l := openLedger(t, store)

	_, err := l.Buy(ctx, "AAPL", 1, d("100"))
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, d("5000")))

	assert.True(t, l.Cash().Equal(d("5000")))
	assert.Empty(t, l.History())
	assert.Empty(t, l.Positions())
	assert.True(t, store.state.StartingCash.Equal(d("5000")))

	require.ErrorIs(t, l.Reset(ctx, d("0")), ErrInvalidOrder)
}

func TestConcurrentOrders_KeepCashIdentity(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, &fakeStore{}, WithStartingCash(d("10000")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%3 == 0 {
				_, _ = l.Sell(ctx, "AAPL", 1, d("101"))
				return
			}
			_, _ = l.Buy(ctx, "AAPL", 1, d("100"))
		}(i)
	}
	wg.Wait()

	state := l.State()
	require.NoError(t, state.Verify())
	assert.False(t, state.Cash.IsNegative())
}

func TestPositions_SortedBySymbol(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, &fakeStore{})
	for _, s := range []string{"TSLA", "AAPL", "msft"} {
		_, err := l.Buy(ctx, s, 1, d("10"))
		require.NoError(t, err)
	}
	var got []string
	for _, p := range l.Positions() {
		got = append(got, p.Symbol)
	}
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, got)
}
