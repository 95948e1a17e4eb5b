package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BotInvest/internal/collector"
	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
	"BotInvest/internal/observability"
	"BotInvest/internal/screener"
	"BotInvest/internal/store"
)

type fakeScreener struct {
	calls    int
	universe []string
	err      error
}

func (f *fakeScreener) Run(_ context.Context, universe []string) (*screener.Result, error) {
	f.calls++
	f.universe = universe
	return &screener.Result{
		RunID:     "run",
		StartedAt: time.Now(),
		Universe:  universe,
		LongTerm:  []model.Opportunity{{Symbol: universe[0], Tag: model.TagLongTerm}},
	}, f.err
}

type fakeRecorder struct {
	mu       sync.Mutex
	runs     []*screener.Result
	equities []*ledger.Valuation
	err      error
}

func (r *fakeRecorder) RecordScreening(_ context.Context, res *screener.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, res)
	return r.err
}

func (r *fakeRecorder) RecordEquity(_ context.Context, v *ledger.Valuation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.equities = append(r.equities, v)
	return r.err
}

func (r *fakeRecorder) Close() error { return nil }

func newFixture(t *testing.T) (*Scheduler, *fakeScreener, *fakeRecorder, *observability.Metrics) {
	t.Helper()
	ctx := context.Background()

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	fetcher := &collector.MockFetcher{
		Series: map[string][]model.OHLCV{
			"AAPL": {
				{Time: day, Open: 150, High: 152, Low: 149, Close: 151},
				{Time: day.AddDate(0, 0, 1), Open: 151, High: 161, Low: 150, Close: 160},
			},
		},
		Errors: map[string]error{"MSFT": errors.New("offline")},
	}
	col := collector.NewCollector(fetcher, 0, nil)

	m := observability.NewMetrics(prometheus.NewRegistry(), "test")
	l, err := ledger.Open(ctx, store.NewMemoryStore(), ledger.WithMetrics(m))
	require.NoError(t, err)
	_, err = l.Buy(ctx, "AAPL", 10, decimal.NewFromInt(150))
	require.NoError(t, err)
	_, err = l.Buy(ctx, "MSFT", 1, decimal.NewFromInt(300))
	require.NoError(t, err)

	scr := &fakeScreener{}
	rec := &fakeRecorder{}
	s := NewScheduler(ctx, scr, col, l, rec, []string{"AAPL", "MSFT"}, m, nil)
	return s, scr, rec, m
}

func TestRunScreeningNow(t *testing.T) {
	s, scr, rec, _ := newFixture(t)
	var seen *screener.Result
	s.OnScreening = func(r *screener.Result) { seen = r }

	res, err := s.RunScreeningNow()
	require.NoError(t, err)
	assert.Equal(t, 1, scr.calls)
	assert.Equal(t, []string{"AAPL", "MSFT"}, scr.universe)
	require.Len(t, rec.runs, 1)
	assert.Same(t, res, rec.runs[0])
	assert.Same(t, res, seen)
}

func TestRunScreeningNow_RecorderFailureIsNotFatal(t *testing.T) {
	s, _, rec, _ := newFixture(t)
	rec.err = errors.New("disk full")

	res, err := s.RunScreeningNow()
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestScreeningTask_RecordsJobMetric(t *testing.T) {
	s, scr, _, m := newFixture(t)
	s.screeningTask()
	scr.err = context.Canceled
	s.screeningTask()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues(jobScreening, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues(jobScreening, "error")))
}

func TestSnapshotNow(t *testing.T) {
	s, _, rec, m := newFixture(t)

	v, err := s.SnapshotNow()
	require.NoError(t, err)

	// AAPL marked at 160; MSFT has no price and is excluded with a warning.
	require.Len(t, v.Positions, 1)
	assert.Equal(t, "AAPL", v.Positions[0].Symbol)
	assert.True(t, v.Positions[0].UnrealizedPnL.Equal(decimal.NewFromInt(100)))
	require.Len(t, v.Warnings, 1)
	assert.ErrorIs(t, v.Warnings[0], ledger.ErrMissingPriceData)

	require.Len(t, rec.equities, 1)
	assert.True(t, v.Cash.Equal(decimal.NewFromInt(98200)))
	assert.Equal(t, v.Equity.InexactFloat64(), testutil.ToFloat64(m.LedgerEquity))
}

func TestSnapshotTask_RecorderError(t *testing.T) {
	s, _, rec, m := newFixture(t)
	rec.err = errors.New("locked")
	s.snapshotTask()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues(jobSnapshot, "error")))
}

func TestRegisterAll(t *testing.T) {
	s, _, _, _ := newFixture(t)
	require.Error(t, s.RegisterAll("not a cron", ""))

	s, _, _, _ = newFixture(t)
	require.NoError(t, s.RegisterAll("0 30 8 * * 1-5", "0 0 22 * * 1-5"))
	assert.Len(t, s.Cron.Entries(), 2)

	s.Start()
	s.Stop()
}
