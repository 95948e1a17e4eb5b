package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"BotInvest/internal/ledger"
	"BotInvest/internal/model"
	"BotInvest/internal/screener"
)

func ptr(v float64) *float64 { return &v }

func TestFormatScreening(t *testing.T) {
	res := &screener.Result{
		RunID:     "0123456789abcdef",
		StartedAt: time.Now(),
		Duration:  2 * time.Second,
		Universe:  []string{"AAPL", "MSFT", "BAD"},
		LongTerm: []model.Opportunity{{
			Symbol: "AAPL", Tag: model.TagLongTerm, Score: 0.42, Reason: "uptrend",
			Snapshot: model.IndicatorSnapshot{Close: 190.5, RSI: ptr(58)},
		}},
		Watch:  []model.Opportunity{{Symbol: "MSFT", Tag: model.TagNone}},
		Errors: []screener.SymbolError{{Symbol: "BAD", Err: errors.New("no data")}},
	}

	out := FormatScreening(res)
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "Long-term (1)")
	assert.Contains(t, out, "Short-term (0)")
	assert.Contains(t, out, "Watch (1)")
	assert.Contains(t, out, "+0.420")
	assert.Contains(t, out, "BAD: no data")
	assert.Less(t, strings.Index(out, "AAPL"), strings.Index(out, "MSFT"))
}

func TestFormatAnalysis(t *testing.T) {
	a := &screener.Analysis{
		Bars: 120,
		Snapshot: model.IndicatorSnapshot{
			Symbol: "AAPL", Close: 100, RSI: ptr(35.5),
			SMA: map[int]float64{60: 95, 20: 98},
		},
		Opportunities: []model.Opportunity{{
			Tag: model.TagShortTerm, Score: 0.3,
			Factors: []model.FactorScore{{Name: "oversold", Commentary: "RSI 35.5", RawScore: 0.5, Weight: 0.6, Weighted: 0.3}},
		}},
	}
	out := FormatAnalysis(a)
	assert.Contains(t, out, "120 bars")
	assert.Contains(t, out, "35.50")
	assert.Contains(t, out, "ATR:        n/a")
	assert.Less(t, strings.Index(out, "SMA20"), strings.Index(out, "SMA60"))
	assert.Contains(t, out, "oversold(RSI 35.5)")
}

func TestFormatPortfolio(t *testing.T) {
	v := &ledger.Valuation{
		AsOf: time.Now(),
		Cash: decimal.RequireFromString("98500"),
		Positions: []ledger.PositionValue{{
			Symbol: "AAPL", Quantity: 10,
			AvgCost:       decimal.RequireFromString("150"),
			Price:         decimal.RequireFromString("160"),
			MarketValue:   decimal.RequireFromString("1600"),
			UnrealizedPnL: decimal.RequireFromString("100"),
		}},
		MarketValue:   decimal.RequireFromString("1600"),
		UnrealizedPnL: decimal.RequireFromString("100"),
		Equity:        decimal.RequireFromString("100100"),
		Warnings:      []error{&ledger.MissingPriceError{Symbol: "MSFT"}},
	}
	out := FormatPortfolio(v)
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "+100.00")
	assert.Contains(t, out, "Equity:       100100.00")
	assert.Contains(t, out, "warning:")
	assert.Contains(t, out, "MSFT")

	empty := FormatPortfolio(&ledger.Valuation{AsOf: time.Now()})
	assert.Contains(t, empty, "No open positions.")
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "No trades.\n", FormatHistory(nil))

	trades := []model.Trade{
		{Symbol: "AAPL", Side: model.SideBuy, Quantity: 10, Price: decimal.NewFromInt(150), CashDelta: decimal.NewFromInt(-1500), Executor: "paper", Timestamp: time.Now()},
		{Symbol: "AAPL", Side: model.SideSell, Quantity: 5, Price: decimal.NewFromInt(160), CashDelta: decimal.NewFromInt(800), RealizedPnL: decimal.NewFromInt(50), Executor: "paper", Timestamp: time.Now()},
	}
	out := FormatHistory(trades)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "-1500.00")
	assert.Contains(t, lines[2], "+50.00")

	assert.Equal(t, "SELL 5 AAPL @ 160.00, cash +800.00, realized +50.00", FormatTrade(trades[1]))
	assert.Equal(t, "BUY 10 AAPL @ 150.00, cash -1500.00", FormatTrade(trades[0]))
}
