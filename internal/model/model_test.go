package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func bar(day int, close float64) OHLCV {
	return OHLCV{
		Time:  time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Open:  close,
		High:  close + 1,
		Low:   close - 1,
		Close: close,
	}
}

func TestPriceSeriesValidate(t *testing.T) {
	tests := []struct {
		name    string
		bars    []OHLCV
		wantErr bool
	}{
		{"ok", []OHLCV{bar(1, 10), bar(2, 11), bar(3, 12)}, false},
		{"empty", nil, true},
		{"duplicate timestamp", []OHLCV{bar(1, 10), bar(1, 11)}, true},
		{"decreasing", []OHLCV{bar(2, 10), bar(1, 11)}, true},
		{"non-positive close", []OHLCV{bar(1, 10), {Time: bar(2, 0).Time, Open: 1, High: 1, Low: 1, Close: 0}}, true},
		{"high below low", []OHLCV{{Time: bar(1, 0).Time, Open: 5, High: 4, Low: 6, Close: 5}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &PriceSeries{Symbol: "TEST", Bars: tt.bars}
			err := s.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSeries) {
					t.Fatalf("expected ErrInvalidSeries, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{From: bar(2, 1).Time, To: bar(4, 1).Time}
	if r.Contains(bar(1, 1).Time) {
		t.Error("day 1 should be outside")
	}
	if !r.Contains(bar(2, 1).Time) || !r.Contains(bar(4, 1).Time) {
		t.Error("bounds should be inclusive")
	}
	if !(Range{}).Contains(time.Now()) {
		t.Error("zero range should contain everything")
	}
}

func TestLedgerStateVerify(t *testing.T) {
	s := NewLedgerState(decimal.NewFromInt(1000))
	s.Cash = decimal.NewFromInt(800)
	s.Trades = append(s.Trades, Trade{Symbol: "AAPL", Side: SideBuy, Quantity: 2, Price: decimal.NewFromInt(100), CashDelta: decimal.NewFromInt(-200)})
	s.Positions = append(s.Positions, Position{Symbol: "AAPL", Quantity: 2, AvgCost: decimal.NewFromInt(100)})
	if err := s.Verify(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Cash = decimal.NewFromInt(801)
	if err := s.Verify(); err == nil {
		t.Fatal("expected identity violation")
	}
}

func TestLedgerStateVerify_Positions(t *testing.T) {
	aapl := Position{Symbol: "AAPL", Quantity: 5, AvgCost: decimal.NewFromInt(100)}
	msft := Position{Symbol: "MSFT", Quantity: 1, AvgCost: decimal.NewFromInt(300)}
	free := aapl
	free.AvgCost = decimal.Zero

	tests := []struct {
		name      string
		positions []Position
		wantErr   bool
	}{
		{"sorted unique", []Position{aapl, msft}, false},
		{"duplicate symbol", []Position{aapl, aapl}, true},
		{"out of order", []Position{msft, aapl}, true},
		{"zero average cost", []Position{free}, true},
		{"empty symbol", []Position{{Quantity: 1, AvgCost: decimal.NewFromInt(1)}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLedgerState(decimal.NewFromInt(1000))
			s.Positions = tt.positions
			err := s.Verify()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLedgerStateCloneIsDeep(t *testing.T) {
	s := NewLedgerState(decimal.NewFromInt(1000))
	s.Positions = append(s.Positions, Position{Symbol: "AAPL", Quantity: 1})
	c := s.Clone()
	c.Positions[0].Quantity = 5
	if s.Positions[0].Quantity != 1 {
		t.Fatal("clone shares position storage")
	}
}
