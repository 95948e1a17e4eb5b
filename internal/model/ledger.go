package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is an open holding. Quantity is always positive while held.
type Position struct {
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// Trade is an executed fill. Trades are append-only.
type Trade struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	CashDelta   decimal.Decimal `json:"cash_delta"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"` // sells only
	Timestamp   time.Time       `json:"timestamp"`
	Executor    string          `json:"executor"`
}

// Amount is the absolute notional of the trade.
func (t Trade) Amount() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// LedgerState is the persisted form of the paper-trading account.
// Positions are kept sorted by symbol and Trades in execution order.
type LedgerState struct {
	StartingCash decimal.Decimal `json:"starting_cash"`
	Cash         decimal.Decimal `json:"cash"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	Positions    []Position      `json:"positions"`
	Trades       []Trade         `json:"trades"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewLedgerState returns a fresh account holding only cash.
func NewLedgerState(startingCash decimal.Decimal) *LedgerState {
	return &LedgerState{
		StartingCash: startingCash,
		Cash:         startingCash,
		Positions:    []Position{},
		Trades:       []Trade{},
	}
}

// Clone returns a deep copy.
func (s *LedgerState) Clone() *LedgerState {
	if s == nil {
		return nil
	}
	out := *s
	out.Positions = append([]Position{}, s.Positions...)
	out.Trades = append([]Trade{}, s.Trades...)
	return &out
}

// Verify checks the accounting identities of the state.
func (s *LedgerState) Verify() error {
	if s.Cash.IsNegative() {
		return fmt.Errorf("cash is negative: %s", s.Cash)
	}
	sum := s.StartingCash
	for _, t := range s.Trades {
		sum = sum.Add(t.CashDelta)
	}
	if !sum.Equal(s.Cash) {
		return fmt.Errorf("cash %s does not equal starting cash plus deltas %s", s.Cash, sum)
	}
	for i, p := range s.Positions {
		if p.Symbol == "" {
			return fmt.Errorf("position %d has an empty symbol", i)
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("position %s has non-positive quantity %d", p.Symbol, p.Quantity)
		}
		if !p.AvgCost.IsPositive() {
			return fmt.Errorf("position %s has non-positive average cost %s", p.Symbol, p.AvgCost)
		}
		if i > 0 {
			prev := s.Positions[i-1].Symbol
			if prev == p.Symbol {
				return fmt.Errorf("duplicate position %s", p.Symbol)
			}
			if prev > p.Symbol {
				return fmt.Errorf("positions not sorted by symbol: %s before %s", prev, p.Symbol)
			}
		}
	}
	return nil
}

// Position returns the open position for symbol.
func (s *LedgerState) Position(symbol string) (Position, bool) {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// Equal compares two states by value. Decimals compare numerically and
// timestamps by instant, so representations that differ only in scale or
// location are equal.
func (s *LedgerState) Equal(o *LedgerState) bool {
	if s == nil || o == nil {
		return s == o
	}
	if !s.StartingCash.Equal(o.StartingCash) || !s.Cash.Equal(o.Cash) || !s.RealizedPnL.Equal(o.RealizedPnL) {
		return false
	}
	if len(s.Positions) != len(o.Positions) || len(s.Trades) != len(o.Trades) {
		return false
	}
	for i, p := range s.Positions {
		q := o.Positions[i]
		if p.Symbol != q.Symbol || p.Quantity != q.Quantity ||
			!p.AvgCost.Equal(q.AvgCost) || !p.RealizedPnL.Equal(q.RealizedPnL) {
			return false
		}
	}
	for i, t := range s.Trades {
		u := o.Trades[i]
		if t.ID != u.ID || t.Symbol != u.Symbol || t.Side != u.Side || t.Quantity != u.Quantity ||
			!t.Price.Equal(u.Price) || !t.CashDelta.Equal(u.CashDelta) || !t.RealizedPnL.Equal(u.RealizedPnL) ||
			!t.Timestamp.Equal(u.Timestamp) || t.Executor != u.Executor {
			return false
		}
	}
	return true
}
