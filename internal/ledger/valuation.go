package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PositionValue is one open position marked to a current price.
type PositionValue struct {
	Symbol        string
	Quantity      int64
	AvgCost       decimal.Decimal
	Price         decimal.Decimal
	CostBasis     decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
}

// Valuation marks the ledger to market. Positions without a price are listed
// in Warnings and excluded from every total.
type Valuation struct {
	AsOf          time.Time
	Cash          decimal.Decimal
	Positions     []PositionValue
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	Equity        decimal.Decimal
	Warnings      []error
}

// Valuation values open positions at prices. A missing or non-positive price
// yields a *MissingPriceError for that symbol only.
func (l *Ledger) Valuation(prices map[string]decimal.Decimal) Valuation {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := Valuation{
		AsOf:        l.now().UTC(),
		Cash:        l.state.Cash,
		RealizedPnL: l.state.RealizedPnL,
	}
	for _, p := range l.state.Positions {
		price, ok := prices[p.Symbol]
		if !ok || !price.IsPositive() {
			v.Warnings = append(v.Warnings, &MissingPriceError{Symbol: p.Symbol})
			l.logger.Warn("position excluded from valuation", zap.String("symbol", p.Symbol))
			continue
		}
		qty := decimal.NewFromInt(p.Quantity)
		pv := PositionValue{
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			AvgCost:       p.AvgCost,
			Price:         price,
			CostBasis:     p.AvgCost.Mul(qty),
			MarketValue:   price.Mul(qty),
			UnrealizedPnL: price.Sub(p.AvgCost).Mul(qty),
			RealizedPnL:   p.RealizedPnL,
		}
		v.Positions = append(v.Positions, pv)
		v.MarketValue = v.MarketValue.Add(pv.MarketValue)
		v.UnrealizedPnL = v.UnrealizedPnL.Add(pv.UnrealizedPnL)
	}
	v.Equity = v.Cash.Add(v.MarketValue)

	l.metrics.SetEquity(v.Cash.InexactFloat64(), v.Equity.InexactFloat64())
	return v
}
