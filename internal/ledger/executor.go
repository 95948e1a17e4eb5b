package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"BotInvest/internal/model"
)

// Order is a validated request handed to an Executor.
type Order struct {
	Symbol   string
	Side     model.Side
	Quantity int64
	Price    decimal.Decimal // limit price supplied by the caller
}

// Fill is an Executor's report of an executed order.
type Fill struct {
	Quantity  int64
	Price     decimal.Decimal
	Timestamp time.Time
}

// Executor routes orders to a venue. The ledger only books what it reports.
type Executor interface {
	Name() string
	Execute(ctx context.Context, o Order) (Fill, error)
}

// PaperExecutor fills every order immediately, in full, at the order price.
type PaperExecutor struct {
	Now func() time.Time
}

func (p *PaperExecutor) Name() string { return "paper" }

func (p *PaperExecutor) Execute(ctx context.Context, o Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return Fill{Quantity: o.Quantity, Price: o.Price, Timestamp: now()}, nil
}
