package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"BotInvest/internal/model"
	"BotInvest/internal/observability"
)

// DefaultStartingCash is used when no persisted state exists.
var DefaultStartingCash = decimal.NewFromInt(100000)

// Store persists the full ledger state. Load returns (nil, nil) when nothing
// has been saved yet.
type Store interface {
	Load(ctx context.Context) (*model.LedgerState, error)
	Save(ctx context.Context, state *model.LedgerState) error
}

// Ledger is a paper-trading account. All operations are serialised; the
// validate, execute, apply and persist steps of an order run as one unit.
type Ledger struct {
	mu       sync.Mutex
	state    *model.LedgerState
	store    Store
	executor Executor
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	startingCash decimal.Decimal
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithExecutor(e Executor) Option { return func(l *Ledger) { l.executor = e } }

func WithLogger(z *zap.Logger) Option { return func(l *Ledger) { l.logger = z } }

func WithMetrics(m *observability.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// WithStartingCash sets the cash for a fresh ledger. Ignored when state is loaded.
func WithStartingCash(c decimal.Decimal) Option { return func(l *Ledger) { l.startingCash = c } }

// Open loads the ledger from store, or creates and saves a fresh one.
func Open(ctx context.Context, store Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:        store,
		executor:     &PaperExecutor{},
		logger:       zap.NewNop(),
		now:          time.Now,
		startingCash: DefaultStartingCash,
	}
	for _, opt := range opts {
		opt(l)
	}
	if !l.startingCash.IsPositive() {
		return nil, fmt.Errorf("starting cash must be positive, got %s", l.startingCash)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if state != nil {
		if err := state.Verify(); err != nil {
			return nil, fmt.Errorf("loaded ledger is inconsistent: %w", err)
		}
		l.state = state
		l.logger.Info("ledger loaded",
			zap.String("cash", state.Cash.String()),
			zap.Int("positions", len(state.Positions)),
			zap.Int("trades", len(state.Trades)))
		return l, nil
	}

	l.state = model.NewLedgerState(l.startingCash)
	if err := l.save(ctx); err != nil {
		return nil, fmt.Errorf("save fresh ledger: %w", err)
	}
	l.logger.Info("ledger initialised", zap.String("starting_cash", l.startingCash.String()))
	return l, nil
}

// Buy debits cash and opens or adds to a position.
func (l *Ledger) Buy(ctx context.Context, symbol string, qty int64, price decimal.Decimal) (model.Trade, error) {
	return l.execute(ctx, Order{Symbol: symbol, Side: model.SideBuy, Quantity: qty, Price: price})
}

// Sell credits cash, reduces a position and realises P&L against its average cost.
func (l *Ledger) Sell(ctx context.Context, symbol string, qty int64, price decimal.Decimal) (model.Trade, error) {
	return l.execute(ctx, Order{Symbol: symbol, Side: model.SideSell, Quantity: qty, Price: price})
}

func (l *Ledger) execute(ctx context.Context, o Order) (trade model.Trade, err error) {
	o.Symbol = strings.ToUpper(strings.TrimSpace(o.Symbol))
	ctx, span := observability.StartSpan(ctx, "ledger."+string(o.Side),
		attribute.String("symbol", o.Symbol),
		attribute.Int64("quantity", o.Quantity),
		attribute.String("price", o.Price.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			var pw *PersistenceWarning
			if !errors.As(err, &pw) {
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.check(o, o.Price); err != nil {
		l.reject(o, err)
		return model.Trade{}, err
	}

	fill, err := l.executor.Execute(ctx, o)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrExecution, l.executor.Name(), err)
		l.reject(o, err)
		return model.Trade{}, err
	}
	if fill.Quantity != o.Quantity || !fill.Price.IsPositive() {
		err := fmt.Errorf("%w: %s reported fill %d @ %s for order %d", ErrExecution, l.executor.Name(), fill.Quantity, fill.Price, o.Quantity)
		l.reject(o, err)
		return model.Trade{}, err
	}
	// The venue may fill at a different price than requested.
	if err := l.check(o, fill.Price); err != nil {
		l.reject(o, err)
		return model.Trade{}, err
	}

	trade = l.apply(o, fill)
	l.metrics.RecordTrade(string(trade.Side), l.state.Cash.InexactFloat64())
	l.logger.Info("trade executed",
		zap.String("id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", string(trade.Side)),
		zap.Int64("quantity", trade.Quantity),
		zap.String("price", trade.Price.String()),
		zap.String("cash", l.state.Cash.String()))

	if err := l.save(ctx); err != nil {
		return trade, l.persistWarning(string(o.Side), err)
	}
	return trade, nil
}

// check validates o at price against the current state. Caller holds mu.
func (l *Ledger) check(o Order, price decimal.Decimal) error {
	switch {
	case o.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	case o.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, o.Quantity)
	case !price.IsPositive():
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidOrder, price)
	case o.Side != model.SideBuy && o.Side != model.SideSell:
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, o.Side)
	}

	if o.Side == model.SideBuy {
		cost := price.Mul(decimal.NewFromInt(o.Quantity))
		if cost.GreaterThan(l.state.Cash) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost, l.state.Cash)
		}
		return nil
	}

	pos, ok := l.state.Position(o.Symbol)
	if !ok || o.Quantity > pos.Quantity {
		return fmt.Errorf("%w: selling %d %s, holding %d", ErrInsufficientPosition, o.Quantity, o.Symbol, pos.Quantity)
	}
	return nil
}

// apply books a checked fill. It cannot fail. Caller holds mu.
func (l *Ledger) apply(o Order, f Fill) model.Trade {
	qty := decimal.NewFromInt(f.Quantity)
	notional := f.Price.Mul(qty)
	ts := f.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	trade := model.Trade{
		ID:        uuid.NewString(),
		Symbol:    o.Symbol,
		Side:      o.Side,
		Quantity:  f.Quantity,
		Price:     f.Price,
		Timestamp: ts.UTC().Truncate(time.Microsecond),
		Executor:  l.executor.Name(),
	}

	idx := l.positionIndex(o.Symbol)
	switch o.Side {
	case model.SideBuy:
		trade.CashDelta = notional.Neg()
		if idx < 0 {
			l.insertPosition(model.Position{Symbol: o.Symbol, Quantity: f.Quantity, AvgCost: f.Price})
			break
		}
		p := &l.state.Positions[idx]
		oldQty := decimal.NewFromInt(p.Quantity)
		p.AvgCost = oldQty.Mul(p.AvgCost).Add(notional).Div(oldQty.Add(qty))
		p.Quantity += f.Quantity

	case model.SideSell:
		trade.CashDelta = notional
		p := &l.state.Positions[idx]
		realized := f.Price.Sub(p.AvgCost).Mul(qty)
		trade.RealizedPnL = realized
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		p.Quantity -= f.Quantity
		l.state.RealizedPnL = l.state.RealizedPnL.Add(realized)
		if p.Quantity == 0 {
			l.state.Positions = append(l.state.Positions[:idx], l.state.Positions[idx+1:]...)
		}
	}

	l.state.Cash = l.state.Cash.Add(trade.CashDelta)
	l.state.Trades = append(l.state.Trades, trade)
	return trade
}

func (l *Ledger) positionIndex(symbol string) int {
	for i, p := range l.state.Positions {
		if p.Symbol == symbol {
			return i
		}
	}
	return -1
}

func (l *Ledger) insertPosition(p model.Position) {
	i := sort.Search(len(l.state.Positions), func(i int) bool { return l.state.Positions[i].Symbol >= p.Symbol })
	l.state.Positions = append(l.state.Positions, model.Position{})
	copy(l.state.Positions[i+1:], l.state.Positions[i:])
	l.state.Positions[i] = p
}

func (l *Ledger) reject(o Order, err error) {
	reason := "other"
	switch {
	case errors.Is(err, ErrInvalidOrder):
		reason = "invalid_order"
	case errors.Is(err, ErrInsufficientFunds):
		reason = "insufficient_funds"
	case errors.Is(err, ErrInsufficientPosition):
		reason = "insufficient_position"
	case errors.Is(err, ErrExecution):
		reason = "execution"
	}
	l.metrics.RecordRejection(reason)
	l.logger.Warn("order rejected",
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Int64("quantity", o.Quantity),
		zap.String("reason", reason),
		zap.Error(err))
}

func (l *Ledger) persistWarning(op string, err error) error {
	l.metrics.RecordPersistenceFailure()
	l.logger.Error("failed to save ledger state", zap.String("op", op), zap.Error(err))
	return &PersistenceWarning{Op: op, Err: err}
}

// Reset discards all positions and history and restarts with startingCash.
func (l *Ledger) Reset(ctx context.Context, startingCash decimal.Decimal) error {
	if !startingCash.IsPositive() {
		return fmt.Errorf("%w: starting cash must be positive, got %s", ErrInvalidOrder, startingCash)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = model.NewLedgerState(startingCash)
	l.logger.Info("ledger reset", zap.String("starting_cash", startingCash.String()))
	if err := l.save(ctx); err != nil {
		return l.persistWarning("reset", err)
	}
	return nil
}

// History returns a copy of the trade log in execution order.
func (l *Ledger) History() []model.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Trade{}, l.state.Trades...)
}

// Positions returns a copy of the open positions sorted by symbol.
func (l *Ledger) Positions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Position{}, l.state.Positions...)
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Cash
}

// State returns a deep copy of the full ledger state.
func (l *Ledger) State() *model.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// ExecutorName reports the active execution backend.
func (l *Ledger) ExecutorName() string { return l.executor.Name() }

func (l *Ledger) save(ctx context.Context) error {
	l.state.UpdatedAt = l.now().UTC().Truncate(time.Microsecond)
	return l.store.Save(ctx, l.state.Clone())
}
