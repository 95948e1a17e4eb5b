package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"BotInvest/internal/model"
)

// Collector resolves a symbol to a validated price series over a trailing window.
type Collector struct {
	Fetcher  Fetcher
	Lookback time.Duration
	Now      func() time.Time
	logger   *zap.Logger
}

// NewCollector creates a new Collector requesting lookbackDays of history.
func NewCollector(fetcher Fetcher, lookbackDays int, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		Fetcher:  fetcher,
		Lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		Now:      time.Now,
		logger:   logger,
	}
}

// Collect fetches and validates history for symbol.
func (c *Collector) Collect(ctx context.Context, symbol string) (*model.PriceSeries, error) {
	symbol = NormalizeTicker(symbol)
	now := c.Now().UTC()
	r := model.Range{To: now}
	if c.Lookback > 0 {
		r.From = now.Add(-c.Lookback)
	}

	series, err := c.Fetcher.FetchSeries(ctx, symbol, r)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	c.logger.Debug("series collected",
		zap.String("symbol", symbol),
		zap.String("source", c.Fetcher.Name()),
		zap.Int("bars", series.Len()))
	return series, nil
}

// LatestCloses returns the most recent close for each symbol. Symbols that
// cannot be fetched are left out of the map and reported in errs.
func (c *Collector) LatestCloses(ctx context.Context, symbols []string) (map[string]decimal.Decimal, []error) {
	prices := make(map[string]decimal.Decimal, len(symbols))
	var errs []error
	for _, sym := range symbols {
		series, err := c.Collect(ctx, sym)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		last, _ := series.Last()
		prices[sym] = decimal.NewFromFloat(last.Close)
	}
	return prices, errs
}
