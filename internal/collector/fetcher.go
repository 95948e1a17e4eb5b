package collector

import (
	"context"
	"errors"

	"BotInvest/internal/model"
)

// ErrDataUnavailable is returned when a source cannot supply history for a symbol.
// It is transient from the caller's point of view and safe to retry.
var ErrDataUnavailable = errors.New("data unavailable")

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	FetchSeries(ctx context.Context, symbol string, r model.Range) (*model.PriceSeries, error)
	Name() string
}
