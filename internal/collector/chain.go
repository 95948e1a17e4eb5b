package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"BotInvest/internal/model"
)

// ChainFetcher tries each source in order and returns the first non-empty series.
type ChainFetcher struct {
	sources []Fetcher
	logger  *zap.Logger
}

// NewChainFetcher builds a fallback chain. A nil logger disables logging.
func NewChainFetcher(logger *zap.Logger, sources ...Fetcher) *ChainFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainFetcher{sources: sources, logger: logger}
}

func (c *ChainFetcher) Name() string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c *ChainFetcher) FetchSeries(ctx context.Context, symbol string, r model.Range) (*model.PriceSeries, error) {
	var errs []error
	for _, src := range c.sources {
		s, err := src.FetchSeries(ctx, symbol, r)
		if err == nil && s != nil && len(s.Bars) > 0 {
			return s, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil {
			err = fmt.Errorf("%s returned no bars", src.Name())
		}
		c.logger.Debug("source failed, trying next",
			zap.String("source", src.Name()), zap.String("symbol", symbol), zap.Error(err))
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, symbol, errors.Join(errs...))
}
