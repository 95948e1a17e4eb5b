package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"BotInvest/internal/model"
)

// CachedFetcher memoises another Fetcher's results for a TTL.
// Cost is counted in bars so MaxCost bounds memory roughly by history length.
type CachedFetcher struct {
	next  Fetcher
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedFetcher wraps next with a ristretto cache.
func NewCachedFetcher(next Fetcher, maxCost int64, ttl time.Duration) (*CachedFetcher, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &CachedFetcher{next: next, cache: c, ttl: ttl}, nil
}

func (c *CachedFetcher) Name() string { return "cached(" + c.next.Name() + ")" }

func (c *CachedFetcher) FetchSeries(ctx context.Context, symbol string, r model.Range) (*model.PriceSeries, error) {
	key := cacheKey(symbol, r)
	if v, ok := c.cache.Get(key); ok {
		if s, ok := v.(*model.PriceSeries); ok {
			return copySeries(s), nil
		}
	}

	s, err := c.next.FetchSeries(ctx, symbol, r)
	if err != nil {
		return nil, err
	}
	cost := int64(len(s.Bars))
	if cost == 0 {
		cost = 1
	}
	c.cache.SetWithTTL(key, copySeries(s), cost, c.ttl)
	c.cache.Wait()
	return s, nil
}

// Close releases the cache's background goroutines.
func (c *CachedFetcher) Close() {
	c.cache.Close()
}

func cacheKey(symbol string, r model.Range) string {
	return fmt.Sprintf("%s|%d|%d", symbol, r.From.Unix(), r.To.Unix())
}

func copySeries(s *model.PriceSeries) *model.PriceSeries {
	out := *s
	out.Bars = append([]model.OHLCV(nil), s.Bars...)
	return &out
}
