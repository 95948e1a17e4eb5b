package collector

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"BotInvest/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// Symbols without explicit bars get a deterministic synthetic series derived
// from the symbol name.
type MockFetcher struct {
	Price  float64                  // base price for synthetic series
	Count  int                      // synthetic bar count, default 120
	End    time.Time                // last synthetic bar date, default today (UTC)
	Series map[string][]model.OHLCV // explicit bars per symbol
	Errors map[string]error         // injected failures per symbol
	Delay  time.Duration            // simulated latency, honours ctx
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchSeries(ctx context.Context, symbol string, r model.Range) (*model.PriceSeries, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := m.Errors[symbol]; ok {
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, symbol, err)
	}

	bars, ok := m.Series[symbol]
	if !ok {
		bars = m.generate(symbol)
	}
	return &model.PriceSeries{
		Symbol:    symbol,
		Bars:      filterRange(bars, r),
		FetchedAt: time.Now(),
	}, nil
}

func (m *MockFetcher) generate(symbol string) []model.OHLCV {
	count := m.Count
	if count <= 0 {
		count = 120
	}
	end := m.End
	if end.IsZero() {
		end = time.Now().UTC().Truncate(24 * time.Hour)
	}
	base := m.Price
	if base <= 0 {
		base = 100
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return generateMockBars(base, count, end, h.Sum32())
}

// generateMockBars builds a trending sine wave whose phase and drift depend on seed.
func generateMockBars(basePrice float64, count int, end time.Time, seed uint32) []model.OHLCV {
	drift := (float64(seed%7) - 3) * 0.001
	phase := float64(seed%360) * math.Pi / 180
	bars := make([]model.OHLCV, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*drift) * (1 + 0.05*math.Sin(phase+float64(i)/8))
		bars[i] = model.OHLCV{
			Time:   end.AddDate(0, 0, -(count - 1 - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

func filterRange(bars []model.OHLCV, r model.Range) []model.OHLCV {
	out := make([]model.OHLCV, 0, len(bars))
	for _, b := range bars {
		if r.Contains(b.Time) {
			out = append(out, b)
		}
	}
	return out
}
