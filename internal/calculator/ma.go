package calculator

import (
	"fmt"

	"BotInvest/internal/model"
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(prices) < period {
		return 0, fmt.Errorf("%w: SMA(%d) needs %d prices, have %d", ErrInsufficientData, period, period, len(prices))
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// CalculateSMAs computes one SMA per window over the bar closes.
// Windows longer than the series are absent from the result.
func CalculateSMAs(bars []model.OHLCV, windows []int) (map[int]float64, error) {
	closes := extractCloses(bars)
	out := make(map[int]float64, len(windows))
	for _, w := range windows {
		v, err := CalculateSMA(closes, w)
		if err != nil {
			if w <= 0 {
				return nil, err
			}
			continue
		}
		out[w] = v
	}
	return out, nil
}

func extractCloses(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
