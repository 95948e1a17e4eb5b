package calculator

import (
	"fmt"
	"math"

	"BotInvest/internal/model"
)

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(bar model.OHLCV, prevClose float64) float64 {
	return math.Max(bar.High-bar.Low, math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
}

// CalculateATR computes the Wilder-smoothed average true range.
// Requires at least period+1 bars since the first true range needs a previous close.
func CalculateATR(bars []model.OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(bars) < period+1 {
		return 0, fmt.Errorf("%w: ATR(%d) needs %d bars, have %d", ErrInsufficientData, period, period+1, len(bars))
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += TrueRange(bars[i], bars[i-1].Close)
	}
	atr /= float64(period)

	for i := period + 1; i < len(bars); i++ {
		tr := TrueRange(bars[i], bars[i-1].Close)
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, nil
}
