package calculator

import (
	"fmt"
	"math"
	"sort"

	"BotInvest/internal/model"
)

// Levels is the nearest support below and resistance above the latest close.
// A nil field means no qualifying level exists in the lookback window.
type Levels struct {
	Support    *float64
	Resistance *float64
}

// CalculateLevels finds pivot lows and highs over the trailing lookback window,
// merges candidates within tolerancePct percent of each other, and picks the
// nearest level strictly below and strictly above the latest close.
//
// A bar is a pivot when its low (high) is the extreme of the span bars on each
// side. The window's absolute low and high are always candidates so a series
// trading at its extremes still yields a level on the other side.
func CalculateLevels(bars []model.OHLCV, lookback, span int, tolerancePct float64) (Levels, error) {
	if lookback <= 0 || span <= 0 {
		return Levels{}, ErrInvalidPeriod
	}
	if len(bars) < 2*span+1 {
		return Levels{}, fmt.Errorf("%w: levels need %d bars, have %d", ErrInsufficientData, 2*span+1, len(bars))
	}

	start := len(bars) - lookback
	if start < 0 {
		start = 0
	}
	window := bars[start:]
	closePrice := bars[len(bars)-1].Close

	candidates := windowExtremes(window)
	candidates = append(candidates, pivots(window, span)...)
	levels := mergeLevels(candidates, tolerancePct)

	var out Levels
	for i := range levels {
		lv := levels[i]
		switch {
		case lv < closePrice-Epsilon:
			if out.Support == nil || lv > *out.Support {
				out.Support = &levels[i]
			}
		case lv > closePrice+Epsilon:
			if out.Resistance == nil || lv < *out.Resistance {
				out.Resistance = &levels[i]
			}
		}
	}
	return out, nil
}

func windowExtremes(window []model.OHLCV) []float64 {
	high := math.Inf(-1)
	low := math.Inf(1)
	for _, b := range window {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return []float64{low, high}
}

func pivots(window []model.OHLCV, span int) []float64 {
	var out []float64
	for i := span; i < len(window)-span; i++ {
		isLow, isHigh := true, true
		for j := i - span; j <= i+span; j++ {
			if j == i {
				continue
			}
			if window[j].Low < window[i].Low-Epsilon {
				isLow = false
			}
			if window[j].High > window[i].High+Epsilon {
				isHigh = false
			}
		}
		if isLow {
			out = append(out, window[i].Low)
		}
		if isHigh {
			out = append(out, window[i].High)
		}
	}
	return out
}

// mergeLevels clusters sorted prices: a price joins the current cluster when
// it lies within tolerancePct percent of the cluster mean. Each cluster
// collapses to its mean.
func mergeLevels(prices []float64, tolerancePct float64) []float64 {
	if len(prices) == 0 {
		return nil
	}
	sorted := append([]float64{}, prices...)
	sort.Float64s(sorted)

	var out []float64
	sum, n := sorted[0], 1
	for _, p := range sorted[1:] {
		mean := sum / float64(n)
		if p-mean <= mean*tolerancePct/100+Epsilon {
			sum += p
			n++
			continue
		}
		out = append(out, mean)
		sum, n = p, 1
	}
	return append(out, sum/float64(n))
}
