package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSeries is returned when a price series violates ordering or value constraints.
var ErrInvalidSeries = errors.New("invalid price series")

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries holds the ordered bar history of one symbol.
type PriceSeries struct {
	Symbol    string
	Bars      []OHLCV
	FetchedAt time.Time
}

// Range bounds a history request. A zero To means "up to now".
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range, both ends inclusive.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int { return len(s.Bars) }

// Last returns the most recent bar.
func (s *PriceSeries) Last() (OHLCV, bool) {
	if len(s.Bars) == 0 {
		return OHLCV{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Closes extracts the close prices in bar order.
func (s *PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Validate checks that timestamps are strictly increasing and prices are sane.
func (s *PriceSeries) Validate() error {
	if len(s.Bars) == 0 {
		return fmt.Errorf("%w: %s has no bars", ErrInvalidSeries, s.Symbol)
	}
	for i, b := range s.Bars {
		if b.Close <= 0 || b.Open <= 0 || b.High <= 0 || b.Low <= 0 {
			return fmt.Errorf("%w: %s bar %d has non-positive price", ErrInvalidSeries, s.Symbol, i)
		}
		if b.High < b.Low {
			return fmt.Errorf("%w: %s bar %d has high below low", ErrInvalidSeries, s.Symbol, i)
		}
		if i > 0 && !b.Time.After(s.Bars[i-1].Time) {
			return fmt.Errorf("%w: %s bar %d timestamp %s not after %s",
				ErrInvalidSeries, s.Symbol, i, b.Time.Format(time.RFC3339), s.Bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}
