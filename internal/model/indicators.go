package model

import "time"

// IndicatorSnapshot holds indicators derived as of the latest bar.
// Nil pointers mean the series was too short for that indicator.
type IndicatorSnapshot struct {
	Symbol     string
	AsOf       time.Time
	Close      float64
	PrevClose  *float64
	RSI        *float64
	SMA        map[int]float64
	PrevSMA    map[int]float64 // SMA per window as of the previous bar
	ATR        *float64
	Support    *float64
	Resistance *float64
}

// SMAFor returns the moving average for window, if it was computed.
func (s *IndicatorSnapshot) SMAFor(window int) (float64, bool) {
	v, ok := s.SMA[window]
	return v, ok
}

// PrevSMAFor returns the moving average for window as of the previous bar.
func (s *IndicatorSnapshot) PrevSMAFor(window int) (float64, bool) {
	v, ok := s.PrevSMA[window]
	return v, ok
}
