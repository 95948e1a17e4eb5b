package calculator

import (
	"errors"
	"fmt"

	"BotInvest/internal/model"
)

// Config selects the indicator periods used for a snapshot.
type Config struct {
	RSIPeriod         int     `yaml:"rsi_period"`
	SMAWindows        []int   `yaml:"sma_windows"`
	ATRPeriod         int     `yaml:"atr_period"`
	LevelLookback     int     `yaml:"level_lookback"`
	PivotSpan         int     `yaml:"pivot_span"`
	MergeTolerancePct float64 `yaml:"merge_tolerance_pct"`
}

// DefaultConfig mirrors the classic daily setup: RSI14, SMA20/60, ATR14.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:         14,
		SMAWindows:        []int{20, 60},
		ATRPeriod:         14,
		LevelLookback:     20,
		PivotSpan:         2,
		MergeTolerancePct: 1.0,
	}
}

// Validate rejects non-positive periods.
func (c Config) Validate() error {
	if c.RSIPeriod <= 0 || c.ATRPeriod <= 0 || c.LevelLookback <= 0 || c.PivotSpan <= 0 {
		return ErrInvalidPeriod
	}
	if len(c.SMAWindows) == 0 {
		return fmt.Errorf("%w: no SMA windows configured", ErrInvalidPeriod)
	}
	for _, w := range c.SMAWindows {
		if w <= 0 {
			return ErrInvalidPeriod
		}
	}
	if c.MergeTolerancePct < 0 {
		return fmt.Errorf("merge tolerance must not be negative")
	}
	return nil
}

// Engine computes indicator snapshots. It holds configuration only and is safe
// for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// MinBars is the number of bars needed for every indicator to be defined,
// including the previous-bar SMA used for crossover detection.
func (e *Engine) MinBars() int {
	n := e.cfg.RSIPeriod + 1
	if e.cfg.ATRPeriod+1 > n {
		n = e.cfg.ATRPeriod + 1
	}
	for _, w := range e.cfg.SMAWindows {
		if w+1 > n {
			n = w + 1
		}
	}
	return n
}

// Snapshot derives all indicators as of the latest bar. Indicators the series
// is too short for are left nil or absent; any other failure is returned.
func (e *Engine) Snapshot(series *model.PriceSeries) (model.IndicatorSnapshot, error) {
	last, ok := series.Last()
	if !ok {
		return model.IndicatorSnapshot{}, fmt.Errorf("%w: %s has no bars", ErrInsufficientData, series.Symbol)
	}
	bars := series.Bars
	snap := model.IndicatorSnapshot{
		Symbol: series.Symbol,
		AsOf:   last.Time,
		Close:  last.Close,
	}

	var err error
	if snap.SMA, err = CalculateSMAs(bars, e.cfg.SMAWindows); err != nil {
		return snap, err
	}
	if len(bars) > 1 {
		prev := bars[len(bars)-2].Close
		snap.PrevClose = &prev
		if snap.PrevSMA, err = CalculateSMAs(bars[:len(bars)-1], e.cfg.SMAWindows); err != nil {
			return snap, err
		}
	}

	if rsi, err := CalculateRSI(bars, e.cfg.RSIPeriod); err == nil {
		snap.RSI = &rsi
	} else if !errors.Is(err, ErrInsufficientData) {
		return snap, err
	}

	if atr, err := CalculateATR(bars, e.cfg.ATRPeriod); err == nil {
		snap.ATR = &atr
	} else if !errors.Is(err, ErrInsufficientData) {
		return snap, err
	}

	levels, err := CalculateLevels(bars, e.cfg.LevelLookback, e.cfg.PivotSpan, e.cfg.MergeTolerancePct)
	if err != nil && !errors.Is(err, ErrInsufficientData) {
		return snap, err
	}
	snap.Support = levels.Support
	snap.Resistance = levels.Resistance

	return snap, nil
}
