package screener

import (
	"fmt"
	"strings"

	"BotInvest/internal/model"
)

// Thresholds are the classification boundaries.
type Thresholds struct {
	ShortWindow int     `yaml:"short_window"`
	LongWindow  int     `yaml:"long_window"`
	RSIMin      float64 `yaml:"rsi_min"`
	RSIMax      float64 `yaml:"rsi_max"`
	Oversold    float64 `yaml:"oversold"`
}

// Weights scale each factor's raw score.
type Weights struct {
	Trend    float64 `yaml:"trend"`
	Spread   float64 `yaml:"spread"`
	Headroom float64 `yaml:"headroom"`
	Oversold float64 `yaml:"oversold"`
	Breakout float64 `yaml:"breakout"`
}

// DefaultThresholds: SMA20/SMA60 trend, RSI band 40-70, oversold below 30.
func DefaultThresholds() Thresholds {
	return Thresholds{ShortWindow: 20, LongWindow: 60, RSIMin: 40, RSIMax: 70, Oversold: 30}
}

func DefaultWeights() Weights {
	return Weights{Trend: 0.4, Spread: 0.3, Headroom: 0.3, Oversold: 0.6, Breakout: 0.4}
}

func (t Thresholds) Validate() error {
	if t.ShortWindow <= 0 || t.LongWindow <= 0 {
		return fmt.Errorf("sma windows must be positive")
	}
	if t.ShortWindow >= t.LongWindow {
		return fmt.Errorf("short window %d must be below long window %d", t.ShortWindow, t.LongWindow)
	}
	if t.RSIMin < 0 || t.RSIMax > 100 || t.RSIMin >= t.RSIMax {
		return fmt.Errorf("rsi band [%.0f, %.0f] is invalid", t.RSIMin, t.RSIMax)
	}
	if t.Oversold <= 0 || t.Oversold >= 100 {
		return fmt.Errorf("oversold threshold %.0f out of range", t.Oversold)
	}
	return nil
}

// Classify applies the long-term and short-term rules to a snapshot. Rules are
// independent; a symbol matching neither yields a single TagNone opportunity.
func Classify(snap model.IndicatorSnapshot, th Thresholds, w Weights) []model.Opportunity {
	var out []model.Opportunity
	if opp, ok := longTerm(snap, th, w); ok {
		out = append(out, opp)
	}
	if opp, ok := shortTerm(snap, th, w); ok {
		out = append(out, opp)
	}
	if len(out) == 0 {
		out = append(out, model.Opportunity{
			Symbol:   snap.Symbol,
			Snapshot: snap,
			Tag:      model.TagNone,
			Reason:   "no rule matched",
		})
	}
	return out
}

// longTerm: close > SMA(long), SMA(short) > SMA(long), RSIMin < RSI < RSIMax.
func longTerm(snap model.IndicatorSnapshot, th Thresholds, w Weights) (model.Opportunity, bool) {
	smaLong, okLong := snap.SMAFor(th.LongWindow)
	smaShort, okShort := snap.SMAFor(th.ShortWindow)
	if !okLong || !okShort || snap.RSI == nil || smaLong <= 0 {
		return model.Opportunity{}, false
	}
	rsi := *snap.RSI
	if snap.Close <= smaLong || smaShort <= smaLong || rsi <= th.RSIMin || rsi >= th.RSIMax {
		return model.Opportunity{}, false
	}

	factors := []model.FactorScore{
		scoreTrend(snap.Close, smaLong, th.LongWindow, w.Trend),
		scoreSpread(smaShort, smaLong, th, w.Spread),
		scoreHeadroom(rsi, th, w.Headroom),
	}
	return model.Opportunity{
		Symbol:   snap.Symbol,
		Snapshot: snap,
		Tag:      model.TagLongTerm,
		Score:    sumWeighted(factors),
		Factors:  factors,
		Reason:   joinCommentary(factors),
	}, true
}

// shortTerm: RSI < Oversold, or close crossed above SMA(short) on the latest bar.
func shortTerm(snap model.IndicatorSnapshot, th Thresholds, w Weights) (model.Opportunity, bool) {
	oversold := snap.RSI != nil && *snap.RSI < th.Oversold
	breakout := isBreakout(snap, th.ShortWindow)
	if !oversold && !breakout {
		return model.Opportunity{}, false
	}

	var factors []model.FactorScore
	if oversold {
		factors = append(factors, scoreOversold(*snap.RSI, th, w.Oversold))
	}
	if breakout {
		sma, _ := snap.SMAFor(th.ShortWindow)
		factors = append(factors, scoreBreakout(snap.Close, sma, th.ShortWindow, w.Breakout))
	}
	return model.Opportunity{
		Symbol:   snap.Symbol,
		Snapshot: snap,
		Tag:      model.TagShortTerm,
		Score:    sumWeighted(factors),
		Factors:  factors,
		Reason:   joinCommentary(factors),
	}, true
}

func isBreakout(snap model.IndicatorSnapshot, window int) bool {
	sma, ok := snap.SMAFor(window)
	prevSMA, okPrev := snap.PrevSMAFor(window)
	if !ok || !okPrev || snap.PrevClose == nil {
		return false
	}
	return *snap.PrevClose <= prevSMA && snap.Close > sma
}

// scoreTrend scores how far the close sits above the long SMA, as a fraction.
func scoreTrend(closePrice, smaLong float64, window int, weight float64) model.FactorScore {
	raw := (closePrice - smaLong) / smaLong
	return model.FactorScore{
		Name:       "trend",
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("close %+.1f%% vs SMA%d", raw*100, window),
	}
}

// scoreSpread scores the short SMA's lead over the long SMA.
func scoreSpread(smaShort, smaLong float64, th Thresholds, weight float64) model.FactorScore {
	raw := (smaShort - smaLong) / smaLong
	return model.FactorScore{
		Name:       "ma_spread",
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("SMA%d %+.1f%% vs SMA%d", th.ShortWindow, raw*100, th.LongWindow),
	}
}

// scoreHeadroom is 1 at the bottom of the RSI band and 0 at the top.
func scoreHeadroom(rsi float64, th Thresholds, weight float64) model.FactorScore {
	raw := (th.RSIMax - rsi) / (th.RSIMax - th.RSIMin)
	return model.FactorScore{
		Name:       "rsi_headroom",
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("RSI=%.0f", rsi),
	}
}

// scoreOversold grows with the depth below the oversold threshold.
func scoreOversold(rsi float64, th Thresholds, weight float64) model.FactorScore {
	raw := (th.Oversold - rsi) / th.Oversold
	return model.FactorScore{
		Name:       "oversold",
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("RSI=%.0f below %.0f", rsi, th.Oversold),
	}
}

// scoreBreakout scores the close's distance above the short SMA it just crossed.
func scoreBreakout(closePrice, sma float64, window int, weight float64) model.FactorScore {
	raw := 0.0
	if sma > 0 {
		raw = (closePrice - sma) / sma
	}
	return model.FactorScore{
		Name:       "breakout",
		RawScore:   raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Commentary: fmt.Sprintf("crossed above SMA%d by %.1f%%", window, raw*100),
	}
}

func sumWeighted(factors []model.FactorScore) float64 {
	total := 0.0
	for _, f := range factors {
		total += f.Weighted
	}
	return total
}

func joinCommentary(factors []model.FactorScore) string {
	parts := make([]string, len(factors))
	for i, f := range factors {
		parts[i] = f.Commentary
	}
	return strings.Join(parts, "; ")
}
