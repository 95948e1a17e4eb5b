package model

// Tag classifies a screened symbol.
type Tag string

const (
	TagLongTerm  Tag = "long_term"
	TagShortTerm Tag = "short_term"
	TagNone      Tag = "none"
)

// FactorScore represents a single factor's scoring result.
type FactorScore struct {
	Name       string
	RawScore   float64
	Weight     float64
	Weighted   float64
	Commentary string
}

// Opportunity is one symbol's classification within a screening run.
type Opportunity struct {
	Symbol   string
	Snapshot IndicatorSnapshot
	Tag      Tag
	Score    float64
	Factors  []FactorScore
	Reason   string
}
