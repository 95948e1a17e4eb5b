package calculator

import "errors"

var (
	// ErrInsufficientData means the series is too short for the indicator.
	// Callers must treat the value as unknown, never as zero.
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidPeriod    = errors.New("period must be positive")
)

// Epsilon is the tolerance used for price equality comparisons.
const Epsilon = 1e-9
