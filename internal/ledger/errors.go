package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder         = errors.New("invalid order")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrMissingPriceData     = errors.New("missing price data")
	ErrExecution            = errors.New("execution failed")
	ErrPersistence          = errors.New("persistence failed")
)

// PersistenceWarning is returned when a mutation was applied in memory but
// could not be saved. The mutation is not rolled back.
type PersistenceWarning struct {
	Op  string
	Err error
}

func (w *PersistenceWarning) Error() string {
	return fmt.Sprintf("%s committed but not persisted: %v", w.Op, w.Err)
}

func (w *PersistenceWarning) Unwrap() []error { return []error{ErrPersistence, w.Err} }

// MissingPriceError reports a position excluded from a valuation.
type MissingPriceError struct {
	Symbol string
}

func (e *MissingPriceError) Error() string { return "no current price for " + e.Symbol }

func (e *MissingPriceError) Unwrap() error { return ErrMissingPriceData }
