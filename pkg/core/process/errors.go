package process

import (
	"errors"
	"fmt"
)

// ErrProcessNotFound marks a row identifying neither an ISO process nor a
// subprocess.
var ErrProcessNotFound = errors.New("process not found")

// EvalError wraps a formula evaluation failure with the offending row id.
type EvalError struct {
	RowID int
	Err   error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("formula evaluation failed for row %d: %v", e.RowID, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// NegativeTimeError marks a time formula that evaluated below zero.
type NegativeTimeError struct {
	RowID int
	Time  float64
}

func (e *NegativeTimeError) Error() string {
	return fmt.Sprintf("time formula of row %d evaluated to %g, must be >= 0", e.RowID, e.Time)
}

// RateOrderError marks a per-project technical process placed after the flow
// anchor. Fixed one-time costs must precede the per-unit flow.
type RateOrderError struct {
	RowID int
	Name  string
}

func (e *RateOrderError) Error() string {
	return fmt.Sprintf("row %d (%s): per_project rate after the flow anchor", e.RowID, e.Name)
}
