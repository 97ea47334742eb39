package training

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientRows = errors.New("insufficient rows")
	ErrFit              = errors.New("fitting failed")
	ErrTimeout          = errors.New("trainer timed out")
)

// TrainError isolates one trainer's failure. It never aborts the others.
type TrainError struct {
	Model string
	Rows  int
	Err   error
}

func (e *TrainError) Error() string {
	return fmt.Sprintf("train %s (rows=%d): %v", e.Model, e.Rows, e.Err)
}

func (e *TrainError) Unwrap() error {
	return e.Err
}

func insufficient(model string, rows, need int) error {
	return &TrainError{Model: model, Rows: rows, Err: fmt.Errorf("%w: need %d, have %d", ErrInsufficientRows, need, rows)}
}

func fitFailed(model string, rows int, format string, args ...any) error {
	return &TrainError{Model: model, Rows: rows, Err: fmt.Errorf("%w: %s", ErrFit, fmt.Sprintf(format, args...))}
}
