package loader

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	MissingColumn    ErrorKind = "missing_column"
	EmptySource      ErrorKind = "empty_source"
	UnreadableSource ErrorKind = "unreadable_source"
)

var (
	ErrMissingColumn    = errors.New("required column missing")
	ErrEmptySource      = errors.New("source has no rows")
	ErrUnreadableSource = errors.New("source unreadable")
)

// LoadError is fatal to readiness. Kind selects the sentinel it unwraps to so
// callers can use errors.Is.
type LoadError struct {
	Kind   ErrorKind
	Source string
	Column string
	Err    error
}

func (e *LoadError) Error() string {
	switch e.Kind {
	case MissingColumn:
		return fmt.Sprintf("load %s: required column %s not found", e.Source, e.Column)
	case EmptySource:
		return fmt.Sprintf("load %s: no rows", e.Source)
	}
	if e.Err != nil {
		return fmt.Sprintf("load %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("load %s: unreadable", e.Source)
}

func (e *LoadError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case MissingColumn:
		sentinel = ErrMissingColumn
	case EmptySource:
		sentinel = ErrEmptySource
	default:
		sentinel = ErrUnreadableSource
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

func unreadable(source string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Kind: UnreadableSource, Source: source, Err: err}
}
