package models

import "errors"

var (
	errRequired   = errors.New("is required")
	errNegative   = errors.New("must not be negative")
	errOutOfRange = errors.New("out of range")
)

// ValidationError is returned for input that passed binding but fails a domain rule.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
