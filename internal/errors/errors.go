// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidEvent       = errors.New("invalid trade event")
	ErrAmbiguousReference = errors.New("ambiguous reference")
	ErrDataUnavailable    = errors.New("data unavailable")
	ErrFeatureNotInTier   = errors.New("feature not available in subscription tier")
	ErrUnknownMode        = errors.New("unknown mode")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDatabaseError      = errors.New("database error")
)

// ValidationError represents a malformed or inconsistent trade event.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Is lets errors.Is(err, ErrInvalidEvent) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidEvent
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// AmbiguousReferenceError is returned when an event omits linked_trade_id and
// more than one open leg could be the target.
type AmbiguousReferenceError struct {
	Ticker     string
	Side       string
	Candidates []int64
}

func (e *AmbiguousReferenceError) Error() string {
	ids := make([]string, len(e.Candidates))
	for i, id := range e.Candidates {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("ambiguous reference: %s %s has %d open legs [%s]; set linked_trade_id",
		e.Ticker, e.Side, len(e.Candidates), strings.Join(ids, ", "))
}

func (e *AmbiguousReferenceError) Is(target error) bool {
	return target == ErrAmbiguousReference
}

// NewAmbiguousReferenceError creates a new AmbiguousReferenceError.
func NewAmbiguousReferenceError(ticker, side string, candidates []int64) *AmbiguousReferenceError {
	return &AmbiguousReferenceError{
		Ticker:     ticker,
		Side:       side,
		Candidates: candidates,
	}
}

// DataError represents market data the collaborator could not supply.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Unavailable builds a DataError wrapping ErrDataUnavailable.
func Unavailable(dataType, symbol, message string) *DataError {
	return NewDataError(dataType, symbol, message, ErrDataUnavailable)
}

// NotFound wraps ErrNotFound with the kind and key that were looked up.
func NotFound(kind string, key interface{}) error {
	return fmt.Errorf("%s %v: %w", kind, key, ErrNotFound)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsRejection reports whether err rejects a trade event (as opposed to an
// infrastructure failure).
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidEvent) || errors.Is(err, ErrAmbiguousReference)
}
