package errors

import (
	"errors"
	"fmt"
)

// Generic errors shared by every layer

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a backing service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Forecasting errors

var (
	// ErrParse indicates a malformed upload row; the whole batch is rejected
	ErrParse = errors.New("parse error")

	// ErrModelUnavailable indicates there is neither an in-memory nor a persisted model
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInvalidRange indicates a forecast range whose end precedes its start
	ErrInvalidRange = errors.New("invalid date range")

	// ErrTrainingFailure indicates the ensemble could not be built or persisted
	ErrTrainingFailure = errors.New("training failure")

	// ErrIngestionBusy indicates the ingestion queue is full or another replica holds the lock
	ErrIngestionBusy = errors.New("ingestion busy")
)

// ParseError describes the offending cell of an upload.
// Row is 1-based and counts the header line.
type ParseError struct {
	Row    int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("parse error: row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("parse error: row %d, column %s: %v", e.Row, e.Column, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is
func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// NewParseError creates a parse error for a row/column pair
func NewParseError(row int, column string, err error) *ParseError {
	return &ParseError{Row: row, Column: column, Err: err}
}

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join combines errors; nil entries are dropped
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Mark tags err with a sentinel kind so errors.Is matches both
func Mark(kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
