package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientData      = errors.New("insufficient data")
	ErrUnknownComparisonType = errors.New("unknown comparison type")
	ErrQueryExecution        = errors.New("query execution failed")
	ErrFormatting            = errors.New("formatting failed")
	ErrRetriesExhausted      = errors.New("retries exhausted")
	ErrReportNotFound        = errors.New("report not found")
)

type UnknownComparisonTypeError struct {
	Value string
}

func (e *UnknownComparisonTypeError) Error() string {
	return fmt.Sprintf("unknown comparison type %q: expected %q or %q", e.Value, YearOverYear, QuarterOverQuarter)
}

func (e *UnknownComparisonTypeError) Is(target error) bool {
	return target == ErrUnknownComparisonType
}

// QueryExecutionError wraps a data source failure together with the
// statement that produced it.
type QueryExecutionError struct {
	Query string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

func (e *QueryExecutionError) Is(target error) bool {
	return target == ErrQueryExecution
}

type FormattingError struct {
	Err error
}

func (e *FormattingError) Error() string {
	return fmt.Sprintf("formatting failed: %v", e.Err)
}

func (e *FormattingError) Unwrap() error {
	return e.Err
}

func (e *FormattingError) Is(target error) bool {
	return target == ErrFormatting
}

// RetriesExhaustedError is the terminal error of the query translation loop.
type RetriesExhaustedError struct {
	Attempts  int
	LastQuery string
	Err       error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("max retries (%d) exceeded, last error: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}
