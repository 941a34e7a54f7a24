package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWeek = errors.New("invalid week")
	ErrNotFound    = errors.New("not found")
	ErrCohortBusy  = errors.New("cohort is locked by another reconciliation")
)

// ErrorType lets callers branch on expected failures.
type ErrorType string

const (
	ErrorTypeTable           ErrorType = "table_error"
	ErrorTypeNoStockData     ErrorType = "no_stock_data"
	ErrorTypeInvalidFileType ErrorType = "invalid_file_type"
	ErrorTypeEmptyFile       ErrorType = "empty_file"
	ErrorTypeInvalidStruct   ErrorType = "invalid_structure"
	ErrorTypeNoValidRecords  ErrorType = "no_valid_records"
	ErrorTypeConfig          ErrorType = "config_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeCohortBusy      ErrorType = "cohort_busy"
)

// PassError is an expected, user-actionable failure. Details are merged
// into the JSON error response.
type PassError struct {
	Type    ErrorType
	Message string
	Details map[string]any
	Err     error
}

func (e *PassError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *PassError) Unwrap() error { return e.Err }

// NewPassError builds a PassError without details.
func NewPassError(t ErrorType, msg string) *PassError {
	return &PassError{Type: t, Message: msg}
}

// WithDetail adds a key to the error payload and returns the error.
func (e *PassError) WithDetail(key string, value any) *PassError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// AsPassError unwraps err into a PassError if it carries one.
func AsPassError(err error) (*PassError, bool) {
	var pe *PassError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
