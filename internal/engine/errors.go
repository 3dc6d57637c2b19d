package engine

import (
	"errors"
	"fmt"
)

// EvalErrorCode categorizes evaluation errors.
type EvalErrorCode string

const (
	// ErrCodeInvalidInput indicates a malformed household or program
	// input, rejected before any calculation.
	ErrCodeInvalidInput EvalErrorCode = "INVALID_INPUT"

	// ErrCodeRuleNotFound indicates no effective rule exists for the
	// requested program, jurisdiction, and date. Fatal for that
	// evaluation, never retried.
	ErrCodeRuleNotFound EvalErrorCode = "RULE_NOT_FOUND"
)

// EvalError is an error detected during evaluation. It carries
// structured fields so the harness can record which program and date
// a failing case evaluated against.
type EvalError struct {
	Code         EvalErrorCode
	Message      string
	Program      string
	Jurisdiction string
	Date         string
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Program != "" {
		return fmt.Sprintf("%s: %s (program=%s, jurisdiction=%s, date=%s)",
			e.Code, e.Message, e.Program, e.Jurisdiction, e.Date)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidInputError creates an INVALID_INPUT error.
func NewInvalidInputError(msg string) *EvalError {
	return &EvalError{Code: ErrCodeInvalidInput, Message: msg}
}

// NewRuleNotFoundError creates a RULE_NOT_FOUND error for the given
// evaluation key.
func NewRuleNotFoundError(msg, program, jurisdiction, date string) *EvalError {
	return &EvalError{
		Code:         ErrCodeRuleNotFound,
		Message:      msg,
		Program:      program,
		Jurisdiction: jurisdiction,
		Date:         date,
	}
}

// IsInvalidInput reports whether err is an INVALID_INPUT EvalError.
func IsInvalidInput(err error) bool {
	var e *EvalError
	return errors.As(err, &e) && e.Code == ErrCodeInvalidInput
}

// IsRuleNotFound reports whether err is a RULE_NOT_FOUND EvalError.
func IsRuleNotFound(err error) bool {
	var e *EvalError
	return errors.As(err, &e) && e.Code == ErrCodeRuleNotFound
}
