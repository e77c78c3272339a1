package ledger

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	CodeInternal            Code = "INTERNAL"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeInvalidTimeOrdering Code = "INVALID_TIME_ORDERING"
	CodeConflictingWrite    Code = "CONFLICTING_WRITE"
	CodeIntegrityViolation  Code = "INTEGRITY_VIOLATION"
	CodeStorageUnavailable  Code = "STORAGE_UNAVAILABLE"
	CodeCanceled            Code = "CANCELED"
)

// ErrCommitUncertain marks a storage failure that happened while committing,
// when the outcome of the commit cannot be known. Such failures are never
// retried.
var ErrCommitUncertain = errors.New("commit outcome unknown")

// Error is the ledger's error type.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates an error with a code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates an error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound            = NewError(CodeNotFound, "not found")
	ErrInvalidInput        = NewError(CodeInvalidInput, "invalid input")
	ErrInvalidTimeOrdering = NewError(CodeInvalidTimeOrdering, "invalid time ordering")
	ErrConflictingWrite    = NewError(CodeConflictingWrite, "concurrent transition conflict")
	ErrIntegrityViolation  = NewError(CodeIntegrityViolation, "integrity violation")
	ErrStorageUnavailable  = NewError(CodeStorageUnavailable, "storage unavailable")
	ErrCanceled            = NewError(CodeCanceled, "canceled")
)

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
