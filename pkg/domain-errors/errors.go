// Package domainerrors carries the structured error type returned across the
// service boundary.
//
// Every error has a Code (the recoverable kind the caller branches on) and,
// for domain failures, a Reason naming the specific cause. Stores never return
// these directly; they return platform/sentinel values which services
// translate.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is the error kind. Callers recover by retrying (Conflict),
// correcting input (Validation, InvalidInput, Duplicate) or re-fetching state
// (NotFound, InvalidState).
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeInvalidState Code = "invalid_state"
	CodeDuplicate    Code = "duplicate"
	CodeValidation   Code = "validation_error"
	CodeConflict     Code = "conflict"
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal_error"
)

// Error is the structured failure surfaced to callers.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error of the given kind with no specific reason.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewReason builds an error whose code is derived from the reason.
func NewReason(reason Reason, msg string) error {
	return &Error{Code: reason.Code(), Reason: reason, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// PartialUpdate reports a cross-aggregate sequence that failed after at least
// one aggregate was persisted. The code of the underlying failure is kept so
// callers can still decide whether to retry.
func PartialUpdate(err error, msg string) error {
	if err == nil {
		return nil
	}
	code := CodeOf(err)
	if code == "" {
		code = CodeInternal
	}
	return &Error{Code: code, Reason: ReasonPartialUpdate, Message: msg, Err: err}
}

// HasCode reports whether the outermost domain error in the chain has code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Is is an alias for HasCode kept for handler call sites.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// HasReason reports whether any domain error in the chain carries reason.
func HasReason(err error, reason Reason) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Reason == reason {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the code of the outermost domain error, or "" when err
// carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ReasonOf returns the reason of the outermost domain error.
func ReasonOf(err error) Reason {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}
