// Package domainerr defines the application's error taxonomy.
//
// Every error that crosses a component boundary is a *Error carrying a
// stable wire code, a human message, and whether the caller may retry.
// Sentinel codes mirror the error classes laid out for the application
// service's outward event stream.
package domainerr

import (
	"errors"
	"fmt"
)

// Code is a stable, wire-compatible error identifier.
type Code string

const (
	CodePermission     Code = "E_PERMISSION"
	CodeDevice         Code = "E_DEVICE"
	CodeTimeout        Code = "E_TIMEOUT"
	CodeSttUnavailable Code = "E_STT_UNAVAILABLE"
	CodeInvalidState   Code = "E_INVALID_STATE"
	CodeInternal       Code = "E_INTERNAL"
	CodeStorage        Code = "E_STORAGE"
	CodeRewrite        Code = "E_REWRITE"
)

// Error is the {code, message, recoverable} triple every component
// returns instead of an opaque error.
type Error struct {
	Code        Code
	Message     string
	Recoverable bool
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a domain error with no wrapped cause.
func New(code Code, recoverable bool, message string) *Error {
	return &Error{Code: code, Message: message, Recoverable: recoverable}
}

// Wrap builds a domain error around an existing cause, preserving it for
// errors.Is/errors.As traversal.
func Wrap(code Code, recoverable bool, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Recoverable: recoverable, cause: cause}
}

func Permission(message string) *Error { return New(CodePermission, false, message) }
func Device(message string) *Error     { return New(CodeDevice, true, message) }
func Timeout(message string) *Error    { return New(CodeTimeout, true, message) }
func SttUnavailable(message string) *Error {
	return New(CodeSttUnavailable, false, message)
}
func InvalidState(message string) *Error { return New(CodeInvalidState, true, message) }
func Internal(message string) *Error     { return New(CodeInternal, false, message) }
func Storage(message string) *Error      { return New(CodeStorage, false, message) }
func Rewrite(message string) *Error      { return New(CodeRewrite, true, message) }

// InternalWrap wraps a lower-level error (e.g. a driver failure) as an
// internal domain error, the common case in store/pipeline glue code.
func InternalWrap(message string, cause error) *Error {
	return Wrap(CodeInternal, false, message, cause)
}

// StorageWrap wraps a storage-layer failure.
func StorageWrap(message string, cause error) *Error {
	return Wrap(CodeStorage, false, message, cause)
}

// As reports whether err is (or wraps) a *Error, returning it on success.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
