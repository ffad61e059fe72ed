// Package errors classifies failures from the store and service layers so the
// HTTP layer can pick a status code without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the category of an AppError. Its string form is the "error"
// field of the JSON envelope.
type ErrorCode string

const (
	ErrCodeNotFound    ErrorCode = "not_found"
	ErrCodeConflict    ErrorCode = "conflict"
	ErrCodeValidation  ErrorCode = "validation"
	ErrCodeForbidden   ErrorCode = "forbidden"
	ErrCodeRateLimited ErrorCode = "rate_limited"
	ErrCodeInternal    ErrorCode = "internal"
	ErrCodeTimeout     ErrorCode = "timeout"
	ErrCodeCanceled    ErrorCode = "canceled"
)

// AppError carries a code, a message safe to show to API clients, and the
// optional offending field. Cause is for logs only.
type AppError struct {
	Code    ErrorCode
	Message string
	Field   string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

func newErr(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

func NotFound(msg string) *AppError { return newErr(ErrCodeNotFound, msg) }

func NotFoundf(format string, args ...any) *AppError {
	return newErr(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

func Conflict(msg string) *AppError    { return newErr(ErrCodeConflict, msg) }
func Validation(msg string) *AppError  { return newErr(ErrCodeValidation, msg) }
func Forbidden(msg string) *AppError   { return newErr(ErrCodeForbidden, msg) }
func RateLimited(msg string) *AppError { return newErr(ErrCodeRateLimited, msg) }
func Internal(msg string) *AppError    { return newErr(ErrCodeInternal, msg) }

// ValidationField reports a bad value for a named request field.
func ValidationField(field, msg string) *AppError {
	e := newErr(ErrCodeValidation, msg)
	e.Field = field
	return e
}

// Wrap attaches code and msg to err. A nil err stays nil.
func Wrap(err error, code ErrorCode, msg string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Is reports whether any error in err's chain is an AppError with code.
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

func IsNotFound(err error) bool    { return Is(err, ErrCodeNotFound) }
func IsConflict(err error) bool    { return Is(err, ErrCodeConflict) }
func IsValidation(err error) bool  { return Is(err, ErrCodeValidation) }
func IsForbidden(err error) bool   { return Is(err, ErrCodeForbidden) }
func IsRateLimited(err error) bool { return Is(err, ErrCodeRateLimited) }

// GetCode returns the code of the first AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the offending field of the first AppError in err's chain.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
