// Package domainerrors carries coded errors from services to transports.
//
// Services return *Error values (directly or wrapped) so handlers can map a
// failure to a response without string matching. Stores should not use this
// package; they return sentinel errors from pkg/platform/sentinel instead.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies the category of a domain failure.
type Code string

const (
	CodeNotEligible   Code = "not_eligible"
	CodeInvalidState  Code = "invalid_state"
	CodeUnauthorized  Code = "unauthorized"
	CodeForbidden     Code = "forbidden"
	CodeSelfBid       Code = "self_bid"
	CodePaymentFailed Code = "payment_failed"
	CodeNotFound      Code = "not_found"
	CodeValidation    Code = "validation_error"
	CodeBadRequest    Code = "bad_request"
	CodeConflict      Code = "conflict"
	CodeTimeout       Code = "timeout"
	CodeRateLimited   Code = "rate_limited"
	CodeInternal      Code = "internal_error"
)

// Error is a domain error with a stable code and a caller-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code, so errors.Is can compare
// against a freshly built domain error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New builds a domain error without an underlying cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any domain error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost domain code, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost caller-safe message.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a domain code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotEligible, CodeUnauthorized, CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidState, CodeConflict:
		return http.StatusConflict
	case CodeSelfBid:
		return http.StatusUnprocessableEntity
	case CodePaymentFailed:
		return http.StatusPaymentRequired
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
