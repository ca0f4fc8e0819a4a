// Package domainerrors defines the coded error surface exposed by services.
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into coded errors here so transport layers can map codes to HTTP
// statuses deterministically.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error kind. Codes are the contract between services and
// the transport layer; messages are free-form and never parsed.
type Code string

const (
	CodeBadRequest        Code = "bad_request"
	CodeInvalidExpiration Code = "invalid_expiration"
	CodeNotFound          Code = "not_found"
	CodeDenied            Code = "denied"
	CodeAlreadyRevoked    Code = "already_revoked"
	CodeConflict          Code = "conflict"
	CodeUnavailable       Code = "unavailable"
	CodeTimeout           Code = "timeout"
	CodeIntegrity         Code = "integrity"
	CodeInternal          Code = "internal"
)

// Error carries a code plus an operator-facing message. It never contains
// patient-facing text; rendering is the UI layer's job.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// unclassified errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps an error code to its HTTP status. Unknown codes map to
// 500 so a missing case fails loudly in monitoring rather than leaking a 200.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidExpiration:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDenied:
		return http.StatusForbidden
	case CodeAlreadyRevoked, CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
