// Package errors provides unified error handling for the asset service.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the external error_type vocabulary returned in API responses.
type ErrorType string

const (
	TypeConnectionLost       ErrorType = "connection_lost"
	TypeError                ErrorType = "error"
	TypeForbidden            ErrorType = "forbidden"
	TypeInvalidRequest       ErrorType = "invalid_request"
	TypeNotFound             ErrorType = "not_found"
	TypeRequestLimitExceeded ErrorType = "request_limit_exceeded"
	TypeUnauthorized         ErrorType = "unauthorized"
)

var typeStatus = map[ErrorType]int{
	TypeConnectionLost:       http.StatusInternalServerError,
	TypeError:                http.StatusInternalServerError,
	TypeForbidden:            http.StatusForbidden,
	TypeInvalidRequest:       http.StatusBadRequest,
	TypeNotFound:             http.StatusNotFound,
	TypeRequestLimitExceeded: http.StatusTooManyRequests,
	TypeUnauthorized:         http.StatusUnauthorized,
}

// APIError is a structured error carrying the external error_type, an
// optional human hint, and optional per-field argument errors.
type APIError struct {
	Type       ErrorType           `json:"error_type"`
	Hint       string              `json:"hint,omitempty"`
	ArgErrors  map[string][]string `json:"arg_errors,omitempty"`
	HTTPStatus int                 `json:"-"`
	Err        error               `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Hint, e.Err)
	}
	if e.Hint != "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Hint)
	}
	return string(e.Type)
}

func (e *APIError) Unwrap() error { return e.Err }

// WithArgErrors attaches field-level validation errors.
func (e *APIError) WithArgErrors(argErrors map[string][]string) *APIError {
	e.ArgErrors = argErrors
	return e
}

// New builds an APIError for the given type with a status derived from the
// type's fixed mapping.
func New(t ErrorType, hint string) *APIError {
	return &APIError{Type: t, Hint: hint, HTTPStatus: typeStatus[t]}
}

// Wrap builds an APIError that also carries the underlying cause, used when
// logging internally while exposing a generic hint externally.
func Wrap(t ErrorType, hint string, err error) *APIError {
	return &APIError{Type: t, Hint: hint, HTTPStatus: typeStatus[t], Err: err}
}

func Unauthorized(hint string) *APIError   { return New(TypeUnauthorized, hint) }
func Forbidden(hint string) *APIError      { return New(TypeForbidden, hint) }
func NotFound(hint string) *APIError       { return New(TypeNotFound, hint) }
func RateLimited(hint string) *APIError    { return New(TypeRequestLimitExceeded, hint) }
func ConnectionLost(hint string) *APIError { return New(TypeConnectionLost, hint) }
func TaskError(reason string) *APIError    { return New(TypeError, reason) }

func Internal(hint string, err error) *APIError {
	return Wrap(TypeError, hint, err)
}

// InvalidRequest builds a 400 with optional structured field errors.
func InvalidRequest(hint string, argErrors map[string][]string) *APIError {
	e := New(TypeInvalidRequest, hint)
	e.ArgErrors = argErrors
	return e
}

// IsAPIError reports whether err (or something it wraps) is an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// As extracts an *APIError from an error chain.
func As(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// HTTPStatus returns the status code for err, defaulting to 500 for
// errors that are not an *APIError.
func HTTPStatus(err error) int {
	if apiErr := As(err); apiErr != nil {
		return apiErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
