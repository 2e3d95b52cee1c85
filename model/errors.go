package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest    = "BAD_REQUEST"
	ErrNotFound      = "NOT_FOUND"
	ErrInternalError = "INTERNAL_ERROR"
	ErrUnavailable   = "UNAVAILABLE"
	ErrSessionLimit  = "SESSION_LIMIT"
)

// ErrorEnvelope is the standard error body returned by the HTTP surface.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewUnavailableError returns an UNAVAILABLE error.
func NewUnavailableError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnavailable, Message: msg}
}

// NewSessionLimitError returns a SESSION_LIMIT error.
func NewSessionLimitError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionLimit,
		Message: "Too many open sessions. Please try again later.",
	}
}

// Response codes used by FetchError when no HTTP status is available.
const (
	// CodeInvalidResponse marks a missing or undecodable response.
	CodeInvalidResponse = -999
)

// FetchError is returned by a PageFetcher when a page could not be retrieved
// or decoded. Code is the HTTP status when one was received.
type FetchError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed (%d): %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch failed (%d): %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError returns a FetchError for the given response code.
func NewFetchError(code int, msg string) *FetchError {
	return &FetchError{Code: code, Message: msg}
}

// NewInvalidResponseError returns the FetchError used when no usable response
// was received.
func NewInvalidResponseError(cause error) *FetchError {
	return &FetchError{Code: CodeInvalidResponse, Message: "invalid response", Err: cause}
}

// StatusMessage classifies an HTTP status code into a short human message.
func StatusMessage(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "Successful response"
	case code >= 300 && code < 400:
		return "Redirection"
	case code >= 400 && code < 500:
		return "Client error"
	case code >= 500 && code < 600:
		return "Server error"
	default:
		return fmt.Sprintf("Unknown status code: %d", code)
	}
}

// AsFetchError unwraps err to a *FetchError, if it is one.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
