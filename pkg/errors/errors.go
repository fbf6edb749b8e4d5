package errors

import (
	"fmt"
	"time"
)

// ErrorType classifies failures seen while fetching gallery media
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeEmptyBody   ErrorType = "empty_body"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a fetch error carrying its type and the last HTTP status observed.
// Code is 0 when the request never produced a response.
type Error struct {
	Type    ErrorType
	Message string
	Code    int

	// RetryAfter is the server-requested delay before retrying, zero when
	// the response carried no Retry-After header
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New creates a typed fetch error
func New(t ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{
		Type:    t,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// IsRetryable reports whether an error type is worth retrying at the
// transport layer
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode reports whether an HTTP status code indicates a
// transient failure the transport layer may retry
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// TypeForStatusCode maps an HTTP status code to an error type
func TypeForStatusCode(statusCode int) ErrorType {
	switch {
	case statusCode == 0:
		return ErrorTypeNetwork
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 404:
		return ErrorTypeNotFound
	case statusCode == 500 || statusCode == 502 || statusCode == 503 || statusCode == 504:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}
