// Package upstream defines the failure taxonomy shared by the balldontlie
// client and the response cache.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors and unreachable upstreams.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassTimeout represents deadline and network timeouts.
	ErrorClassTimeout ErrorClass = "timeout"
)

// Sentinel errors, one per class. An *Error matches the sentinel of its class
// with errors.Is.
var (
	ErrRateLimited = errors.New("upstream rate limited")
	ErrServer      = errors.New("upstream server error")
	ErrTimeout     = errors.New("upstream timeout")
	ErrClient      = errors.New("upstream client error")
)

// Transient reports whether failures of this class are expected to resolve
// on their own. Only transient failures may be answered with stale data.
func (c ErrorClass) Transient() bool {
	switch c {
	case ErrorClassRateLimit, ErrorClassServer, ErrorClassTimeout:
		return true
	default:
		return false
	}
}

func (c ErrorClass) sentinel() error {
	switch c {
	case ErrorClassRateLimit:
		return ErrRateLimited
	case ErrorClassServer:
		return ErrServer
	case ErrorClassTimeout:
		return ErrTimeout
	case ErrorClassClient:
		return ErrClient
	default:
		return nil
	}
}

// Error is an upstream failure with its classification.
type Error struct {
	StatusCode int
	Class      ErrorClass
	Message    string

	// RetryAfter is the wait the upstream asked for, if any.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("balldontlie %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("balldontlie %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the class.
func (e *Error) Is(target error) bool {
	s := e.Class.sentinel()
	return s != nil && target == s
}

// ClassifyStatus maps an HTTP status code to an error class.
// Returns "" for non-error statuses.
func ClassifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case code >= 500:
		return ErrorClassServer
	case code >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// ClassOf returns the class of err, or "" when err carries no upstream
// classification.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var ue *Error
	if errors.As(err, &ue) {
		return ue.Class
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return ErrorClassRateLimit
	case errors.Is(err, ErrServer):
		return ErrorClassServer
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTimeout
	case errors.Is(err, ErrClient):
		return ErrorClassClient
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorClassTimeout
	}
	return ""
}

// IsTransient reports whether err is a transient upstream failure.
func IsTransient(err error) bool {
	return ClassOf(err).Transient()
}
