package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Kocoro-lab/Shannon/go/research/internal/circuitbreaker"
)

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// StatusError is a non-2xx response
type StatusError struct {
	Code       int
	RetryAfter string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// ProtocolError is a failure while reading a response whose headers already arrived
type ProtocolError struct{ Err error }

func (e *ProtocolError) Error() string { return "stream interrupted: " + e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }

// NetworkError is a connection, DNS or timeout failure before a response arrived
type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// IsRetryable reports whether another attempt may succeed
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return retryableStatus[se.Code]
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return true
	}
	var ne *NetworkError
	return errors.As(err, &ne)
}

// reason labels a failure for metrics
func reason(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("http_%d", se.Code)
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return "protocol"
	}
	return "network"
}
