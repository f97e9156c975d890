package tool

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorClass buckets executor failures for retry and surfacing decisions.
type ErrorClass string

const (
	// ClassValidation is malformed input; surfaced as a clarifying
	// question, never retried.
	ClassValidation ErrorClass = "validation"
	// ClassRateLimit is an upstream 429-style throttle; retried with backoff.
	ClassRateLimit ErrorClass = "rate_limit"
	// ClassAuth is an upstream credential/permission failure; never retried.
	ClassAuth ErrorClass = "auth"
	// ClassNetwork is a timeout or connectivity failure; retried with backoff.
	ClassNetwork ErrorClass = "network"
	// ClassUnknown is everything else; not retried.
	ClassUnknown ErrorClass = "unknown"
)

// Retryable reports whether failures of this class may be retried.
func (c ErrorClass) Retryable() bool {
	return c == ClassRateLimit || c == ClassNetwork
}

// ExecError lets executors report a pre-classified failure.
type ExecError struct {
	Class ErrorClass
	Err   error
}

func (e *ExecError) Error() string {
	return string(e.Class) + ": " + e.Err.Error()
}

func (e *ExecError) Unwrap() error { return e.Err }

// NewExecError wraps err with an explicit class.
func NewExecError(class ErrorClass, err error) *ExecError {
	return &ExecError{Class: class, Err: err}
}

// Classify maps an executor error to its class. Executors that return an
// *ExecError decide for themselves; otherwise timeouts and net errors count
// as network, and message sniffing covers common upstream client libraries
// that only expose string errors.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "429"):
		return ClassRateLimit
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "invalid api key"):
		return ClassAuth
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "timeout") || strings.Contains(msg, "no such host"):
		return ClassNetwork
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "malformed") || strings.Contains(msg, "missing required"):
		return ClassValidation
	}
	return ClassUnknown
}
