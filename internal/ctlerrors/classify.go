package ctlerrors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classification is the error-kind taxonomy used by the Worker Runtime to
// decide retry vs DEAD_LETTER and by the Circuit Breaker to decide whether a
// failure counts toward tripping.
type Classification string

const (
	// Transient errors are retriable: network resets, 429/502/503/529.
	Transient Classification = "TRANSIENT"
	// Permanent errors are not retriable: 400/401/403/404/405/409/422,
	// malformed/unauthorized requests.
	Permanent Classification = "PERMANENT"
	// Timeout errors are retriable with a higher timeout: 408/504, deadline
	// exceeded, context cancellation due to a deadline.
	Timeout Classification = "TIMEOUT"
	// Resource errors are retriable after a cooldown: rate limits, OOM,
	// disk full, semaphore acquire timeout.
	Resource Classification = "RESOURCE"
	// Unknown errors get one retry, then are treated as Permanent.
	Unknown Classification = "UNKNOWN"
)

// Retriable reports whether a classification should ever be retried by the
// Worker Runtime (Permanent never is).
func (c Classification) Retriable() bool {
	return c != Permanent
}

// CountsTowardBreaker reports whether a classification increments a circuit
// breaker's failure counter. Only Permanent is excluded.
func (c Classification) CountsTowardBreaker() bool {
	return c != Permanent
}

// ClassifiableError lets callers attach an explicit classification to an
// error instead of relying on message/status sniffing.
type ClassifiableError interface {
	error
	Classification() Classification
}

type classifiedError struct {
	cause error
	kind  Classification
}

func (e *classifiedError) Error() string               { return e.cause.Error() }
func (e *classifiedError) Unwrap() error                { return e.cause }
func (e *classifiedError) Classification() Classification { return e.kind }

// WithClassification tags err with an explicit classification so a later
// Classify call returns it directly.
func WithClassification(err error, kind Classification) error {
	if err == nil {
		return nil
	}
	return &classifiedError{cause: err, kind: kind}
}

// HTTPStatusError is satisfied by provider/HTTP client errors that carry a
// response status code.
type HTTPStatusError interface {
	error
	StatusCode() int
}

// Classify maps a raw error into one of the five kinds. Order of checks:
// explicit classification, context errors, HTTP status code (if the error
// exposes one), then message sniffing as a last resort — mirroring how the
// spec describes the taxonomy as "kinds, not types".
func Classify(err error) Classification {
	if err == nil {
		return Unknown
	}

	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind
	}
	var cie ClassifiableError
	if errors.As(err, &cie) {
		return cie.Classification()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if errors.Is(err, context.Canceled) {
		return Timeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	var statusErr HTTPStatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode())
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"), strings.Contains(msg, "deadline"):
		return Timeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "out of memory"), strings.Contains(msg, "disk full"),
		strings.Contains(msg, "semaphore"), strings.Contains(msg, "resource exhausted"):
		return Resource
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection aborted"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"), strings.Contains(msg, "eof"):
		return Transient
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "not found"), strings.Contains(msg, "bad request"),
		strings.Contains(msg, "invalid"), strings.Contains(msg, "validation"),
		strings.Contains(msg, "conflict"), strings.Contains(msg, "unprocessable"):
		return Permanent
	}

	return Unknown
}

func classifyStatus(code int) Classification {
	switch code {
	case 429, 502, 503, 529:
		return Transient
	case 400, 401, 403, 404, 405, 409, 422:
		return Permanent
	case 408, 504:
		return Timeout
	default:
		switch {
		case code >= 500:
			return Transient
		case code >= 400:
			return Permanent
		}
		return Unknown
	}
}
