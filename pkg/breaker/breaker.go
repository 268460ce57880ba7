// Package breaker implements the per-provider three-state Circuit Breaker
// (Closed/Open/Half-Open) described in the spec, as a thin wrapper around
// github.com/sony/gobreaker that enforces the spec's classification
// contract: only TRANSIENT/TIMEOUT/RESOURCE/UNKNOWN count toward tripping,
// PERMANENT failures propagate without affecting breaker state.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
)

// State mirrors the spec's three named states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// ErrOpen is returned by Execute when the breaker is open and the call was
// short-circuited.
var ErrOpen = gobreaker.ErrOpenState

// ErrTooManyRequests is returned when the breaker is half-open and the
// half-open concurrency cap has been reached.
var ErrTooManyRequests = gobreaker.ErrTooManyRequests

// Config configures one provider's breaker.
type Config struct {
	Name             string
	FailureThreshold uint32        // consecutive failures to trip
	OpenDuration     time.Duration // how long Open lasts before probing
	HalfOpenMax      uint32        // max concurrent half-open probes
	WindowInterval   time.Duration // rolling window for the closed-state counter; 0 disables rolling reset
}

// Breaker wraps one gobreaker.CircuitBreaker for one provider.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker
	name string
}

// New constructs a Breaker from cfg.
func New(cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMax,
		Interval:    cfg.WindowInterval,
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), name: cfg.Name}
}

// State reports the current breaker state.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

// CanExecute reports whether a call would currently be allowed (i.e. the
// breaker is not Open, or Open has expired into Half-Open).
func (b *Breaker) CanExecute() bool {
	return b.State() != Open
}

// Execute runs fn through the breaker. PERMANENT classifications are
// executed as a *masked success* from gobreaker's point of view — the
// error is still returned to the caller, but the breaker's internal
// counters are not affected — so a malformed-request storm can never trip
// the breaker. Any other failure classification is reported to gobreaker
// as a real failure.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	var realErr error
	result, cbErr := b.cb.Execute(func() (interface{}, error) {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if ctlerrors.Classify(err) == ctlerrors.Permanent {
			realErr = err
			return res, nil // masked: do not count toward the breaker
		}
		return res, err
	})
	if realErr != nil {
		return result, realErr
	}
	if cbErr != nil {
		if errors.Is(cbErr, gobreaker.ErrOpenState) || errors.Is(cbErr, gobreaker.ErrTooManyRequests) {
			return nil, cbErr
		}
		return result, cbErr
	}
	return result, nil
}

// Counts exposes gobreaker's rolling counters, used for metrics/audit.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
