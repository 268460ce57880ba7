// Package ctlerrors provides the control plane's structured error type and
// the error-kind classifier shared by the Worker Runtime and Circuit Breaker.
package ctlerrors

import (
	"errors"
	"fmt"
)

// OperationError wraps a failure with the operation/component/resource that
// was being acted on, so logs and API responses can report precise context
// without string-parsing an error message.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: failed to %s %s: %v", e.Component, e.Operation, e.Resource, e.Cause)
	}
	return fmt.Sprintf("%s: failed to %s: %v", e.Component, e.Operation, e.Cause)
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds an OperationError for a component/operation pair without a
// specific resource name.
func FailedTo(component, operation string, cause error) *OperationError {
	return &OperationError{Operation: operation, Component: component, Cause: cause}
}

// FailedToWithDetails builds an OperationError naming the specific resource
// the operation acted on.
func FailedToWithDetails(component, operation, resource string, cause error) *OperationError {
	return &OperationError{Operation: operation, Component: component, Resource: resource, Cause: cause}
}

// Wrapf wraps cause with a formatted message, preserving Unwrap. Returns nil
// if cause is nil.
func Wrapf(cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, cause)...)
}

// As is a re-export of errors.As for call sites that only import ctlerrors.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
