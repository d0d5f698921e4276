// Package wferrors defines the error-kind taxonomy the compiler and
// controller raise, so callers can switch on kind rather than parse
// message text.
package wferrors

import (
	"errors"
	"fmt"
)

// Kind identifies one entry of the error taxonomy.
type Kind string

const (
	// KindInvalidWorkflow signals an unresolvable substitution or an
	// unknown/unsupported action variant encountered by the compiler.
	KindInvalidWorkflow Kind = "invalid-workflow"
	// KindUnknownService signals a serviceId absent from service metadata.
	KindUnknownService Kind = "unknown-service"
	// KindMissingInput signals a required parameter with no resolvable
	// value and no default.
	KindMissingInput Kind = "missing-input"
	// KindCardinality signals a parameter argument count outside [min,max].
	KindCardinality Kind = "cardinality"
	// KindNotFound signals a registry lookup miss.
	KindNotFound Kind = "not-found"
	// KindLeaseUnavailable signals another worker already holds the
	// submission's lease.
	KindLeaseUnavailable Kind = "lease-unavailable"
	// KindPCExecutionError signals an agent/scheduler-reported process
	// chain failure.
	KindPCExecutionError Kind = "pc-execution-error"
	// KindIOTransient signals a retryable registry error.
	KindIOTransient Kind = "io-transient"
)

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a taxonomy error with no wrapped cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a taxonomy error wrapping cause, following the %w
// convention used throughout the rest of this module.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to "" when err doesn't
// carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
