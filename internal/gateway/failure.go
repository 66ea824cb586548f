package gateway

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a backend call failed.
type FailureKind string

const (
	// FailureTimeout - the bounded request timeout elapsed. Safe to retry.
	FailureTimeout FailureKind = "timeout"
	// FailureNetwork - the backend was unreachable (DNS, refused, reset).
	FailureNetwork FailureKind = "network"
	// FailureBackendRejected - the backend understood the request but
	// declined it; Message carries the server's wording verbatim.
	FailureBackendRejected FailureKind = "backend_rejected"
	// FailureProtocol - the response did not match the expected shape.
	// A defect to log, not something a retry fixes.
	FailureProtocol FailureKind = "protocol"
)

// Failure is the error type returned by every failing gateway call.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("backend %s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("backend %s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// FailureOf extracts the *Failure from err, or nil if err is not one.
func FailureOf(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return nil
}
