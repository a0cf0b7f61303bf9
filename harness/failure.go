// Package harness runs an engine under test against a stimulus with strict
// failure containment: panics, non-finite output, and hangs are converted
// into typed failures that never escape past the harness boundary.
package harness

import (
	"errors"
	"fmt"
)

// FailureKind classifies how a unit failed.
type FailureKind int

const (
	// FailureNone marks the zero value; it never appears in a Failure.
	FailureNone FailureKind = iota

	// FailureNumericInstability is NaN or Inf in the engine output.
	FailureNumericInstability

	// FailureExcessiveLevel is output above the soft level ceiling.
	FailureExcessiveLevel

	// FailureSilentOutput is output RMS below the silence floor.
	FailureSilentOutput

	// FailureEngineFault is a panic recovered at the Process boundary.
	FailureEngineFault

	// FailureTimeout is a unit that exceeded its wall-clock budget.
	FailureTimeout

	// FailurePrecondition is an unmet analysis precondition, not an
	// engine defect.
	FailurePrecondition

	// FailureCreation is an engine factory that returned an error.
	FailureCreation
)

// String returns the canonical name of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureNumericInstability:
		return "NUMERIC_INSTABILITY"
	case FailureExcessiveLevel:
		return "EXCESSIVE_LEVEL"
	case FailureSilentOutput:
		return "SILENT_OUTPUT"
	case FailureEngineFault:
		return "ENGINE_FAULT"
	case FailureTimeout:
		return "TIMEOUT"
	case FailurePrecondition:
		return "PRECONDITION"
	case FailureCreation:
		return "CREATION_FAILED"
	default:
		return "NONE"
	}
}

// Failure is the error type produced at the harness boundary.
type Failure struct {
	Kind    FailureKind
	Message string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// NewFailure creates a Failure with the given kind and message.
func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from an error chain. Returns FailureNone
// if err is nil or carries no Failure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}

	return FailureNone
}
