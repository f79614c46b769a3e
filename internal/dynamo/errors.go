package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for scene loading and evaluation.
var (
	// ErrInvalidState indicates a coordinate with NaN or Inf components.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrUnknownTemplate indicates a DOF template name that is not supported.
	ErrUnknownTemplate = errors.New("dynamo: unknown template")

	// ErrDuplicateState indicates two mechanical states registered under one name.
	ErrDuplicateState = errors.New("dynamo: duplicate mechanical state")

	// ErrUnknownState indicates a lookup of a mechanical state that is not registered.
	ErrUnknownState = errors.New("dynamo: unknown mechanical state")

	// ErrInvalidAttribute indicates an attribute value that cannot be parsed.
	ErrInvalidAttribute = errors.New("dynamo: invalid attribute value")

	// ErrContextCanceled indicates the frame loop was interrupted.
	ErrContextCanceled = errors.New("dynamo: evaluation canceled by context")

	// ErrDimensionMismatch indicates mismatched buffer sizes.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between buffer and state")
)

// SimError wraps an error with frame context.
type SimError struct {
	Frame   int
	Time    float64
	State   string
	Wrapped error
}

func (e *SimError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("frame %d (t=%.4f): %v", e.Frame, e.Time, e.Wrapped)
	}
	return fmt.Sprintf("frame %d (t=%.4f) %s: %v", e.Frame, e.Time, e.State, e.Wrapped)
}

func (e *SimError) Unwrap() error {
	return e.Wrapped
}
