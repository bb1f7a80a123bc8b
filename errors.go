package cirunner

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/ci-runner/types"
)

// RuntimeError represents an operational error that should lead to exit code 2.
// Examples include configuration errors, an unreadable samples directory and
// interrupted runs.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// StepFailureError is returned when a checked step exited non-zero (exit code 1).
// The failure has already been reported on stdout by the time it is returned.
type StepFailureError struct {
	Failure *types.StepFailure
}

func (e *StepFailureError) Error() string {
	return fmt.Sprintf("step failure: %v", e.Failure)
}

// Unwrap implements the errors.Unwrap interface
func (e *StepFailureError) Unwrap() error {
	return e.Failure
}

// NewStepFailureError creates a new StepFailureError
func NewStepFailureError(failure *types.StepFailure) *StepFailureError {
	return &StepFailureError{Failure: failure}
}

// IsStepFailureError checks if the error is or wraps a StepFailureError
func IsStepFailureError(err error) bool {
	var stepErr *StepFailureError
	return err != nil && errors.As(err, &stepErr)
}
