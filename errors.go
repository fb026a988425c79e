package shard

import (
	"errors"
	"fmt"
)

// ErrInvalidMode is returned when the command line does not select exactly
// one of leader or worker mode.
var ErrInvalidMode = errors.New("invalid mode")

// RuntimeError represents an operational error that should lead to exit code 2.
// Examples include configuration errors and an unreachable queue store.
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

// TestFailureError represents a run whose tests failed. Code is the
// process exit code to use.
type TestFailureError struct {
	Message string
	Code    int
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// ExitCode implements cli.ExitCoder
func (e *TestFailureError) ExitCode() int {
	return e.Code
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string, code int) *TestFailureError {
	return &TestFailureError{Message: message, Code: code}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
