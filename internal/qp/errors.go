package qp

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error taxonomy shared by tasks, measurements and control laws.
var (
	// ErrInvalidArgument indicates a dimension mismatch, an unknown joint or
	// body, a negative gain, or a non-positive time step or duration.
	ErrInvalidArgument = errors.New("qp: invalid argument")

	// ErrStaleLayout indicates an update against a layout other than the one
	// seen by the most recent UpdateNrVars.
	ErrStaleLayout = errors.New("qp: layout changed since last UpdateNrVars")

	// ErrNumericalDegeneracy indicates a computation that would divide by zero
	// or produce a non-finite value.
	ErrNumericalDegeneracy = errors.New("qp: numerical degeneracy")
)

// TaskError wraps an error with the task and operation that produced it.
type TaskError struct {
	Task string
	Op   string
	Err  error
}

func (e *TaskError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("task %q: %s: %v", e.Task, e.Op, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Invalid returns an ErrInvalidArgument carrying a formatted reason.
func Invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// Degenerate returns an ErrNumericalDegeneracy carrying a formatted reason.
func Degenerate(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNumericalDegeneracy, format, args...)
}
