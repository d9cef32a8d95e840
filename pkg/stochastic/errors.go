package stochastic

import (
	"errors"
	"fmt"
)

// ErrInfeasible is returned when no assignment satisfies every constraint
// of the assembled program.
var ErrInfeasible = errors.New("program is infeasible")

// ErrUnbounded is returned when the objective can be improved without limit.
var ErrUnbounded = errors.New("objective is unbounded")

// ValidationError reports input that violates a structural rule. It is
// always produced before any solving is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// SolverError wraps a failure inside the simplex backend that is neither an
// infeasibility nor an unboundedness verdict, including an interrupted solve.
type SolverError struct {
	Reason string
	Err    error
}

func (e *SolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("solver: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("solver: %s", e.Reason)
}

func (e *SolverError) Unwrap() error { return e.Err }

// InternalError reports a defect caught during model assembly or result
// synthesis, such as a constraint referencing an undeclared variable or a
// non-finite number in a computed result.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal: %s", e.Reason)
}
