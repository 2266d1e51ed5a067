package otq

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProperty = errors.New("unknown property")
	ErrUnknownOperator = errors.New("unknown operator")
	ErrMissingValue    = errors.New("operator requires a value")
	ErrUnknownField    = errors.New("user field not defined")
)

// ValidationError reports a structurally invalid filter node: an unknown
// property/operator combination or a required value that is missing.
type ValidationError struct {
	NodeID   string
	Property Property
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("filter node %s: %v", e.NodeID, e.Err)
	}
	return fmt.Sprintf("filter node %s: %s: %v", e.NodeID, e.Property, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// EvaluationError reports a runtime failure while computing a condition's
// value, such as an unparsable date.
type EvaluationError struct {
	NodeID   string
	Property Property
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating node %s (%s): %v", e.NodeID, e.Property, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
