package circuits

import (
	"errors"
	"fmt"
)

var (
	// ErrSynthesisFailure is returned when an assignment is missing a value
	// or has the wrong shape, so no witness can be built from it.
	ErrSynthesisFailure = errors.New("synthesis failure")
	// ErrConstraintUnsatisfied is returned when a complete assignment does
	// not satisfy the constraint system.
	ErrConstraintUnsatisfied = errors.New("constraint unsatisfied")
)

// Constraint classes reported by ConstraintError.
const (
	ClassOwnership  = "ownership"
	ClassCommitment = "commitment"
	ClassMerkle     = "merkle"
	ClassNullifier  = "nullifier"
	ClassOutput     = "output"
	ClassValue      = "value"
	ClassTag        = "tag"
	ClassRange      = "range"
	ClassPreimage   = "preimage"
	// ClassUnknown is used when the solver rejects a witness but the
	// failing class could not be identified natively.
	ClassUnknown = "unknown"
)

// SynthesisError names the assignment field that could not be synthesized.
type SynthesisError struct {
	Field  string
	Reason string
}

func (e *SynthesisError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: missing %s", ErrSynthesisFailure, e.Field)
	}
	return fmt.Sprintf("%s: %s: %s", ErrSynthesisFailure, e.Field, e.Reason)
}

func (e *SynthesisError) Unwrap() error { return ErrSynthesisFailure }

// MissingField returns a SynthesisError for a field with no value.
func MissingField(field string) error {
	return &SynthesisError{Field: field}
}

// ConstraintError reports the class of the constraint a witness violates.
type ConstraintError struct {
	Class string
	Err   error
}

func (e *ConstraintError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", ErrConstraintUnsatisfied, e.Class)
	}
	return fmt.Sprintf("%s (%s): %v", ErrConstraintUnsatisfied, e.Class, e.Err)
}

func (e *ConstraintError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConstraintUnsatisfied}
	}
	return []error{ErrConstraintUnsatisfied, e.Err}
}

// Unsatisfied returns a ConstraintError for the given class.
func Unsatisfied(class string, format string, args ...any) error {
	return &ConstraintError{Class: class, Err: fmt.Errorf(format, args...)}
}
