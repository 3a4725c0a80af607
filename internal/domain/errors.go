package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or missing input the caller can correct.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a stale or unknown reference.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvalidTransitionError reports a task status change outside the transition table.
type InvalidTransitionError struct {
	From TaskStatus
	To   TaskStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid task status transition %s -> %s", e.From, e.To)
}

// ConflictError reports a lost compare-and-set or a live dependency.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// PersistenceError wraps an opaque store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// IsClassified reports whether err already belongs to the error taxonomy.
func IsClassified(err error) bool {
	var (
		ve ValidationError
		ne NotFoundError
		ie InvalidTransitionError
		ce ConflictError
		pe PersistenceError
	)
	return errors.As(err, &ve) || errors.As(err, &ne) || errors.As(err, &ie) || errors.As(err, &ce) || errors.As(err, &pe)
}
