package models

import (
	"errors"
	"fmt"
)

// Error kinds. Compare with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
)

// Error identifies the operation and entity a core failure belongs to.
//
//	complete set: set 3f2c...: not found
type Error struct {
	Kind   error  // one of the Err kinds above
	Op     string // e.g. "complete set"
	Entity string // e.g. "session", "exercise", "set"
	ID     string
	Err    error // optional detail
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Entity
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds an ErrNotFound error.
func NotFound(op, entity string, id fmt.Stringer) error {
	return &Error{Kind: ErrNotFound, Op: op, Entity: entity, ID: stringOf(id)}
}

// Conflict builds an ErrConflict error with a reason.
func Conflict(op, entity string, id fmt.Stringer, reason string) error {
	return &Error{Kind: ErrConflict, Op: op, Entity: entity, ID: stringOf(id), Err: errors.New(reason)}
}

// InvalidState builds an ErrInvalidState error for a session in the wrong status.
func InvalidState(op string, s *WorkoutSession) error {
	return &Error{
		Kind:   ErrInvalidState,
		Op:     op,
		Entity: "session",
		ID:     s.ID.String(),
		Err:    fmt.Errorf("status is %s", s.Status),
	}
}

// InvalidInput builds an ErrInvalidInput error for a rejected field.
func InvalidInput(op, field, reason string) error {
	return &Error{Kind: ErrInvalidInput, Op: op, Entity: field, Err: errors.New(reason)}
}

func stringOf(id fmt.Stringer) string {
	if id == nil {
		return ""
	}
	return id.String()
}
