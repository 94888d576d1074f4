package domain

import (
	"fmt"
	"strings"
)

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// BadRequestError reports a violated attribute constraint, cardinality rule,
// disallowed type-reference combination, or mutually-exclusive parameters.
type BadRequestError struct {
	Reason string
}

func (e BadRequestError) Error() string { return e.Reason }

// BadRequestf builds a BadRequestError with a formatted reason.
func BadRequestf(format string, args ...any) BadRequestError {
	return BadRequestError{Reason: fmt.Sprintf(format, args...)}
}

// UnknownVariantError reports an unregistered requirement variant.
type UnknownVariantError struct {
	Variant string
}

func (e UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown requirement variant %q", e.Variant)
}

// InternalError wraps a store failure that occurred after validation passed.
// Re-issuing the whole operation is the safe recovery: edge writes are
// idempotent by (alias, source, target).
type InternalError struct {
	Op  string
	Err error
}

func (e InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e InternalError) Unwrap() error { return e.Err }

// Internalf wraps err under op unless it already carries a typed reason.
func Internalf(op string, err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case NotFoundError, BadRequestError, UnknownVariantError, InternalError:
		return err
	}
	return InternalError{Op: op, Err: err}
}

// SubtypeMismatch builds the user-visible message for an actor whose subtype
// is outside the allowed set.
func SubtypeMismatch(actorID string, actual ActorSubtype, allowed []ActorSubtype) BadRequestError {
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return BadRequestf("Actor with ID %s is of type %s, but must be one of: %s",
		actorID, actual, strings.Join(names, ", "))
}
