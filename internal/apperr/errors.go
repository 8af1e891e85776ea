// Package apperr defines the error taxonomy shared by every core component
// (item registry, claim queue engine, lifecycle coordinator, reclamation
// loop). Every error surfaced across a component boundary wraps one of the
// sentinels below so callers can classify it with errors.Is/errors.As
// instead of string matching.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matching the taxonomy in the core error handling design.
var (
	ErrNotFound                 = errors.New("not found")
	ErrForbidden                = errors.New("forbidden")
	ErrInvalidInput             = errors.New("invalid input")
	ErrInvalidStateTransition   = errors.New("invalid state transition")
	ErrDuplicateClaim           = errors.New("duplicate claim")
	ErrSelfClaimForbidden       = errors.New("self-claim forbidden")
	ErrConflictWithActiveClaims = errors.New("conflict with active claims")
	ErrConflict                 = errors.New("conflict")
	ErrTimeout                  = errors.New("timeout")
	ErrInternal                 = errors.New("internal")
)

// FieldError describes a single field-level validation failure.
type FieldError struct {
	Field  string
	Reason string
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Reason)
}

// InvalidInputError carries a machine-readable list of offending fields
// alongside ErrInvalidInput so callers can render field-specific messages
// without parsing strings.
type InvalidInputError struct {
	Fields []FieldError
}

func (e *InvalidInputError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("invalid input: %s", strings.Join(parts, "; "))
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid constructs an *InvalidInputError for one or more offending fields.
func Invalid(fields ...FieldError) error {
	return &InvalidInputError{Fields: fields}
}

// NotFound wraps ErrNotFound with the entity kind and identifier, mirroring
// the teacher's wrapDBError(op, err) convention of attaching operation
// context to a sentinel via fmt.Errorf("%s: %w", ...).
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Forbidden wraps ErrForbidden with an explanation of why the actor was
// rejected.
func Forbidden(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrForbidden)
}

// InvalidTransition wraps ErrInvalidStateTransition describing the attempted
// transition and the entity's current state.
func InvalidTransition(entity, from, attempted string) error {
	return fmt.Errorf("cannot transition %s from %s to %s: %w", entity, from, attempted, ErrInvalidStateTransition)
}

// Is reports whether err ultimately wraps target, a thin re-export so
// callers don't need a second import just to classify an apperr sentinel.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// AsInvalidInput extracts the *InvalidInputError from err, if any.
func AsInvalidInput(err error) (*InvalidInputError, bool) {
	var ie *InvalidInputError
	ok := errors.As(err, &ie)
	return ie, ok
}
