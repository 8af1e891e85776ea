package apperr

import (
	"errors"
	"testing"
)

func TestNotFoundWrapsSentinel(t *testing.T) {
	err := NotFound("item", "itm-abc123")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInvalidCarriesFields(t *testing.T) {
	err := Invalid(
		FieldError{Field: "title", Reason: "must be 5..100 characters"},
		FieldError{Field: "zip_code", Reason: "must match \\d{5}(-\\d{4})?"},
	)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	ie, ok := AsInvalidInput(err)
	if !ok {
		t.Fatalf("expected *InvalidInputError")
	}
	if len(ie.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(ie.Fields))
	}
}

func TestInvalidTransition(t *testing.T) {
	err := InvalidTransition("claim", "COMPLETED", "SELECTED")
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}
