package repository

import (
	"errors"
	"fmt"

	"offer-parser/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("status conflict")
)

// ConflictError reports a lost compare-and-update race. Callers should re-read
// the record rather than retry blindly. Expected is empty when the record was
// rejected for its current status alone.
type ConflictError struct {
	ID       string
	Expected model.Status
	Actual   model.Status
}

func (e *ConflictError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("email %s: already %s", e.ID, e.Actual)
	}
	return fmt.Sprintf("email %s: expected status %s, found %s", e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NotFoundError wraps ErrNotFound with the kind of entity that was missing.
func NotFoundError(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s %w", kind, ErrNotFound)
	}
	return fmt.Errorf("%s %s %w", kind, id, ErrNotFound)
}
