package service

import (
	"errors"
	"fmt"

	"offer-parser/internal/model"
)

var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrEmptyBody         = errors.New("email has no content to parse")
	ErrInvalidAccount    = errors.New("invalid account address")
	ErrInvalidMessage    = errors.New("invalid message")
)

// TransitionError reports an operation that the record's current status does not allow.
type TransitionError struct {
	ID   string
	From model.Status
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed for email %s in status %s", e.Op, e.ID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

type ErrorKind int

const (
	Permanent ErrorKind = iota
	Transient
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// ExtractionError is a classified extraction failure. Transient failures may
// be retried; permanent ones mark the record failed.
type ExtractionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction error: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func TransientError(err error) error {
	return &ExtractionError{Kind: Transient, Err: err}
}

func PermanentError(err error) error {
	return &ExtractionError{Kind: Permanent, Err: err}
}

// IsTransient reports whether err is a retryable extraction failure.
func IsTransient(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Kind == Transient
}
