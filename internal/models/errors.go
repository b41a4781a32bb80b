package models

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNotFound           = errors.New("not found")
	ErrInvalidServiceType = errors.New("invalid service type")
	ErrNoPrimaryOrg       = errors.New("user has no primary organization")
	ErrNotAParty          = errors.New("actor is not a party to this escrow")
	ErrNotEligible        = errors.New("actor is not eligible to accept this escrow")
	ErrAlreadyConfirmed   = errors.New("party has already confirmed")
	ErrUnauthorized       = errors.New("actor is not authorized")
	ErrStateConflict      = errors.New("state conflict")
)

// StateConflictError reports an operation attempted against an escrow whose
// locked status does not satisfy the precondition. It unwraps to
// ErrStateConflict so callers can match on the class.
type StateConflictError struct {
	Op     string
	Status string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s escrow in status %s", e.Op, e.Status)
}

func (e *StateConflictError) Unwrap() error {
	return ErrStateConflict
}

// NewStateConflict builds a StateConflictError for the given operation.
func NewStateConflict(op, status string) error {
	return &StateConflictError{Op: op, Status: status}
}
