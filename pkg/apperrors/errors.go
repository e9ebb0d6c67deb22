package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidRole            = errors.New("invalid role")
	ErrAccountDisabled        = errors.New("account disabled")
	ErrQuotaExceeded          = errors.New("quota exceeded")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrProjectNotAssignable   = errors.New("project not assignable")
	ErrEditorAtCapacity       = errors.New("editor at capacity")
	ErrQCAtCapacity           = errors.New("qc reviewer at capacity")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// NotFoundError identifies the entity that did not resolve.
type NotFoundError struct {
	Entity string // "plan", "project", "account"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound returns a NotFoundError for the given entity kind and id.
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// TransitionError is returned when a project cannot move from its current
// status to the requested one. Reason is empty for transitions that are not in
// the table at all and set when a listed transition failed its precondition.
type TransitionError struct {
	ProjectID string
	From      string
	To        string
	Reason    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("project %s: cannot transition from %s to %s", e.ProjectID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CapacityError reports a staff member who cannot take another project.
// Reason is set when the account cannot hold the role's queue at all
// (unknown, disabled, or holding a different role).
type CapacityError struct {
	StaffID  string
	Role     string
	Active   int
	Capacity int
	Reason   string
}

func (e *CapacityError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s cannot take projects: %s", e.Role, e.StaffID, e.Reason)
	}
	return fmt.Sprintf("%s %s has %d of %d active projects", e.Role, e.StaffID, e.Active, e.Capacity)
}

// Unwrap maps to ErrQCAtCapacity for QC reviewers and ErrEditorAtCapacity otherwise.
func (e *CapacityError) Unwrap() error {
	if e.Role == "qc" {
		return ErrQCAtCapacity
	}
	return ErrEditorAtCapacity
}

// NotAssignableError reports a project that cannot receive the requested
// assignment. Status is empty when the project does not exist.
type NotAssignableError struct {
	ProjectID string
	Status    string
	Reason    string
}

func (e *NotAssignableError) Error() string {
	switch {
	case e.Status == "":
		return fmt.Sprintf("project %s does not exist", e.ProjectID)
	case e.Reason != "":
		return fmt.Sprintf("project %s is not assignable: %s", e.ProjectID, e.Reason)
	default:
		return fmt.Sprintf("project %s is %s, expected pending", e.ProjectID, e.Status)
	}
}

func (e *NotAssignableError) Unwrap() error { return ErrProjectNotAssignable }

// QuotaError explains why a client's plan does not allow another active project.
// Message is user-facing.
type QuotaError struct {
	AccountID string
	PlanID    string
	Message   string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("account %s on plan %s: %s", e.AccountID, e.PlanID, e.Message)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// ConflictError is returned when a guarded write finds the row in a different
// state than the caller read. The caller should re-fetch and may retry once.
type ConflictError struct {
	Entity   string
	ID       string
	Expected string
	Actual   string
}

func (e *ConflictError) Error() string {
	if e.Actual == "" {
		return fmt.Sprintf("%s %s changed concurrently (expected %s)", e.Entity, e.ID, e.Expected)
	}
	return fmt.Sprintf("%s %s changed concurrently (expected %s, found %s)", e.Entity, e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrentModification }
