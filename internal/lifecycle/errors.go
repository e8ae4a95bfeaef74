package lifecycle

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/types"
)

// ErrUnauthenticated indicates the caller has no session
type ErrUnauthenticated struct{}

func (e *ErrUnauthenticated) Error() string {
	return "authentication required"
}

// ErrForbidden indicates the caller does not own the resource
type ErrForbidden struct {
	Resource string
	ID       uuid.UUID
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("not allowed to act on %s %s", e.Resource, e.ID)
}

// ErrNotFound indicates the referenced row does not exist
type ErrNotFound struct {
	Resource string
	ID       uuid.UUID
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrNotEligible indicates the view state does not permit the action
type ErrNotEligible struct {
	State ViewState
}

func (e *ErrNotEligible) Error() string {
	return fmt.Sprintf("action not available in state %s", e.State)
}

// ErrConfirmationRequired indicates a re-application needs explicit confirmation
type ErrConfirmationRequired struct {
	Prompt string
}

func (e *ErrConfirmationRequired) Error() string {
	return "confirmation required: " + e.Prompt
}

// ErrInvalidTransition indicates the status machine has no such edge
type ErrInvalidTransition struct {
	From types.ApplicationStatus
	To   types.ApplicationStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// ErrConflict indicates the row changed between read and compare-and-set
type ErrConflict struct {
	ApplicationID uuid.UUID
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("application %s changed concurrently, reload and retry", e.ApplicationID)
}

// UniqueViolationCode is the SQLSTATE raised for a duplicate key.
const UniqueViolationCode = "23505"

var duplicateMessage = regexp.MustCompile(`(?i)duplicate key|already exists`)

// sqlStater is implemented by pgconn.PgError.
type sqlStater interface {
	SQLState() string
}

// IsUniqueViolation reports whether err is a uniqueness-constraint failure.
// The SQLSTATE wins when available; the message check covers drivers and
// proxies that only forward text.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var st sqlStater
	if errors.As(err, &st) {
		return st.SQLState() == UniqueViolationCode
	}
	return duplicateMessage.MatchString(err.Error())
}
