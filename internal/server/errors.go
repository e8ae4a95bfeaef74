package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/internship-portal/internal/catalog"
	"github.com/jonathan/internship-portal/internal/lifecycle"
	"github.com/jonathan/internship-portal/internal/server/middleware"
	"github.com/jonathan/internship-portal/internal/storage"
)

// ErrEmailAlreadyExists indicates email is already registered
type ErrEmailAlreadyExists struct {
	Email string
}

func (e *ErrEmailAlreadyExists) Error() string {
	return fmt.Sprintf("email already registered: %s", e.Email)
}

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid email or password"
}

// ErrUserNotFound indicates user was not found
type ErrUserNotFound struct {
	UserID uuid.UUID
}

func (e *ErrUserNotFound) Error() string {
	return fmt.Sprintf("user not found: %s", e.UserID)
}

// ErrPasswordMismatch indicates current password is incorrect
type ErrPasswordMismatch struct{}

func (e *ErrPasswordMismatch) Error() string {
	return "current password is incorrect"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrStorageDisabled indicates uploads were requested but no object store is configured
type ErrStorageDisabled struct{}

func (e *ErrStorageDisabled) Error() string {
	return "document storage is not configured"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		unauthenticated *lifecycle.ErrUnauthenticated
		forbidden       *lifecycle.ErrForbidden
		notFound        *lifecycle.ErrNotFound
		notEligible     *lifecycle.ErrNotEligible
		confirmation    *lifecycle.ErrConfirmationRequired
		transition      *lifecycle.ErrInvalidTransition
		conflict        *lifecycle.ErrConflict
		unsupported     *storage.ErrUnsupportedType
		tooLarge        *storage.ErrTooLarge
	)

	switch err.(type) {
	case *ErrEmailAlreadyExists:
		return http.StatusConflict
	case *ErrInvalidCredentials, *ErrPasswordMismatch:
		return http.StatusUnauthorized
	case *ErrUserNotFound:
		return http.StatusNotFound
	case *ErrValidation:
		return http.StatusBadRequest
	case *ErrStorageDisabled:
		return http.StatusServiceUnavailable
	}

	switch {
	case errors.As(err, &unauthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &notEligible), errors.As(err, &transition), errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &confirmation):
		return http.StatusPreconditionRequired
	case errors.Is(err, catalog.ErrNoProgram):
		return http.StatusUnprocessableEntity
	case errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body with the status HTTPStatus picks.
// Unknown failures carry the raw message so support can read the store error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	body := map[string]any{"error": err.Error()}

	var (
		unauthenticated *lifecycle.ErrUnauthenticated
		notEligible     *lifecycle.ErrNotEligible
		confirmation    *lifecycle.ErrConfirmationRequired
		unsupported     *storage.ErrUnsupportedType
	)
	switch {
	case errors.As(err, &unauthenticated):
		middleware.Unauthorized(w)
		return
	case errors.As(err, &notEligible):
		body["state"] = notEligible.State
		body["action"] = notEligible.State.Action()
	case errors.As(err, &confirmation):
		body["confirmation_prompt"] = confirmation.Prompt
	case errors.Is(err, catalog.ErrNoProgram):
		body["message"] = catalog.NoProgramMessage
	case errors.As(err, &unsupported):
		body["message"] = unsupported.Message
	}

	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	s.jsonResponse(w, status, body)
}
