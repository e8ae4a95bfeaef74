// Package types provides type definitions for structured data shared across the internship portal.
package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// RegisterRequest creates a student, company or professor account.
type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,min=1"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     Role   `json:"role" validate:"required,oneof=student company professor"`
}

// LoginRequest represents the login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// User is the public view of an account; the password hash never leaves the db package.
type User struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResponse represents the login/register response with user data and authentication token.
type LoginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// UpdatePasswordRequest represents a password update request.
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// validate is shared so struct metadata is parsed once.
var validate = validator.New()

// Validate checks the registration fields and the requested role.
func (r *RegisterRequest) Validate() error {
	return validate.Struct(r)
}

// Validate checks that both credentials are present.
func (r *LoginRequest) Validate() error {
	return validate.Struct(r)
}

// Validate checks the new password length.
func (r *UpdatePasswordRequest) Validate() error {
	return validate.Struct(r)
}
