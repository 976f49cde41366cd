package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrIncompleteIdentity = errors.New("incomplete identity")
	ErrProvider           = errors.New("identity provider failure")

	// Refinements: errors.Is matches both the refinement and its parent.
	ErrDuplicateEmail  = fmt.Errorf("duplicate email: %w", ErrConflict)
	ErrProfileNotFound = fmt.Errorf("health profile %w", ErrNotFound)
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// DuplicateEmail is returned when a user with the same email already exists.
func DuplicateEmail(email string) *AppError {
	return &AppError{
		Err:     ErrDuplicateEmail,
		Message: fmt.Sprintf("email %s is already registered", email),
		Field:   "email",
	}
}

// ProfileNotFound is returned when an operation needs a health profile the
// user has not submitted yet.
func ProfileNotFound(userID string) *AppError {
	return &AppError{
		Err:     ErrProfileNotFound,
		Message: fmt.Sprintf("health profile not found for user %s", userID),
	}
}

func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid credentials",
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// IncompleteIdentity is returned when an identity provider omits a field the
// account linking flow requires.
func IncompleteIdentity(provider, field string) *AppError {
	return &AppError{
		Err:     ErrIncompleteIdentity,
		Message: fmt.Sprintf("%s identity is missing %s", provider, field),
		Field:   field,
	}
}

// ProviderFailure wraps a failed exchange with an external identity provider.
// The cause is kept for logging; the message is safe to show to clients.
func ProviderFailure(provider string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %s: %w", ErrProvider, provider, cause),
		Message: fmt.Sprintf("%s login failed", provider),
	}
}
