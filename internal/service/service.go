// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the store
//
// Services accept plain Go values and return domain types plus errors from
// the apperror package. They never see an *http.Request, so the same rules
// apply whether they are called from a handler or a test.
//
// DEPENDENCY INJECTION:
// Each service takes repository interfaces, not *sqlite.DB or *mongodb.Store.
// server.New decides which backend to pass; tests pass in-memory fakes.
package service

import (
	"net/mail"
	"strings"

	"github.com/sakif/dietcraft/internal/apperror"
)

// MinPasswordLength is the shortest password accepted on registration,
// reset and change. The upper limit is bcrypt's 72 bytes.
const MinPasswordLength = 8

// validateEmail accepts a bare address ("ann@example.com"), not the
// display-name forms net/mail also understands.
func validateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "email is not a valid address")
	}
	return nil
}

func validatePassword(field, password string) error {
	if strings.TrimSpace(password) == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed(field, field+" must be at least 8 characters")
	}
	return nil
}
