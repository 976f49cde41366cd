// Package model defines the data structures used throughout the application.
package model

import (
	"crypto/subtle"
	"time"
)

// Roles a user can hold. The role is a plain string tag in storage.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity providers supported by the account linking flow.
const (
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

// User represents an account.
//
// A user can have a local password, an external identity, or both. An empty
// PasswordHash means the account was created through an identity provider
// and has never set a password; stores persist it as NULL.
//
// OAuthProvider and OAuthID are either both set or both empty. The pair is
// unique across users, as is Email.
//
// ResetToken / ResetTokenExpires hold the password reset code while a reset
// is in flight and are cleared once it has been used.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Name              string     `json:"name"`
	Role              string     `json:"role"`
	Active            bool       `json:"active"`
	OAuthProvider     string     `json:"oauth_provider,omitempty"`
	OAuthID           string     `json:"-"`
	ResetToken        string     `json:"-"`
	ResetTokenExpires *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasPassword reports whether the user can log in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// ResetTokenValid reports whether code matches the stored reset code and
// the code has not expired at now.
func (u *User) ResetTokenValid(code string, now time.Time) bool {
	if u.ResetToken == "" || u.ResetTokenExpires == nil {
		return false
	}
	match := subtle.ConstantTimeCompare([]byte(u.ResetToken), []byte(code)) == 1
	return match && now.Before(*u.ResetTokenExpires)
}
