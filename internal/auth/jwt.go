// Package auth provides credentials and sessions: password hashing,
// signed session tokens, password reset codes, the identity provider
// clients and the HTTP middleware that authenticates requests.
//
// SESSION FLOW:
//  1. Register, Login or an identity provider callback ends in
//     TokenService.Issue, which signs a JWT for the user id.
//  2. The client sends it back as "Authorization: Bearer <jwt>" (API
//     clients) or in the "token" cookie (browser after an OAuth redirect).
//  3. RequireAuth verifies the token, checks the revocation list and puts
//     the user id into the request context.
//
// JWT STRUCTURE:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<user id>","jti":"<token id>","exp":...,"iss":"dietcraft"}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
//
// The token id (jti) exists so a single session can be revoked on logout
// without touching the user's other sessions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/sakif/dietcraft/internal/apperror"
)

const (
	// SessionTTL is how long a session token stays valid.
	SessionTTL = time.Hour

	issuer = "dietcraft"
)

// Session is what a verified token asserts.
type Session struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 session tokens.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; generate one with `openssl rand -hex 32`.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for userID valid for SessionTTL.
func (s *TokenService) Issue(userID string) (string, error) {
	return s.IssueWithTTL(userID, SessionTTL)
}

// IssueWithTTL signs a token with a custom lifetime. A negative ttl yields
// an already expired token, which the tests use.
func (s *TokenService) IssueWithTTL(userID string, ttl time.Duration) (string, error) {
	now := s.now()
	c := jwt.RegisteredClaims{
		ID:        xid.New().String(),
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the
// session the token asserts. Every failure is an apperror.ErrUnauthorized.
//
// WithValidMethods pins HS256 so a token claiming "alg":"none" (or an
// asymmetric algorithm keyed with our secret) is rejected before the key
// function is trusted.
func (s *TokenService) Verify(tokenStr string) (*Session, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.Unauthorized("session expired")
		}
		return nil, apperror.Unauthorized("invalid session token")
	}
	if !token.Valid || c.Subject == "" || c.ExpiresAt == nil {
		return nil, apperror.Unauthorized("invalid session token")
	}

	return &Session{
		UserID:    c.Subject,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
