package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// SessionCookie is the cookie a browser carries its session token in after
// an identity provider redirect.
const SessionCookie = "token"

// contextKey is an unexported type used for context keys in this package.
//
// context.WithValue accepts any key. A plain string like "userID" could be
// read or shadowed by any package that knows the string; a package-private
// type means only this package can create the key.
type contextKey string

const sessionKey contextKey = "session"

// RevocationChecker reports whether a session token id has been revoked
// (by logout). cache.Revocations implements it.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RequireAuth is a middleware that enforces authentication on protected
// routes.
//
// It reads the session token from "Authorization: Bearer <jwt>" or, when
// that header is absent, from the "token" cookie. The token must verify and
// must not be revoked; the session is then stored in the request context.
// Anything else ends the request with 401.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
//
// revoked may be nil, in which case no revocation check is made. When the
// revocation list cannot be reached the request is let through and a
// warning is logged: the token is still signed and unexpired.
func RequireAuth(tokens *TokenService, revoked RevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromRequest(r)
			if raw == "" {
				writeUnauthorized(w, "authentication required")
				return
			}

			session, err := tokens.Verify(raw)
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}

			if revoked != nil {
				isRevoked, err := revoked.IsRevoked(r.Context(), session.TokenID)
				if err != nil {
					logger.Warn("revocation check failed, allowing request",
						slog.String("userID", session.UserID),
						slog.String("error", err.Error()),
					)
				}
				if isRevoked {
					writeUnauthorized(w, "session has been revoked")
					return
				}
			}

			ctx := WithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithSession returns a copy of ctx carrying s. Handlers read it back with
// SessionFromContext or UserIDFromContext; tests use it to fake a login.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the verified session of the request, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context. Returns ("", false) outside a RequireAuth-protected route.
//
// Usage in handlers:
//
//	userID, ok := auth.UserIDFromContext(r.Context())
//	if !ok {
//	    // not authenticated
//	}
func UserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok || s.UserID == "" {
		return "", false
	}
	return s.UserID, true
}

// tokenFromRequest prefers the Authorization header over the cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}

	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		// http.ErrNoCookie: anonymous request
		return ""
	}
	return cookie.Value
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}
