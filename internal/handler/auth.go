package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/auth"
	"github.com/sakif/dietcraft/internal/model"
	"github.com/sakif/dietcraft/internal/service"
)

const oauthStateCookie = "oauth_state"

// AuthHandler serves registration, login, sessions, password management
// and the identity provider login flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister / HandleLogin → local accounts, return a token
//   - HandleProviderLogin / HandleProviderCallback → external login
//   - HandleMe / HandleLogout / HandleChangePassword → the current session
//   - HandleResetRequest / HandleVerifyOTP / HandleResetComplete → reset
type AuthHandler struct {
	auth      *service.AuthService
	providers map[string]auth.IdentityProvider
	cfg       AuthConfig
	logger    *slog.Logger
}

// AuthConfig holds the browser-facing settings of the provider flow.
type AuthConfig struct {
	// FrontendURL is where provider callbacks redirect to, as
	// FrontendURL/login?token=... or FrontendURL/login?error=....
	FrontendURL string
	// SecureCookies marks cookies Secure (HTTPS only).
	SecureCookies bool
}

// NewAuthHandler creates an AuthHandler. providers holds the configured
// identity providers by name; a provider left out is simply not offered.
func NewAuthHandler(
	authService *service.AuthService,
	providers []auth.IdentityProvider,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthHandler {
	byName := make(map[string]auth.IdentityProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthHandler{
		auth:      authService,
		providers: byName,
		cfg:       cfg,
		logger:    logger,
	}
}

// Providers returns the names of the configured identity providers.
func (h *AuthHandler) Providers() []string {
	names := make([]string, 0, len(h.providers))
	for _, p := range []string{model.ProviderGitHub, model.ProviderGoogle} {
		if _, ok := h.providers[p]; ok {
			names = append(names, p)
		}
	}
	return names
}

// userResponse is the public view of a user.
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

type sessionResponse struct {
	Message     string       `json:"message,omitempty"`
	AccessToken string       `json:"access_token"`
	User        userResponse `json:"user"`
}

// =========================================================================
// LOCAL ACCOUNTS
// =========================================================================

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// HandleRegister creates a local account.
//
// HTTP: POST /api/auth/register
// Body: {"email", "password", "name", "role"?}
// 201 with an access token; 409 when the email is taken.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		Message:     "User registered successfully",
		AccessToken: res.Token,
		User:        toUserResponse(res.User),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin exchanges email and password for an access token.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken: res.Token,
		User:        toUserResponse(res.User),
	})
}

// =========================================================================
// CURRENT SESSION
// =========================================================================

// HandleMe returns the currently authenticated user.
//
// HTTP: GET /api/auth/user
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]userResponse{"user": toUserResponse(user)})
}

// HandleLogout ends the current session.
//
// HTTP: POST /api/auth/logout
// Auth: Required
//
// The token id is put on the revocation list until the token expires, so a
// copy of the token kept elsewhere stops working too. The cookie is
// cleared for browsers.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	if err := h.auth.Logout(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, h.cookie(auth.SessionCookie, "", -1))
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Successfully logged out"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// HandleChangePassword sets a new password for the logged-in user.
//
// HTTP: PUT /api/auth/password
// Auth: Required
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated"})
}

// =========================================================================
// PASSWORD RESET
// =========================================================================

type resetRequest struct {
	Email string `json:"email"`
}

// resetRequestedMessage is the same whether or not the account exists.
const resetRequestedMessage = "If an account exists for this email, a password reset code has been sent"

// HandleResetRequest emails a reset code.
//
// HTTP: POST /api/auth/reset-password
// Body: {"email"}
//
// The response is 202 with the same message for known and unknown emails,
// so the endpoint cannot be used to discover accounts.
func (h *AuthHandler) HandleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.auth.InitiatePasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, MessageResponse{Message: resetRequestedMessage})
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// HandleVerifyOTP checks a reset code without consuming it, so a client can
// confirm the code before asking for the new password.
//
// HTTP: POST /api/auth/verify-otp
// Body: {"email", "otp"}
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	valid, err := h.auth.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

type resetCompleteRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"new_password"`
}

// HandleResetComplete sets a new password with a reset code.
//
// HTTP: POST /api/auth/reset-password/{code}
// Body: {"email", "new_password"}
func (h *AuthHandler) HandleResetComplete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req resetCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.auth.CompletePasswordReset(r.Context(), req.Email, code, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successful"})
}

// =========================================================================
// IDENTITY PROVIDERS
// =========================================================================

// HandleProviderLogin returns the handler that redirects the browser to
// provider's authorization page.
//
// HTTP: GET /api/auth/{provider}
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived cookie and into the
// authorization URL. The callback only proceeds when the two match, which
// proves the flow was started by this browser on this server.
func (h *AuthHandler) HandleProviderLogin(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.providers[provider]
		if !ok {
			http.NotFound(w, r)
			return
		}

		state := xid.New().String()
		http.SetCookie(w, h.cookie(oauthStateCookie, state, 600)) // 10 minutes

		http.Redirect(w, r, p.AuthURL(state), http.StatusTemporaryRedirect)
	}
}

// HandleProviderCallback returns the handler that completes a provider
// login.
//
// HTTP: GET /api/auth/{provider}/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code and link the identity to a user
//  3. Set the session cookie and redirect to FrontendURL/login?token=<jwt>
//
// Any failure redirects to FrontendURL/login?error=<provider>_oauth_failed;
// the details are only logged.
func (h *AuthHandler) HandleProviderCallback(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := h.providers[provider]
		if !ok {
			http.NotFound(w, r)
			return
		}

		fail := func(reason string, attrs ...any) {
			h.logger.Warn("provider callback failed",
				append([]any{slog.String("provider", provider), slog.String("reason", reason)}, attrs...)...,
			)
			h.redirectToFrontend(w, r, "error", provider+"_oauth_failed")
		}

		// --- Step 1: Validate CSRF state ---
		stateCookie, err := r.Cookie(oauthStateCookie)
		if err != nil || stateCookie.Value == "" {
			fail("missing state cookie")
			return
		}
		// The state cookie is single-use.
		http.SetCookie(w, h.cookie(oauthStateCookie, "", -1))

		if r.URL.Query().Get("state") != stateCookie.Value {
			fail("state mismatch")
			return
		}

		// The user denied authorization at the provider.
		if errParam := r.URL.Query().Get("error"); errParam != "" {
			fail("authorization denied", slog.String("error", errParam))
			return
		}

		// --- Step 2: Exchange and link ---
		res, err := h.auth.CompleteExternalLogin(r.Context(), p, r.URL.Query().Get("code"))
		if err != nil {
			fail("login failed", slog.String("error", err.Error()))
			return
		}

		h.logger.Info("user authenticated via identity provider",
			slog.String("userID", res.User.ID),
			slog.String("provider", provider),
		)

		// --- Step 3: Session cookie + redirect ---
		http.SetCookie(w, h.cookie(auth.SessionCookie, res.Token, int(auth.SessionTTL/time.Second)))
		h.redirectToFrontend(w, r, "token", res.Token)
	}
}

func (h *AuthHandler) redirectToFrontend(w http.ResponseWriter, r *http.Request, key, value string) {
	target := h.cfg.FrontendURL + "/login?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// cookie builds an HttpOnly, SameSite=Lax cookie. maxAge -1 deletes it.
//
// HttpOnly = JavaScript cannot read this cookie (XSS protection).
// SameSite=Lax = sent on top-level navigations (the provider redirect) but
// not on cross-site POSTs.
func (h *AuthHandler) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
