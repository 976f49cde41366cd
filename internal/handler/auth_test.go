package handler_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/dietcraft/internal/auth"
)

type sessionBody struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	} `json:"user"`
}

func TestAuthHandler_Register(t *testing.T) {
	t.Run("creates account and returns a working token", func(t *testing.T) {
		api := newTestAPI(t)

		rr := api.do(t, request{
			method: http.MethodPost,
			path:   "/api/auth/register",
			body:   `{"email":"ann@example.com","password":"correct-horse","name":"Ann"}`,
		})

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		res := decode[sessionBody](t, rr)
		assert.Equal(t, "User registered successfully", res.Message)
		assert.Equal(t, "ann@example.com", res.User.Email)
		assert.Equal(t, "Ann", res.User.Name)
		assert.Equal(t, "user", res.User.Role)

		session, err := api.tokens.Verify(res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, session.UserID)
	})

	t.Run("duplicate email is 409", func(t *testing.T) {
		api := newTestAPI(t)
		api.register(t, "ann@example.com", "correct-horse")

		rr := api.do(t, request{
			method: http.MethodPost,
			path:   "/api/auth/register",
			body:   `{"email":"ann@example.com","password":"another-pass","name":"Other Ann"}`,
		})

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "duplicate_email", decode[errorBody](t, rr).Error)
	})

	t.Run("short password is 400 with the field", func(t *testing.T) {
		api := newTestAPI(t)

		rr := api.do(t, request{
			method: http.MethodPost,
			path:   "/api/auth/register",
			body:   `{"email":"ann@example.com","password":"short","name":"Ann"}`,
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := decode[errorBody](t, rr)
		assert.Equal(t, "validation_error", body.Error)
		assert.Equal(t, "password", body.Field)
	})

	t.Run("malformed JSON is 400", func(t *testing.T) {
		api := newTestAPI(t)

		rr := api.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: `{"email":`})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "body", decode[errorBody](t, rr).Field)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "ann@example.com", "correct-horse")

	t.Run("valid credentials", func(t *testing.T) {
		rr := api.do(t, request{
			method: http.MethodPost,
			path:   "/api/auth/login",
			body:   `{"email":"ann@example.com","password":"correct-horse"}`,
		})

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		res := decode[sessionBody](t, rr)
		assert.NotEmpty(t, res.AccessToken)
		assert.Equal(t, "ann@example.com", res.User.Email)
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		rr := api.do(t, request{
			method: http.MethodPost,
			path:   "/api/auth/login",
			body:   `{"email":"ann@example.com","password":"wrong-horse"}`,
		})

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "invalid_credentials", decode[errorBody](t, rr).Error)
	})

	t.Run("unknown email is 404", func(t *testing.T) {
		rr := api.do(t, request{
			method: http.MethodPost,
			path:   "/api/auth/login",
			body:   `{"email":"nobody@example.com","password":"correct-horse"}`,
		})

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", decode[errorBody](t, rr).Error)
	})
}

func TestAuthHandler_Me(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "ann@example.com", "correct-horse")

	t.Run("bearer token", func(t *testing.T) {
		rr := api.do(t, request{method: http.MethodGet, path: "/api/auth/user", token: token})

		require.Equal(t, http.StatusOK, rr.Code)
		res := decode[sessionBody](t, rr)
		assert.Equal(t, "ann@example.com", res.User.Email)
	})

	t.Run("session cookie", func(t *testing.T) {
		rr := api.do(t, request{
			method:  http.MethodGet,
			path:    "/api/auth/user",
			cookies: []*http.Cookie{{Name: auth.SessionCookie, Value: token}},
		})

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("no token is 401", func(t *testing.T) {
		rr := api.do(t, request{method: http.MethodGet, path: "/api/auth/user"})

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "unauthorized", decode[errorBody](t, rr).Error)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "ann@example.com", "correct-horse")

	rr := api.do(t, request{method: http.MethodPost, path: "/api/auth/logout", token: token})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Successfully logged out", decode[struct {
		Message string `json:"message"`
	}](t, rr).Message)

	cleared := findCookie(rr, auth.SessionCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	// The token itself is revoked, not only the cookie.
	rr = api.do(t, request{method: http.MethodGet, path: "/api/auth/user", token: token})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "ann@example.com", "correct-horse")

	t.Run("wrong current password", func(t *testing.T) {
		rr := api.do(t, request{
			method: http.MethodPut,
			path:   "/api/auth/password",
			token:  token,
			body:   `{"current_password":"nope-nope","new_password":"battery-staple"}`,
		})

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("changes the password", func(t *testing.T) {
		rr := api.do(t, request{
			method: http.MethodPut,
			path:   "/api/auth/password",
			token:  token,
			body:   `{"current_password":"correct-horse","new_password":"battery-staple"}`,
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = api.do(t, request{
			method: http.MethodPost,
			path:   "/api/auth/login",
			body:   `{"email":"ann@example.com","password":"battery-staple"}`,
		})
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "ann@example.com", "correct-horse")

	// Step 1: request a code.
	rr := api.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/reset-password",
		body:   `{"email":"ann@example.com"}`,
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	knownMessage := decode[errorBody](t, rr).Message
	code := api.mail.lastCode(t)
	assert.Len(t, code, auth.ResetCodeDigits)

	// Step 2: check it.
	rr = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/verify-otp",
		body:   `{"email":"ann@example.com","otp":"` + code + `"}`,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[map[string]bool](t, rr)["valid"])

	rr = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/verify-otp",
		body:   `{"email":"ann@example.com","otp":"not-it"}`,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[map[string]bool](t, rr)["valid"])

	// Step 3: use it.
	rr = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/reset-password/" + code,
		body:   `{"email":"ann@example.com","new_password":"battery-staple"}`,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   `{"email":"ann@example.com","password":"battery-staple"}`,
	})
	assert.Equal(t, http.StatusOK, rr.Code)

	// A used code does not work twice.
	rr = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/reset-password/" + code,
		body:   `{"email":"ann@example.com","new_password":"another-one"}`,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	t.Run("unknown email gets the same answer and no mail", func(t *testing.T) {
		before := api.mail.count()

		rr := api.do(t, request{
			method: http.MethodPost,
			path:   "/api/auth/reset-password",
			body:   `{"email":"nobody@example.com"}`,
		})

		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Equal(t, knownMessage, decode[errorBody](t, rr).Message)
		assert.Equal(t, before, api.mail.count())
	})
}

func TestAuthHandler_ProviderLogin(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, request{method: http.MethodGet, path: "/api/auth/github"})

	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	state := findCookie(rr, "oauth_state")
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)

	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "provider.test", location.Host)
	assert.Equal(t, state.Value, location.Query().Get("state"))
}

func TestAuthHandler_ProviderCallback(t *testing.T) {
	// startFlow runs the login step and returns the state cookie.
	startFlow := func(t *testing.T, api *testAPI) *http.Cookie {
		t.Helper()
		rr := api.do(t, request{method: http.MethodGet, path: "/api/auth/github"})
		c := findCookie(rr, "oauth_state")
		require.NotNil(t, c)
		return c
	}

	redirect := func(t *testing.T, rr interface{ Header() http.Header }) url.Values {
		t.Helper()
		location, err := url.Parse(rr.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, frontendURL+"/login", location.Scheme+"://"+location.Host+location.Path)
		return location.Query()
	}

	t.Run("success sets the session and redirects with the token", func(t *testing.T) {
		api := newTestAPI(t)
		state := startFlow(t, api)

		rr := api.do(t, request{
			method:  http.MethodGet,
			path:    "/api/auth/github/callback?code=good-code&state=" + state.Value,
			cookies: []*http.Cookie{state},
		})

		require.Equal(t, http.StatusSeeOther, rr.Code)
		token := redirect(t, rr).Get("token")
		require.NotEmpty(t, token)

		session := findCookie(rr, auth.SessionCookie)
		require.NotNil(t, session)
		assert.Equal(t, token, session.Value)

		me := api.do(t, request{method: http.MethodGet, path: "/api/auth/user", token: token})
		require.Equal(t, http.StatusOK, me.Code)
		assert.Equal(t, "octo@example.com", decode[sessionBody](t, me).User.Email)
	})

	tests := []struct {
		name   string
		query  func(state string) string
		cookie bool
	}{
		{"state mismatch", func(string) string { return "?code=good-code&state=forged" }, true},
		{"no state cookie", func(s string) string { return "?code=good-code&state=" + s }, false},
		{"user denied access", func(s string) string { return "?error=access_denied&state=" + s }, true},
		{"exchange fails", func(s string) string { return "?code=bad-code&state=" + s }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			state := startFlow(t, api)

			req := request{method: http.MethodGet, path: "/api/auth/github/callback" + tt.query(state.Value)}
			if tt.cookie {
				req.cookies = []*http.Cookie{state}
			}
			rr := api.do(t, req)

			require.Equal(t, http.StatusSeeOther, rr.Code)
			q := redirect(t, rr)
			assert.Equal(t, "github_oauth_failed", q.Get("error"))
			assert.Empty(t, q.Get("token"))
			assert.Nil(t, findCookie(rr, auth.SessionCookie))
		})
	}
}
