package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/dietcraft/internal/auth"
	"github.com/sakif/dietcraft/internal/handler"
	"github.com/sakif/dietcraft/internal/model"
	"github.com/sakif/dietcraft/internal/questionnaire"
	sqliteRepo "github.com/sakif/dietcraft/internal/repository/sqlite"
	"github.com/sakif/dietcraft/internal/service"
)

const frontendURL = "http://frontend.test"

// =========================================================================
// TEST DOUBLES
// =========================================================================

// outbox records every mail instead of sending it.
type outbox struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	to, subject, body string
}

func (o *outbox) Send(_ context.Context, to, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

// lastCode pulls the reset code out of the most recent mail.
func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no mail was sent")

	body := o.sent[len(o.sent)-1].body
	_, rest, ok := strings.Cut(body, "is: ")
	require.True(t, ok, "unexpected mail body %q", body)
	code, _, _ := strings.Cut(rest, "\n")
	return code
}

// revocationList is an in-memory stand-in for the Redis revocation list.
type revocationList struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (l *revocationList) Revoke(_ context.Context, tokenID string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[tokenID] = true
	return nil
}

func (l *revocationList) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.revoked[tokenID], nil
}

// fakeProvider accepts the code "good-code" and nothing else.
type fakeProvider struct {
	identity auth.Identity
}

func (p *fakeProvider) Name() string { return p.identity.Provider }

func (p *fakeProvider) AuthURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*auth.Identity, error) {
	if code != "good-code" {
		return nil, errors.New("bad verification code")
	}
	id := p.identity
	return &id, nil
}

// =========================================================================
// FIXTURE
// =========================================================================

// testAPI is the API over a fresh in-memory SQLite store, routed the same
// way the server routes it.
type testAPI struct {
	router http.Handler
	tokens *auth.TokenService
	mail   *outbox
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mail := &outbox{}
	revoked := &revocationList{revoked: make(map[string]bool)}
	github := &fakeProvider{identity: auth.Identity{
		Provider:   model.ProviderGitHub,
		ExternalID: "583231",
		Email:      "octo@example.com",
		Name:       "The Octocat",
	}}

	authService := service.NewAuthService(store, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), mail, revoked, logger)
	authHandler := handler.NewAuthHandler(authService, []auth.IdentityProvider{github},
		handler.AuthConfig{FrontendURL: frontendURL}, logger)
	profileHandler := handler.NewProfileHandler(service.NewProfileService(store, logger), logger)
	questionnaireHandler := handler.NewQuestionnaireHandler(
		service.NewAssessmentService(questionnaire.New(), logger), logger)
	mealPlanHandler := handler.NewMealPlanHandler(service.NewMealPlanService(store, store, logger), logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/reset-password", authHandler.HandleResetRequest)
		r.Post("/auth/verify-otp", authHandler.HandleVerifyOTP)
		r.Post("/auth/reset-password/{code}", authHandler.HandleResetComplete)
		r.Get("/auth/github", authHandler.HandleProviderLogin(model.ProviderGitHub))
		r.Get("/auth/github/callback", authHandler.HandleProviderCallback(model.ProviderGitHub))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens, revoked, logger))
			r.Get("/auth/user", authHandler.HandleMe)
			r.Post("/auth/logout", authHandler.HandleLogout)
			r.Put("/auth/password", authHandler.HandleChangePassword)

			r.Post("/profile/health", profileHandler.HandleCreate)
			r.Get("/profile/health", profileHandler.HandleGet)
			r.Put("/profile/health", profileHandler.HandleUpdate)
			r.Get("/profile/questionnaire", questionnaireHandler.HandleGenerate)
			r.Post("/profile/questionnaire/analyze", questionnaireHandler.HandleAnalyze)

			r.Post("/meal-plan", mealPlanHandler.HandleCreate)
			r.Get("/meal-plan", mealPlanHandler.HandleList)
			r.Get("/meal-plan/targets", mealPlanHandler.HandleTargets)
			r.Get("/meal-plan/{id}", mealPlanHandler.HandleGet)
		})
	})

	return &testAPI{router: r, tokens: tokens, mail: mail}
}

// request is one call to the API. token, when set, goes in a Bearer header.
type request struct {
	method  string
	path    string
	body    string
	token   string
	cookies []*http.Cookie
}

func (a *testAPI) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if req.body != "" {
		body = bytes.NewBufferString(req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, r)
	return rr
}

// register creates an account and returns its access token.
func (a *testAPI) register(t *testing.T, email, password string) string {
	t.Helper()

	rr := a.do(t, request{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   `{"email":"` + email + `","password":"` + password + `","name":"Test User"}`,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var res struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.NotEmpty(t, res.AccessToken)
	return res.AccessToken
}

// decode reads the JSON body of rr into a T.
func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
