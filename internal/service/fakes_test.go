package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/auth"
	"github.com/sakif/dietcraft/internal/model"
	"github.com/sakif/dietcraft/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore is an in-memory repository.Store. It enforces the same unique
// keys as the real backends (email, provider identity, one profile per
// user) so the services' reliance on them is exercised. Values are copied
// in and out so tests cannot reach into its state by accident.

type fakeStore struct {
	users    map[string]*model.User
	profiles map[string]*model.HealthProfile // keyed by user id
	plans    []*model.MealPlan               // insertion order

	resetAttempts map[string]int // keyed by user id

	nextID int
	// set to a non-nil error to simulate a store failure
	err error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*model.User),
		profiles:      make(map[string]*model.HealthProfile),
		resetAttempts: make(map[string]int),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	if f.err != nil {
		return f.err
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.DuplicateEmail(u.Email)
		}
		if u.OAuthID != "" && existing.OAuthProvider == u.OAuthProvider && existing.OAuthID == u.OAuthID {
			return apperror.Conflict("user identity", u.OAuthID)
		}
	}
	u.ID = f.id("user")
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeStore) find(match func(*model.User) bool, what string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", what)
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }, id)
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email == email }, email)
}

func (f *fakeStore) GetUserByExternalID(_ context.Context, provider, externalID string) (*model.User, error) {
	return f.find(func(u *model.User) bool {
		return u.OAuthProvider == provider && u.OAuthID == externalID
	}, externalID)
}

func (f *fakeStore) update(userID string, change func(*model.User)) error {
	if f.err != nil {
		return f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	change(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) LinkExternalID(_ context.Context, userID, provider, externalID string) error {
	return f.update(userID, func(u *model.User) {
		u.OAuthProvider = provider
		u.OAuthID = externalID
	})
}

func (f *fakeStore) SetResetToken(_ context.Context, userID, code string, expires time.Time) error {
	return f.update(userID, func(u *model.User) {
		u.ResetToken = code
		u.ResetTokenExpires = &expires
		f.resetAttempts[u.ID] = 0
	})
}

func (f *fakeStore) clearReset(u *model.User) {
	u.ResetToken = ""
	u.ResetTokenExpires = nil
	delete(f.resetAttempts, u.ID)
}

func (f *fakeStore) UpdatePassword(_ context.Context, userID, hash string) error {
	return f.update(userID, func(u *model.User) {
		u.PasswordHash = hash
		f.clearReset(u)
	})
}

func (f *fakeStore) ConsumeResetToken(_ context.Context, userID, code string, now time.Time, hash string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	u, ok := f.users[userID]
	if !ok || !u.ResetTokenValid(code, now) {
		return false, nil
	}
	u.PasswordHash = hash
	f.clearReset(u)
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *fakeStore) RecordResetFailure(_ context.Context, userID string, maxAttempts int) error {
	if f.err != nil {
		return f.err
	}
	u, ok := f.users[userID]
	if !ok || u.ResetToken == "" {
		return nil
	}
	f.resetAttempts[userID]++
	if f.resetAttempts[userID] >= maxAttempts {
		f.clearReset(u)
	}
	return nil
}

func (f *fakeStore) SaveProfile(_ context.Context, p *model.HealthProfile) error {
	if f.err != nil {
		return f.err
	}
	if existing, ok := f.profiles[p.UserID]; ok {
		p.ID = existing.ID
	} else {
		p.ID = f.id("profile")
	}
	stored := *p
	f.profiles[p.UserID] = &stored
	return nil
}

func (f *fakeStore) GetProfileByUserID(_ context.Context, userID string) (*model.HealthProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, apperror.ProfileNotFound(userID)
	}
	c := *p
	return &c, nil
}

func (f *fakeStore) CreateMealPlan(_ context.Context, plan *model.MealPlan) error {
	if f.err != nil {
		return f.err
	}
	plan.ID = f.id("plan")
	plan.CreatedAt = time.Now().UTC()
	stored := *plan
	f.plans = append(f.plans, &stored)
	return nil
}

func (f *fakeStore) GetMealPlan(_ context.Context, id string) (*model.MealPlan, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.plans {
		if p.ID == id {
			c := *p
			return &c, nil
		}
	}
	return nil, apperror.NotFound("meal plan", id)
}

func (f *fakeStore) ListMealPlans(_ context.Context, userID string, opts repository.ListOptions) ([]model.MealPlan, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []model.MealPlan{}
	for i := len(f.plans) - 1; i >= 0; i-- {
		if f.plans[i].UserID == userID {
			out = append(out, *f.plans[i])
		}
	}
	if opts.Offset >= len(out) {
		return []model.MealPlan{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeStore) Close(context.Context) error { return nil }

// =========================================================================
// MOCK COLLABORATORS
// =========================================================================

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

type mockRevoker struct {
	mock.Mock
}

func (m *mockRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	return m.Called(ctx, tokenID, ttl).Error(0)
}

// fakeProvider is an auth.IdentityProvider that returns a fixed identity
// or error without any network.
type fakeProvider struct {
	identity *auth.Identity
	err      error
}

func (p *fakeProvider) Name() string {
	return model.ProviderGitHub
}

func (p *fakeProvider) AuthURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (p *fakeProvider) Exchange(context.Context, string) (*auth.Identity, error) {
	return p.identity, p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable clock for the services' now field.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}
