package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" gives every test a fresh, isolated database that disappears
// when the connection closes. t.Helper() makes failures point at the
// caller's line instead of this helper.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close(context.Background()) })
	return db
}

// createTestUser creates a local-password user and fails the test on error.
func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	user := &model.User{
		Email:        email,
		PasswordHash: "$2a$04$hash",
		Name:         "Test User",
		Active:       true,
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Email:        "ada@example.com",
		PasswordHash: "$2a$04$hash",
		Name:         "Ada",
		Active:       true,
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if user.ID == "" {
		t.Error("CreateUser() did not set user.ID")
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("CreateUser() did not set timestamps")
	}
	if user.Role != model.RoleUser {
		t.Errorf("Role = %q, want default %q", user.Role, model.RoleUser)
	}
}

func TestCreateUser_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "round@example.com")

	found, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}

	if found.Email != "round@example.com" {
		t.Errorf("Email = %q, want %q", found.Email, "round@example.com")
	}
	if found.PasswordHash != "$2a$04$hash" {
		t.Errorf("PasswordHash = %q, want %q", found.PasswordHash, "$2a$04$hash")
	}
	if found.Name != "Test User" || found.Role != model.RoleUser || !found.Active {
		t.Errorf("unexpected user fields: %+v", found)
	}
	if found.OAuthProvider != "" || found.OAuthID != "" {
		t.Errorf("local user should have no external identity, got %q/%q", found.OAuthProvider, found.OAuthID)
	}
	if found.ResetToken != "" || found.ResetTokenExpires != nil {
		t.Error("new user should have no reset code")
	}
	if !found.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", found.CreatedAt, created.CreatedAt)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "dup@example.com")

	err := db.CreateUser(context.Background(), &model.User{Email: "dup@example.com", Name: "Second"})
	if !errors.Is(err, apperror.ErrDuplicateEmail) {
		t.Fatalf("CreateUser() error = %v, want ErrDuplicateEmail", err)
	}
}

func TestCreateUser_EmailIsCaseSensitive(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "case@example.com")

	if err := db.CreateUser(context.Background(), &model.User{Email: "CASE@example.com", Name: "Upper"}); err != nil {
		t.Fatalf("CreateUser() with different case error = %v", err)
	}
}

func TestCreateUser_OAuthOnlyHasNullPassword(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Email:         "octo@example.com",
		Name:          "Octo",
		Active:        true,
		OAuthProvider: model.ProviderGitHub,
		OAuthID:       "42",
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	var isNull bool
	err := db.conn.QueryRowContext(context.Background(),
		`SELECT password_hash IS NULL FROM users WHERE id = ?`, user.ID).Scan(&isNull)
	if err != nil {
		t.Fatalf("reading password_hash: %v", err)
	}
	if !isNull {
		t.Error("password_hash should be stored as NULL for an OAuth-only user")
	}

	found, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.HasPassword() {
		t.Error("OAuth-only user should not have a password after reload")
	}
}

func TestCreateUser_DuplicateExternalID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.User{Email: "a@example.com", OAuthProvider: model.ProviderGitHub, OAuthID: "7"}
	if err := db.CreateUser(ctx, first); err != nil {
		t.Fatalf("CreateUser() first error = %v", err)
	}

	second := &model.User{Email: "b@example.com", OAuthProvider: model.ProviderGitHub, OAuthID: "7"}
	err := db.CreateUser(ctx, second)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUser() error = %v, want ErrConflict", err)
	}
	if errors.Is(err, apperror.ErrDuplicateEmail) {
		t.Error("identity collision must not be reported as a duplicate email")
	}

	// Same external id at a different provider is a different identity.
	third := &model.User{Email: "c@example.com", OAuthProvider: model.ProviderGoogle, OAuthID: "7"}
	if err := db.CreateUser(ctx, third); err != nil {
		t.Fatalf("CreateUser() other provider error = %v", err)
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "lookup@example.com")

	found, err := db.GetUserByEmail(context.Background(), "lookup@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}

	_, err = db.GetUserByEmail(context.Background(), "missing@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByEmail(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByExternalID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{Email: "g@example.com", OAuthProvider: model.ProviderGoogle, OAuthID: "sub-123"}
	if err := db.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	found, err := db.GetUserByExternalID(ctx, model.ProviderGoogle, "sub-123")
	if err != nil {
		t.Fatalf("GetUserByExternalID() error = %v", err)
	}
	if found.ID != user.ID {
		t.Errorf("ID = %q, want %q", found.ID, user.ID)
	}

	_, err = db.GetUserByExternalID(ctx, model.ProviderGitHub, "sub-123")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByExternalID(wrong provider) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// MUTATION TESTS
// =========================================================================

func TestLinkExternalID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "link@example.com")

	if err := db.LinkExternalID(ctx, user.ID, model.ProviderGitHub, "99"); err != nil {
		t.Fatalf("LinkExternalID() error = %v", err)
	}

	found, err := db.GetUserByExternalID(ctx, model.ProviderGitHub, "99")
	if err != nil {
		t.Fatalf("GetUserByExternalID() error = %v", err)
	}
	if found.ID != user.ID {
		t.Errorf("linked ID = %q, want %q", found.ID, user.ID)
	}
	if found.PasswordHash != user.PasswordHash {
		t.Error("linking must keep the local password")
	}
}

func TestLinkExternalID_TakenByAnotherUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")

	if err := db.LinkExternalID(ctx, owner.ID, model.ProviderGitHub, "1"); err != nil {
		t.Fatalf("LinkExternalID(owner) error = %v", err)
	}
	err := db.LinkExternalID(ctx, other.ID, model.ProviderGitHub, "1")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("LinkExternalID(other) error = %v, want ErrConflict", err)
	}
}

func TestLinkExternalID_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	err := db.LinkExternalID(context.Background(), "ghost", model.ProviderGitHub, "1")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("LinkExternalID() error = %v, want ErrNotFound", err)
	}
}

func TestSetResetToken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "reset@example.com")

	expires := time.Now().Add(10 * time.Minute)
	if err := db.SetResetToken(ctx, user.ID, "123456", expires); err != nil {
		t.Fatalf("SetResetToken() error = %v", err)
	}

	found, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.ResetToken != "123456" {
		t.Errorf("ResetToken = %q, want %q", found.ResetToken, "123456")
	}
	if found.ResetTokenExpires == nil || !found.ResetTokenExpires.Equal(expires) {
		t.Errorf("ResetTokenExpires = %v, want %v", found.ResetTokenExpires, expires)
	}
	if !found.ResetTokenValid("123456", time.Now()) {
		t.Error("stored code should validate before expiry")
	}
}

func TestUpdatePassword_ClearsResetToken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "pw@example.com")

	if err := db.SetResetToken(ctx, user.ID, "654321", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SetResetToken() error = %v", err)
	}
	if err := db.UpdatePassword(ctx, user.ID, "$2a$04$newhash"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	found, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.PasswordHash != "$2a$04$newhash" {
		t.Errorf("PasswordHash = %q, want new hash", found.PasswordHash)
	}
	if found.ResetToken != "" || found.ResetTokenExpires != nil {
		t.Errorf("reset code not cleared: %q %v", found.ResetToken, found.ResetTokenExpires)
	}
}

func TestConsumeResetToken_SingleUse(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "consume@example.com")
	now := time.Now()

	if err := db.SetResetToken(ctx, user.ID, "123456", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("SetResetToken() error = %v", err)
	}

	ok, err := db.ConsumeResetToken(ctx, user.ID, "123456", now, "$2a$04$first")
	if err != nil {
		t.Fatalf("ConsumeResetToken() error = %v", err)
	}
	if !ok {
		t.Fatal("first ConsumeResetToken() = false, want true")
	}

	ok, err = db.ConsumeResetToken(ctx, user.ID, "123456", now, "$2a$04$second")
	if err != nil {
		t.Fatalf("ConsumeResetToken() error = %v", err)
	}
	if ok {
		t.Error("second ConsumeResetToken() = true, want false")
	}

	found, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.PasswordHash != "$2a$04$first" {
		t.Errorf("PasswordHash = %q, want the first hash", found.PasswordHash)
	}
	if found.ResetToken != "" || found.ResetTokenExpires != nil {
		t.Errorf("reset code not cleared: %q %v", found.ResetToken, found.ResetTokenExpires)
	}
}

func TestConsumeResetToken_Rejects(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "reject@example.com")
	now := time.Now()

	if err := db.SetResetToken(ctx, user.ID, "123456", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("SetResetToken() error = %v", err)
	}

	tests := []struct {
		name   string
		userID string
		code   string
		now    time.Time
	}{
		{"wrong code", user.ID, "654321", now},
		{"expired", user.ID, "123456", now.Add(10*time.Minute + time.Second)},
		{"at expiry", user.ID, "123456", now.Add(10 * time.Minute)},
		{"unknown user", "ghost", "123456", now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := db.ConsumeResetToken(ctx, tt.userID, tt.code, tt.now, "$2a$04$new")
			if err != nil {
				t.Fatalf("ConsumeResetToken() error = %v", err)
			}
			if ok {
				t.Error("ConsumeResetToken() = true, want false")
			}
		})
	}

	found, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.PasswordHash != "$2a$04$hash" {
		t.Errorf("PasswordHash = %q, want it unchanged", found.PasswordHash)
	}
}

func TestRecordResetFailure_ClearsCodeAtLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "guess@example.com")
	expires := time.Now().Add(10 * time.Minute)

	if err := db.SetResetToken(ctx, user.ID, "123456", expires); err != nil {
		t.Fatalf("SetResetToken() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := db.RecordResetFailure(ctx, user.ID, 3); err != nil {
			t.Fatalf("RecordResetFailure() error = %v", err)
		}
	}

	found, _ := db.GetUserByID(ctx, user.ID)
	if found.ResetToken != "123456" {
		t.Fatalf("code cleared after 2 of 3 failures")
	}

	// A fresh code starts a fresh count.
	if err := db.SetResetToken(ctx, user.ID, "222222", expires); err != nil {
		t.Fatalf("SetResetToken() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := db.RecordResetFailure(ctx, user.ID, 3); err != nil {
			t.Fatalf("RecordResetFailure() error = %v", err)
		}
	}
	found, _ = db.GetUserByID(ctx, user.ID)
	if found.ResetToken != "222222" {
		t.Fatalf("code cleared before the limit; count was not reset")
	}

	if err := db.RecordResetFailure(ctx, user.ID, 3); err != nil {
		t.Fatalf("RecordResetFailure() error = %v", err)
	}
	found, _ = db.GetUserByID(ctx, user.ID)
	if found.ResetToken != "" || found.ResetTokenExpires != nil {
		t.Errorf("code still set after 3 failures: %q %v", found.ResetToken, found.ResetTokenExpires)
	}
}

func TestRecordResetFailure_NoCode(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "nocode@example.com")

	if err := db.RecordResetFailure(context.Background(), user.ID, 3); err != nil {
		t.Errorf("RecordResetFailure() error = %v, want nil", err)
	}
}

func TestUpdatePassword_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdatePassword(context.Background(), "ghost", "$2a$04$x")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdatePassword() error = %v, want ErrNotFound", err)
	}
}
