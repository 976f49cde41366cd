// Authentication business logic.
//
// AuthService sits between the HTTP handlers and the repository/auth
// utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (store)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt),
//	                     mailer.Sender (reset codes), SessionRevoker (logout)
//
// KEY RESPONSIBILITIES:
//   - Local accounts: register, login, change password
//   - External logins: reconcile a provider identity with a local user
//   - Password reset: issue, verify and consume 6-digit codes

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/auth"
	"github.com/sakif/dietcraft/internal/mailer"
	"github.com/sakif/dietcraft/internal/model"
	"github.com/sakif/dietcraft/internal/repository"
)

// SessionRevoker records that a session token id must no longer be
// accepted. cache.Revocations implements it.
type SessionRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository → read/write user records
//   - tokens     *auth.TokenService        → issue session JWTs
//   - passwords  *auth.PasswordService     → bcrypt hashing
//   - mail       mailer.Sender             → deliver reset codes
//   - revoker    SessionRevoker            → logout; nil disables revocation
//   - logger     *slog.Logger              → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mail      mailer.Sender
	revoker   SessionRevoker
	logger    *slog.Logger

	// Swappable in tests.
	now     func() time.Time
	newCode func() (string, error)
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mail mailer.Sender,
	revoker SessionRevoker,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		mail:      mail,
		revoker:   revoker,
		logger:    logger,
		now:       time.Now,
		newCode:   auth.NewResetCode,
	}
}

// AuthResult is returned by every operation that logs a user in.
// It bundles the user record and the issued JWT so the handler can respond
// (or set the cookie and redirect) in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is what a new local account needs. Role defaults to
// model.RoleUser.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// Register creates a local account and logs it in.
//
// DUPLICATES:
// There is no "does this email exist?" read first. Two concurrent
// registrations would both pass such a check; the store's unique index on
// email is what rejects the second insert, as apperror.ErrDuplicateEmail.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := strings.TrimSpace(in.Email)
	name := strings.TrimSpace(in.Name)
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = model.RoleUser
	}

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword("password", in.Password); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, apperror.ValidationFailed("role", "role must be user or admin")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		Active:       true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("role", user.Role),
	)

	return s.session(user)
}

// Login checks an email and password.
//
// An unknown email is reported as not found. A wrong password, or any
// password against an account that only has an external identity, is
// apperror.ErrInvalidCredentials. A disabled account is forbidden, but only
// once the password has been proven.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: login: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed", slog.String("userID", user.ID))
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %s: %w", user.ID, err)
	}

	if !user.Active {
		return nil, apperror.Forbidden("account is disabled")
	}

	return s.session(user)
}

// LinkExternalIdentity logs in the person a provider vouched for.
//
// RECONCILIATION ORDER:
//  1. A user already linked to (provider, external id) is used as-is.
//  2. Otherwise a user with the same email gets the identity attached, so a
//     local account and a later provider login become one account.
//  3. Otherwise a new user is created without a password.
//
// Calling it twice with the same identity returns the same user. An
// identity missing its external id, email or name is rejected before
// anything is read or written.
func (s *AuthService) LinkExternalIdentity(ctx context.Context, id *auth.Identity) (*AuthResult, error) {
	if id == nil {
		return nil, errors.New("service/auth: identity must not be nil")
	}
	switch {
	case id.ExternalID == "":
		return nil, apperror.IncompleteIdentity(id.Provider, "external id")
	case id.Email == "":
		return nil, apperror.IncompleteIdentity(id.Provider, "email")
	case id.Name == "":
		return nil, apperror.IncompleteIdentity(id.Provider, "name")
	}

	user, err := s.users.GetUserByExternalID(ctx, id.Provider, id.ExternalID)
	switch {
	case err == nil:
		// 1. already linked
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.linkOrCreate(ctx, id)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service/auth: looking up %s identity: %w", id.Provider, err)
	}

	if !user.Active {
		return nil, apperror.Forbidden("account is disabled")
	}

	return s.session(user)
}

// linkOrCreate covers steps 2 and 3 of LinkExternalIdentity.
func (s *AuthService) linkOrCreate(ctx context.Context, id *auth.Identity) (*model.User, error) {
	user, err := s.users.GetUserByEmail(ctx, id.Email)
	if err == nil {
		if err := s.users.LinkExternalID(ctx, user.ID, id.Provider, id.ExternalID); err != nil {
			return nil, fmt.Errorf("service/auth: linking %s identity to user %s: %w", id.Provider, user.ID, err)
		}
		user.OAuthProvider = id.Provider
		user.OAuthID = id.ExternalID

		s.logger.Info("external identity linked",
			slog.String("userID", user.ID),
			slog.String("provider", id.Provider),
		)
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	user = &model.User{
		Email:         id.Email,
		Name:          id.Name,
		Role:          model.RoleUser,
		Active:        true,
		OAuthProvider: id.Provider,
		OAuthID:       id.ExternalID,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating %s user: %w", id.Provider, err)
	}

	s.logger.Info("user registered via identity provider",
		slog.String("userID", user.ID),
		slog.String("provider", id.Provider),
	)
	return user, nil
}

// CompleteExternalLogin exchanges an authorization code with provider and
// links the resulting identity. A failed exchange is not retried; it comes
// back as apperror.ErrProvider.
func (s *AuthService) CompleteExternalLogin(ctx context.Context, provider auth.IdentityProvider, code string) (*AuthResult, error) {
	if code == "" {
		return nil, apperror.ValidationFailed("code", "authorization code is required")
	}

	id, err := provider.Exchange(ctx, code)
	if err != nil {
		s.logger.Error("identity provider exchange failed",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		return nil, apperror.ProviderFailure(provider.Name(), err)
	}

	return s.LinkExternalIdentity(ctx, id)
}

// InitiatePasswordReset emails a fresh reset code to the account with this
// email, replacing any earlier code. It reports whether such an account
// exists; an unknown email is not an error.
func (s *AuthService) InitiatePasswordReset(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, apperror.ValidationFailed("email", "email is required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("service/auth: reset lookup: %w", err)
	}

	code, err := s.newCode()
	if err != nil {
		return false, err
	}
	expires := s.now().Add(auth.ResetCodeTTL)

	if err := s.users.SetResetToken(ctx, user.ID, code, expires); err != nil {
		return false, fmt.Errorf("service/auth: storing reset code for user %s: %w", user.ID, err)
	}

	subject, body := mailer.PasswordReset(code)
	if err := s.mail.Send(ctx, user.Email, subject, body); err != nil {
		return false, fmt.Errorf("service/auth: sending reset code to user %s: %w", user.ID, err)
	}

	s.logger.Info("password reset initiated", slog.String("userID", user.ID))
	return true, nil
}

// VerifyOTP reports whether code is the live reset code of the account
// with this email. It does not consume the code, but a wrong guess counts
// toward auth.MaxResetAttempts.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (bool, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("service/auth: verifying reset code: %w", err)
	}
	if !user.ResetTokenValid(code, s.now()) {
		s.recordResetFailure(ctx, user)
		return false, nil
	}
	return true, nil
}

// recordResetFailure counts a wrong code against a user holding one. A
// store error here is logged and not returned: the caller's answer is
// already "invalid".
func (s *AuthService) recordResetFailure(ctx context.Context, user *model.User) {
	if user.ResetToken == "" {
		return
	}
	if err := s.users.RecordResetFailure(ctx, user.ID, auth.MaxResetAttempts); err != nil {
		s.logger.Warn("failed to record reset code failure",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// CompletePasswordReset sets a new password when code is the live reset
// code of the account with this email, and consumes the code.
//
// The account is looked up by email, the same key VerifyOTP uses; the code
// and its expiry are then checked against that account. An unknown email
// and a wrong code fail the same way. The store consumes the code with a
// conditional write, so of two concurrent requests with the same code at
// most one changes the password.
func (s *AuthService) CompletePasswordReset(ctx context.Context, email, code, newPassword string) error {
	if err := validatePassword("new_password", newPassword); err != nil {
		return err
	}

	invalid := apperror.ValidationFailed("code", "invalid or expired reset code")

	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperror.ErrNotFound) {
		return invalid
	}
	if err != nil {
		return fmt.Errorf("service/auth: reset lookup: %w", err)
	}
	if !user.ResetTokenValid(code, s.now()) {
		s.recordResetFailure(ctx, user)
		return invalid
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	consumed, err := s.users.ConsumeResetToken(ctx, user.ID, code, s.now(), hash)
	if err != nil {
		return fmt.Errorf("service/auth: updating password for user %s: %w", user.ID, err)
	}
	if !consumed {
		return invalid
	}

	s.logger.Info("password reset completed", slog.String("userID", user.ID))
	return nil
}

// ChangePassword replaces the password of a logged-in user. The current
// password must be given unless the account has none yet (it was created
// through an identity provider).
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := validatePassword("new_password", newPassword); err != nil {
		return err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}

	if user.HasPassword() {
		if err := s.passwords.Verify(user.PasswordHash, currentPassword); err != nil {
			if errors.Is(err, auth.ErrPasswordMismatch) {
				return apperror.InvalidCredentials()
			}
			return fmt.Errorf("service/auth: verifying password for user %s: %w", userID, err)
		}
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("service/auth: updating password for user %s: %w", userID, err)
	}

	s.logger.Info("password changed", slog.String("userID", userID))
	return nil
}

// Logout revokes the session until the moment it would have expired.
// Without a revoker the token stays valid until then; the handler still
// clears the cookie.
func (s *AuthService) Logout(ctx context.Context, session *auth.Session) error {
	if s.revoker == nil || session == nil {
		return nil
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if err := s.revoker.Revoke(ctx, session.TokenID, ttl); err != nil {
		return fmt.Errorf("service/auth: revoking session of user %s: %w", session.UserID, err)
	}
	return nil
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// session issues a token for user.
func (s *AuthService) session(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
