package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/model"
)

const userColumns = `id, email, password_hash, name, role, active,
	oauth_provider, oauth_id, reset_token, reset_token_expires,
	created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                            model.User
		hash, provider, extID, token sql.NullString
		resetExpires                 sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&hash,
		&u.Name,
		&u.Role,
		&u.Active,
		&provider,
		&extID,
		&token,
		&resetExpires,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.PasswordHash = hash.String
	u.OAuthProvider = provider.String
	u.OAuthID = extID.String
	u.ResetToken = token.String
	if resetExpires.Valid {
		t := resetExpires.Time
		u.ResetTokenExpires = &t
	}
	return &u, nil
}

// CreateUser inserts a new user. ID, timestamps and an empty role are
// filled in here. A taken email returns apperror.ErrDuplicateEmail; a taken
// (provider, external id) pair returns apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	var resetExpires sql.NullTime
	if user.ResetTokenExpires != nil {
		resetExpires = sql.NullTime{Time: user.ResetTokenExpires.UTC(), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		nullString(user.PasswordHash),
		user.Name,
		user.Role,
		user.Active,
		nullString(user.OAuthProvider),
		nullString(user.OAuthID),
		nullString(user.ResetToken),
		resetExpires,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "users.email") {
				return apperror.DuplicateEmail(user.Email)
			}
			return apperror.Conflict("user identity", user.OAuthProvider+":"+user.OAuthID)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	return nil
}

// GetUserByID retrieves a user by internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by exact email match.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// GetUserByExternalID retrieves the user linked to an identity provider
// account.
func (db *DB) GetUserByExternalID(ctx context.Context, provider, externalID string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = ? AND oauth_id = ?`,
		provider, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", provider+":"+externalID)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s id: %w", provider, err)
	}
	return u, nil
}

// LinkExternalID attaches (provider, externalID) to the user, replacing any
// earlier link. Fails with apperror.ErrConflict if another user already
// holds the pair.
func (db *DB) LinkExternalID(ctx context.Context, userID, provider, externalID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET oauth_provider = ?, oauth_id = ?, updated_at = ? WHERE id = ?`,
		provider, externalID, time.Now().UTC(), userID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user identity", provider+":"+externalID)
		}
		return fmt.Errorf("sqlite: linking %s identity to user %s: %w", provider, userID, err)
	}
	return expectOneRow(res, "user", userID)
}

// SetResetToken stores a password reset code for the user.
func (db *DB) SetResetToken(ctx context.Context, userID, code string, expires time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET reset_token = ?, reset_token_expires = ?, reset_attempts = 0, updated_at = ?
		 WHERE id = ?`,
		code, expires.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("sqlite: setting reset token for user %s: %w", userID, err)
	}
	return expectOneRow(res, "user", userID)
}

// UpdatePassword replaces the password hash and clears the reset code in
// the same statement, so a code can never outlive the reset it authorised.
func (db *DB) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = ?, reset_token = NULL, reset_token_expires = NULL,
		     reset_attempts = 0, updated_at = ?
		 WHERE id = ?`,
		nullString(passwordHash), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("sqlite: updating password for user %s: %w", userID, err)
	}
	return expectOneRow(res, "user", userID)
}

// ConsumeResetToken sets the password only if code is still the user's
// live reset code at now, clearing the code in the same statement. Of two
// concurrent calls with the same code, one sees consumed == false.
func (db *DB) ConsumeResetToken(ctx context.Context, userID, code string, now time.Time, passwordHash string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = ?, reset_token = NULL, reset_token_expires = NULL,
		     reset_attempts = 0, updated_at = ?
		 WHERE id = ? AND reset_token = ? AND reset_token_expires > ?`,
		nullString(passwordHash), time.Now().UTC(), userID, code, now.UTC())
	if err != nil {
		return false, fmt.Errorf("sqlite: consuming reset token for user %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

// RecordResetFailure counts a wrong guess at the user's reset code. The
// guess that reaches maxAttempts clears the code. All SET expressions see
// the row as it was before the update.
func (db *DB) RecordResetFailure(ctx context.Context, userID string, maxAttempts int) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
		   reset_token         = CASE WHEN reset_attempts + 1 >= ? THEN NULL ELSE reset_token END,
		   reset_token_expires = CASE WHEN reset_attempts + 1 >= ? THEN NULL ELSE reset_token_expires END,
		   reset_attempts      = CASE WHEN reset_attempts + 1 >= ? THEN 0 ELSE reset_attempts + 1 END
		 WHERE id = ? AND reset_token IS NOT NULL`,
		maxAttempts, maxAttempts, maxAttempts, userID)
	if err != nil {
		return fmt.Errorf("sqlite: recording reset failure for user %s: %w", userID, err)
	}
	return nil
}

// expectOneRow turns "UPDATE matched nothing" into a NotFound error.
func expectOneRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
