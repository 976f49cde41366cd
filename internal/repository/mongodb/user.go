package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/model"
)

// userDoc is the stored form of model.User. Optional strings are pointers
// with omitempty: an OAuth-only user has no password_hash field at all,
// and a local user has no oauth_id, which keeps it out of the partial
// identity index.
type userDoc struct {
	ID                string     `bson:"_id"`
	Email             string     `bson:"email"`
	PasswordHash      *string    `bson:"password_hash,omitempty"`
	Name              string     `bson:"name"`
	Role              string     `bson:"role"`
	Active            bool       `bson:"active"`
	OAuthProvider     *string    `bson:"oauth_provider,omitempty"`
	OAuthID           *string    `bson:"oauth_id,omitempty"`
	ResetToken        *string    `bson:"reset_token,omitempty"`
	ResetTokenExpires *time.Time `bson:"reset_token_expires,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

func toUserDoc(u *model.User) userDoc {
	return userDoc{
		ID:                u.ID,
		Email:             u.Email,
		PasswordHash:      optional(u.PasswordHash),
		Name:              u.Name,
		Role:              u.Role,
		Active:            u.Active,
		OAuthProvider:     optional(u.OAuthProvider),
		OAuthID:           optional(u.OAuthID),
		ResetToken:        optional(u.ResetToken),
		ResetTokenExpires: u.ResetTokenExpires,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func (d *userDoc) toModel() *model.User {
	return &model.User{
		ID:                d.ID,
		Email:             d.Email,
		PasswordHash:      deref(d.PasswordHash),
		Name:              d.Name,
		Role:              d.Role,
		Active:            d.Active,
		OAuthProvider:     deref(d.OAuthProvider),
		OAuthID:           deref(d.OAuthID),
		ResetToken:        deref(d.ResetToken),
		ResetTokenExpires: d.ResetTokenExpires,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// CreateUser inserts a new user, assigning ID, timestamps and default role.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	// BSON datetimes have millisecond precision; truncate up front so the
	// caller's copy matches what a later read returns.
	now := time.Now().UTC().Truncate(time.Millisecond)
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	if _, err := s.users.InsertOne(ctx, toUserDoc(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), emailIndex) {
				return apperror.DuplicateEmail(user.Email)
			}
			return apperror.Conflict("user identity", user.OAuthProvider+":"+user.OAuthID)
		}
		return fmt.Errorf("mongodb: inserting user %s: %w", user.Email, err)
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.D, key string) (*model.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("mongodb: finding user %s: %w", key, err)
	}
	return doc.toModel(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, bson.D{{Key: "_id", Value: id}}, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: email}}, email)
}

func (s *Store) GetUserByExternalID(ctx context.Context, provider, externalID string) (*model.User, error) {
	return s.findUser(ctx, bson.D{
		{Key: "oauth_provider", Value: provider},
		{Key: "oauth_id", Value: externalID},
	}, provider+":"+externalID)
}

// updateUser applies update to the user with id, mapping "no match" to
// NotFound.
func (s *Store) updateUser(ctx context.Context, id string, update bson.D) error {
	res, err := s.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (s *Store) LinkExternalID(ctx context.Context, userID, provider, externalID string) error {
	err := s.updateUser(ctx, userID, bson.D{{Key: "$set", Value: bson.D{
		{Key: "oauth_provider", Value: provider},
		{Key: "oauth_id", Value: externalID},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("user identity", provider+":"+externalID)
		}
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mongodb: linking %s identity to user %s: %w", provider, userID, err)
	}
	return nil
}

func (s *Store) SetResetToken(ctx context.Context, userID, code string, expires time.Time) error {
	err := s.updateUser(ctx, userID, bson.D{{Key: "$set", Value: bson.D{
		{Key: "reset_token", Value: code},
		{Key: "reset_token_expires", Value: expires.UTC()},
		{Key: "reset_attempts", Value: 0},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}})
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("mongodb: setting reset token for user %s: %w", userID, err)
	}
	return err
}

// UpdatePassword replaces the hash and removes the reset code fields in one
// update.
func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	set := bson.D{{Key: "updated_at", Value: time.Now().UTC()}}
	unset := resetFields()
	if passwordHash == "" {
		unset = append(unset, bson.E{Key: "password_hash", Value: ""})
	} else {
		set = append(set, bson.E{Key: "password_hash", Value: passwordHash})
	}

	err := s.updateUser(ctx, userID, bson.D{
		{Key: "$set", Value: set},
		{Key: "$unset", Value: unset},
	})
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("mongodb: updating password for user %s: %w", userID, err)
	}
	return err
}

// resetFields is the $unset document that ends a reset.
func resetFields() bson.D {
	return bson.D{
		{Key: "reset_token", Value: ""},
		{Key: "reset_token_expires", Value: ""},
		{Key: "reset_attempts", Value: ""},
	}
}

// ConsumeResetToken sets the password only while code is the user's live
// reset code at now. The filter carries the code, so of two concurrent
// calls only one can match.
func (s *Store) ConsumeResetToken(ctx context.Context, userID, code string, now time.Time, passwordHash string) (bool, error) {
	filter := bson.D{
		{Key: "_id", Value: userID},
		{Key: "reset_token", Value: code},
		{Key: "reset_token_expires", Value: bson.D{{Key: "$gt", Value: now.UTC()}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "updated_at", Value: time.Now().UTC()},
		}},
		{Key: "$unset", Value: resetFields()},
	}

	res, err := s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("mongodb: consuming reset token for user %s: %w", userID, err)
	}
	return res.MatchedCount == 1, nil
}

// RecordResetFailure counts a wrong reset code guess with an update
// pipeline: the first stage increments, the second drops the code once the
// count reaches maxAttempts. Both run as one atomic document update.
func (s *Store) RecordResetFailure(ctx context.Context, userID string, maxAttempts int) error {
	exhausted := bson.D{{Key: "$gte", Value: bson.A{"$reset_attempts", maxAttempts}}}
	unlessExhausted := func(keep any) bson.D {
		return bson.D{{Key: "$cond", Value: bson.A{exhausted, "$$REMOVE", keep}}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "reset_attempts", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$reset_attempts", 0}}}, 1,
			}}}},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "reset_token", Value: unlessExhausted("$reset_token")},
			{Key: "reset_token_expires", Value: unlessExhausted("$reset_token_expires")},
			{Key: "reset_attempts", Value: unlessExhausted("$reset_attempts")},
		}}},
	}

	filter := bson.D{
		{Key: "_id", Value: userID},
		{Key: "reset_token", Value: bson.D{{Key: "$exists", Value: true}}},
	}
	if _, err := s.users.UpdateOne(ctx, filter, pipeline); err != nil {
		return fmt.Errorf("mongodb: recording reset failure for user %s: %w", userID, err)
	}
	return nil
}
