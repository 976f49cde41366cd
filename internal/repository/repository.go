// Package repository declares the storage contracts the services depend on.
// Each backend (sqlite, mongo) implements all three interfaces on one type.
//
// Lookups that find nothing return an *apperror.AppError wrapping
// apperror.ErrNotFound. Inserts that collide with a unique key return
// apperror.ErrDuplicateEmail (email) or apperror.ErrConflict (anything else).
package repository

import (
	"context"
	"time"

	"github.com/sakif/dietcraft/internal/model"
)

// UserRepository stores user accounts. Users are never deleted.
type UserRepository interface {
	// CreateUser assigns ID and timestamps and inserts the user.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByExternalID(ctx context.Context, provider, externalID string) (*model.User, error)
	// LinkExternalID attaches an identity provider account to an existing user.
	LinkExternalID(ctx context.Context, userID, provider, externalID string) error
	// SetResetToken stores a reset code and its expiry, replacing any
	// earlier code.
	SetResetToken(ctx context.Context, userID, code string, expires time.Time) error
	// UpdatePassword replaces the password hash and clears any reset code.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	// ConsumeResetToken replaces the password hash only while code is the
	// user's unexpired reset code at now, clearing the code atomically.
	// consumed is false when the code did not match or had expired.
	ConsumeResetToken(ctx context.Context, userID, code string, now time.Time, passwordHash string) (consumed bool, err error)
	// RecordResetFailure counts a wrong reset code guess and clears the
	// code once maxAttempts guesses have failed.
	RecordResetFailure(ctx context.Context, userID string, maxAttempts int) error
}

// HealthProfileRepository stores at most one profile per user.
type HealthProfileRepository interface {
	// SaveProfile inserts or replaces the user's profile.
	SaveProfile(ctx context.Context, profile *model.HealthProfile) error
	GetProfileByUserID(ctx context.Context, userID string) (*model.HealthProfile, error)
}

// MealPlanRepository stores generated plans. Plans are immutable.
type MealPlanRepository interface {
	CreateMealPlan(ctx context.Context, plan *model.MealPlan) error
	GetMealPlan(ctx context.Context, id string) (*model.MealPlan, error)
	// ListMealPlans returns the user's plans, newest first.
	ListMealPlans(ctx context.Context, userID string, opts ListOptions) ([]model.MealPlan, error)
}

// Store is everything a backend provides.
type Store interface {
	UserRepository
	HealthProfileRepository
	MealPlanRepository
	Close(ctx context.Context) error
}

// ListOptions pages through a listing. Zero values mean defaults.
type ListOptions struct {
	Limit  int
	Offset int
}

// Page limits shared by the backends.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Normalize clamps opts to the page limits.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
