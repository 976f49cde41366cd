package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/model"
	"github.com/sakif/dietcraft/internal/nutrition"
	"github.com/sakif/dietcraft/internal/repository"
)

// Plausibility limits for profile measurements.
const (
	MaxAge    = 130
	MaxHeight = 300.0 // cm
	MaxWeight = 700.0 // kg
)

// ProfileInput carries profile fields from a request. A nil field was not
// sent: Save requires the measurement fields, Update keeps the stored value.
type ProfileInput struct {
	Age                 *int
	Gender              *string
	Height              *float64
	Weight              *float64
	ActivityLevel       *string
	DietaryRestrictions []string
	HealthGoals         []string
}

// ProfileService manages the one health profile each user has.
type ProfileService struct {
	profiles repository.HealthProfileRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewProfileService(profiles repository.HealthProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		logger:   logger,
		now:      time.Now,
	}
}

// Save creates the user's profile or replaces it entirely. Age, gender,
// height, weight and activity level are required.
func (s *ProfileService) Save(ctx context.Context, userID string, in ProfileInput) (*model.HealthProfile, error) {
	switch {
	case in.Age == nil:
		return nil, missing("age")
	case in.Gender == nil:
		return nil, missing("gender")
	case in.Height == nil:
		return nil, missing("height")
	case in.Weight == nil:
		return nil, missing("weight")
	case in.ActivityLevel == nil:
		return nil, missing("activity_level")
	}

	p := &model.HealthProfile{UserID: userID}
	if err := apply(p, in); err != nil {
		return nil, err
	}
	return s.store(ctx, p)
}

// Update changes only the fields present in in. The profile must exist.
func (s *ProfileService) Update(ctx context.Context, userID string, in ProfileInput) (*model.HealthProfile, error) {
	p, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: loading profile: %w", err)
	}
	if err := apply(p, in); err != nil {
		return nil, err
	}
	return s.store(ctx, p)
}

// Get returns the user's profile or apperror.ErrProfileNotFound.
func (s *ProfileService) Get(ctx context.Context, userID string) (*model.HealthProfile, error) {
	p, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return p, nil
}

func (s *ProfileService) store(ctx context.Context, p *model.HealthProfile) (*model.HealthProfile, error) {
	if !nutrition.KnownActivityLevel(p.ActivityLevel) {
		// Accepted; the calculator treats it as sedentary.
		s.logger.Warn("unknown activity level saved",
			slog.String("userID", p.UserID),
			slog.String("activityLevel", string(p.ActivityLevel)),
		)
	}

	p.LastUpdated = s.now().UTC()
	if err := s.profiles.SaveProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("service/profile: saving profile for user %s: %w", p.UserID, err)
	}

	s.logger.Info("health profile saved", slog.String("userID", p.UserID))
	return p, nil
}

// apply validates and copies the present fields of in onto p.
func apply(p *model.HealthProfile, in ProfileInput) error {
	if in.Age != nil {
		if *in.Age <= 0 || *in.Age > MaxAge {
			return apperror.ValidationFailed("age", fmt.Sprintf("age must be between 1 and %d", MaxAge))
		}
		p.Age = *in.Age
	}
	if in.Gender != nil {
		if strings.TrimSpace(*in.Gender) == "" {
			return apperror.ValidationFailed("gender", "gender must not be empty")
		}
		p.Gender = model.ParseGender(*in.Gender)
	}
	if in.Height != nil {
		if *in.Height <= 0 || *in.Height > MaxHeight {
			return apperror.ValidationFailed("height", "height must be a positive number of centimetres")
		}
		p.Height = *in.Height
	}
	if in.Weight != nil {
		if *in.Weight <= 0 || *in.Weight > MaxWeight {
			return apperror.ValidationFailed("weight", "weight must be a positive number of kilograms")
		}
		p.Weight = *in.Weight
	}
	if in.ActivityLevel != nil {
		level := strings.ToLower(strings.TrimSpace(*in.ActivityLevel))
		if level == "" {
			return apperror.ValidationFailed("activity_level", "activity_level must not be empty")
		}
		p.ActivityLevel = model.ActivityLevel(level)
	}
	if in.DietaryRestrictions != nil {
		p.DietaryRestrictions = tags(in.DietaryRestrictions)
	}
	if in.HealthGoals != nil {
		p.HealthGoals = tags(in.HealthGoals)
	}
	if p.DietaryRestrictions == nil {
		p.DietaryRestrictions = []string{}
	}
	if p.HealthGoals == nil {
		p.HealthGoals = []string{}
	}
	return nil
}

// tags trims, drops empty entries and removes duplicates, keeping order.
func tags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func missing(field string) error {
	return apperror.ValidationFailed(field, "missing required field: "+field)
}
