package model

import (
	"strings"
	"time"
)

// Gender is the gender recorded on a health profile. Only GenderMale changes
// the energy formula; every other value, including an empty or unknown one,
// uses the female constant.
type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderOther       Gender = "other"
	GenderUnspecified Gender = ""
)

// ParseGender normalises free text to a Gender. Matching is
// case-insensitive; unrecognised values map to GenderOther.
func ParseGender(s string) Gender {
	switch g := Gender(strings.ToLower(strings.TrimSpace(s))); g {
	case GenderMale, GenderFemale, GenderUnspecified:
		return g
	default:
		return GenderOther
	}
}

// IsMale reports whether the profile takes the male branch of the formula.
func (g Gender) IsMale() bool {
	return strings.EqualFold(string(g), string(GenderMale))
}

// ActivityLevel is one of a fixed set of activity levels.
type ActivityLevel string

const (
	ActivitySedentary        ActivityLevel = "sedentary"
	ActivityLightlyActive    ActivityLevel = "lightly_active"
	ActivityModeratelyActive ActivityLevel = "moderately_active"
	ActivityVeryActive       ActivityLevel = "very_active"
	ActivityExtraActive      ActivityLevel = "extra_active"
)

// HealthProfile is the one-per-user snapshot used to compute nutrition
// targets. Saving a profile overwrites the previous one.
type HealthProfile struct {
	ID                  string        `json:"id"`
	UserID              string        `json:"user_id"`
	Age                 int           `json:"age"`
	Gender              Gender        `json:"gender"`
	Height              float64       `json:"height"` // cm
	Weight              float64       `json:"weight"` // kg
	ActivityLevel       ActivityLevel `json:"activity_level"`
	DietaryRestrictions []string      `json:"dietary_restrictions"`
	HealthGoals         []string      `json:"health_goals"`
	LastUpdated         time.Time     `json:"last_updated"`
}
