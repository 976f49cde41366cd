package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/model"
)

// SaveProfile inserts the user's profile or overwrites the existing one.
//
// The upsert is a single INSERT ... ON CONFLICT(user_id) statement, so two
// concurrent saves for the same user cannot create two rows. RETURNING id
// hands back the surviving row's ID: the new one on insert, the original on
// update.
func (db *DB) SaveProfile(ctx context.Context, p *model.HealthProfile) error {
	if p.LastUpdated.IsZero() {
		p.LastUpdated = time.Now().UTC()
	}

	restrictions, err := encodeJSON(nonNil(p.DietaryRestrictions))
	if err != nil {
		return fmt.Errorf("sqlite: encoding dietary restrictions: %w", err)
	}
	goals, err := encodeJSON(nonNil(p.HealthGoals))
	if err != nil {
		return fmt.Errorf("sqlite: encoding health goals: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO health_profiles
			(id, user_id, age, gender, height, weight, activity_level,
			 dietary_restrictions, health_goals, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			age = excluded.age,
			gender = excluded.gender,
			height = excluded.height,
			weight = excluded.weight,
			activity_level = excluded.activity_level,
			dietary_restrictions = excluded.dietary_restrictions,
			health_goals = excluded.health_goals,
			last_updated = excluded.last_updated
		 RETURNING id`,
		xid.New().String(),
		p.UserID,
		p.Age,
		string(p.Gender),
		p.Height,
		p.Weight,
		string(p.ActivityLevel),
		restrictions,
		goals,
		p.LastUpdated.UTC(),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("sqlite: saving health profile for user %s: %w", p.UserID, err)
	}

	return nil
}

// GetProfileByUserID returns apperror.ErrProfileNotFound when the user has
// not submitted a profile.
func (db *DB) GetProfileByUserID(ctx context.Context, userID string) (*model.HealthProfile, error) {
	var (
		p                   model.HealthProfile
		gender, level       string
		restrictions, goals string
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, age, gender, height, weight, activity_level,
		        dietary_restrictions, health_goals, last_updated
		 FROM health_profiles WHERE user_id = ?`,
		userID,
	).Scan(
		&p.ID,
		&p.UserID,
		&p.Age,
		&gender,
		&p.Height,
		&p.Weight,
		&level,
		&restrictions,
		&goals,
		&p.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ProfileNotFound(userID)
		}
		return nil, fmt.Errorf("sqlite: getting health profile for user %s: %w", userID, err)
	}

	p.Gender = model.Gender(gender)
	p.ActivityLevel = model.ActivityLevel(level)
	if err := json.Unmarshal([]byte(restrictions), &p.DietaryRestrictions); err != nil {
		return nil, fmt.Errorf("sqlite: decoding dietary restrictions: %w", err)
	}
	if err := json.Unmarshal([]byte(goals), &p.HealthGoals); err != nil {
		return nil, fmt.Errorf("sqlite: decoding health goals: %w", err)
	}

	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
