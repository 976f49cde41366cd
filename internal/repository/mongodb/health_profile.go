package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/model"
)

type profileDoc struct {
	ID                  string    `bson:"_id"`
	UserID              string    `bson:"user_id"`
	Age                 int       `bson:"age"`
	Gender              string    `bson:"gender"`
	Height              float64   `bson:"height"`
	Weight              float64   `bson:"weight"`
	ActivityLevel       string    `bson:"activity_level"`
	DietaryRestrictions []string  `bson:"dietary_restrictions"`
	HealthGoals         []string  `bson:"health_goals"`
	LastUpdated         time.Time `bson:"last_updated"`
}

func (d *profileDoc) toModel() *model.HealthProfile {
	return &model.HealthProfile{
		ID:                  d.ID,
		UserID:              d.UserID,
		Age:                 d.Age,
		Gender:              model.Gender(d.Gender),
		Height:              d.Height,
		Weight:              d.Weight,
		ActivityLevel:       model.ActivityLevel(d.ActivityLevel),
		DietaryRestrictions: nonNil(d.DietaryRestrictions),
		HealthGoals:         nonNil(d.HealthGoals),
		LastUpdated:         d.LastUpdated,
	}
}

// SaveProfile upserts by user_id. The _id is only written on insert, so an
// overwrite keeps the original profile ID.
func (s *Store) SaveProfile(ctx context.Context, p *model.HealthProfile) error {
	if p.LastUpdated.IsZero() {
		p.LastUpdated = time.Now().UTC()
	}

	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "age", Value: p.Age},
			{Key: "gender", Value: string(p.Gender)},
			{Key: "height", Value: p.Height},
			{Key: "weight", Value: p.Weight},
			{Key: "activity_level", Value: string(p.ActivityLevel)},
			{Key: "dietary_restrictions", Value: nonNil(p.DietaryRestrictions)},
			{Key: "health_goals", Value: nonNil(p.HealthGoals)},
			{Key: "last_updated", Value: p.LastUpdated.UTC()},
		}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "_id", Value: xid.New().String()}}},
	}

	var saved profileDoc
	err := s.profiles.FindOneAndUpdate(ctx,
		bson.D{{Key: "user_id", Value: p.UserID}},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&saved)
	if err != nil {
		return fmt.Errorf("mongodb: saving health profile for user %s: %w", p.UserID, err)
	}

	p.ID = saved.ID
	return nil
}

func (s *Store) GetProfileByUserID(ctx context.Context, userID string) (*model.HealthProfile, error) {
	var doc profileDoc
	err := s.profiles.FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.ProfileNotFound(userID)
		}
		return nil, fmt.Errorf("mongodb: getting health profile for user %s: %w", userID, err)
	}
	return doc.toModel(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
