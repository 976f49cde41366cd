// Package mongodb implements the repository interfaces on MongoDB.
//
// Records cross the package boundary as model types; inside, each
// collection has its own document struct with bson tags. Keeping the two
// apart means storage concerns (the "_id" key, NULL vs absent fields) never
// leak into the model.
//
// Uniqueness is enforced by indexes created in New:
//   - users.email
//   - users.(oauth_provider, oauth_id), only where oauth_id is a string, so
//     any number of users without an external identity can coexist
//   - health_profiles.user_id
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/sakif/dietcraft/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Index names. The user index names are matched against duplicate key
// errors to tell an email collision from an identity collision.
const (
	emailIndex       = "email_unique"
	identityIndex    = "oauth_identity_unique"
	profileUserIndex = "user_id_unique"
	planUserIndex    = "user_id_created_at"
)

// Store holds the client and the three collections.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	profiles *mongo.Collection
	plans    *mongo.Collection
}

// New connects to uri, pings the primary and makes sure the indexes exist.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: pinging: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		users:    db.Collection("users"),
		profiles: db.Collection("health_profiles"),
		plans:    db.Collection("meal_plans"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: creating indexes: %w", err)
	}

	return s, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(emailIndex).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "oauth_provider", Value: 1}, {Key: "oauth_id", Value: 1}},
			Options: options.Index().
				SetName(identityIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "oauth_id", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
	})
	if err != nil {
		return fmt.Errorf("users: %w", err)
	}

	_, err = s.profiles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetName(profileUserIndex).SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("health_profiles: %w", err)
	}

	_, err = s.plans.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName(planUserIndex),
	})
	if err != nil {
		return fmt.Errorf("meal_plans: %w", err)
	}

	return nil
}

// optional maps "" to nil so the field is stored as absent.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
