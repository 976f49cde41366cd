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
	"github.com/sakif/dietcraft/internal/repository"
)

type mealDoc struct {
	Name     string  `bson:"name"`
	Calories float64 `bson:"calories"`
	Protein  float64 `bson:"protein"`
	Carbs    float64 `bson:"carbs"`
	Fat      float64 `bson:"fat"`
}

type dayDoc struct {
	Day       int     `bson:"day"`
	Breakfast mealDoc `bson:"breakfast"`
	Lunch     mealDoc `bson:"lunch"`
	Dinner    mealDoc `bson:"dinner"`
}

type planDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Meals     []dayDoc  `bson:"meals"`
	Duration  int       `bson:"duration"`
	StartDate time.Time `bson:"start_date"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
}

func toPlanDoc(p *model.MealPlan) planDoc {
	days := make([]dayDoc, len(p.Meals))
	for i, d := range p.Meals {
		days[i] = dayDoc{
			Day:       d.Day,
			Breakfast: mealDoc(d.Breakfast),
			Lunch:     mealDoc(d.Lunch),
			Dinner:    mealDoc(d.Dinner),
		}
	}
	return planDoc{
		ID:        p.ID,
		UserID:    p.UserID,
		Meals:     days,
		Duration:  p.Duration,
		StartDate: p.StartDate.UTC(),
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
}

func (d *planDoc) toModel() model.MealPlan {
	days := make([]model.DayMeals, len(d.Meals))
	for i, dd := range d.Meals {
		days[i] = model.DayMeals{
			Day:       dd.Day,
			Breakfast: model.Meal(dd.Breakfast),
			Lunch:     model.Meal(dd.Lunch),
			Dinner:    model.Meal(dd.Dinner),
		}
	}
	return model.MealPlan{
		ID:        d.ID,
		UserID:    d.UserID,
		Meals:     days,
		Duration:  d.Duration,
		StartDate: d.StartDate,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
	}
}

func (s *Store) CreateMealPlan(ctx context.Context, plan *model.MealPlan) error {
	plan.ID = xid.New().String()
	plan.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := s.plans.InsertOne(ctx, toPlanDoc(plan)); err != nil {
		return fmt.Errorf("mongodb: inserting meal plan for user %s: %w", plan.UserID, err)
	}
	return nil
}

func (s *Store) GetMealPlan(ctx context.Context, id string) (*model.MealPlan, error) {
	var doc planDoc
	if err := s.plans.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("meal plan", id)
		}
		return nil, fmt.Errorf("mongodb: getting meal plan %s: %w", id, err)
	}
	p := doc.toModel()
	return &p, nil
}

// ListMealPlans returns a page of the user's plans, newest first.
func (s *Store) ListMealPlans(ctx context.Context, userID string, opts repository.ListOptions) ([]model.MealPlan, error) {
	opts = opts.Normalize()

	cur, err := s.plans.Find(ctx,
		bson.D{{Key: "user_id", Value: userID}},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
			SetSkip(int64(opts.Offset)).
			SetLimit(int64(opts.Limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing meal plans for user %s: %w", userID, err)
	}

	var docs []planDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decoding meal plans: %w", err)
	}

	plans := make([]model.MealPlan, 0, len(docs))
	for i := range docs {
		plans = append(plans, docs[i].toModel())
	}
	return plans, nil
}
