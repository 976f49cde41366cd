package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/model"
	"github.com/sakif/dietcraft/internal/nutrition"
	"github.com/sakif/dietcraft/internal/repository"
)

// MaxPlanDuration is the longest plan, in days, Generate will build.
const MaxPlanDuration = 365

// Placeholder meal names. Plans carry targets, not recipes.
const (
	BreakfastName = "Healthy Breakfast"
	LunchName     = "Balanced Lunch"
	DinnerName    = "Nutritious Dinner"
)

// Share of each daily target per meal.
const (
	BreakfastShare = 0.30
	LunchShare     = 0.35
	DinnerShare    = 0.35
)

// MealPlanService turns a health profile into stored meal plans.
type MealPlanService struct {
	profiles repository.HealthProfileRepository
	plans    repository.MealPlanRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewMealPlanService(
	profiles repository.HealthProfileRepository,
	plans repository.MealPlanRepository,
	logger *slog.Logger,
) *MealPlanService {
	return &MealPlanService{
		profiles: profiles,
		plans:    plans,
		logger:   logger,
		now:      time.Now,
	}
}

// Targets returns the daily nutrition targets for the user's profile.
func (s *MealPlanService) Targets(ctx context.Context, userID string) (nutrition.Targets, error) {
	p, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nutrition.Targets{}, fmt.Errorf("service/mealplan: %w", err)
	}
	return nutrition.Compute(p), nil
}

// Generate builds and stores a plan of days days from the user's current
// profile. Every day is identical: breakfast, lunch and dinner carry 30%,
// 35% and 35% of each daily target.
func (s *MealPlanService) Generate(ctx context.Context, userID string, days int) (*model.MealPlan, error) {
	if days <= 0 || days > MaxPlanDuration {
		return nil, apperror.ValidationFailed("duration",
			fmt.Sprintf("duration must be between 1 and %d days", MaxPlanDuration))
	}

	targets, err := s.Targets(ctx, userID)
	if err != nil {
		return nil, err
	}

	meals := make([]model.DayMeals, days)
	for i := range meals {
		meals[i] = model.DayMeals{
			Day:       i + 1,
			Breakfast: meal(BreakfastName, targets.Scale(BreakfastShare)),
			Lunch:     meal(LunchName, targets.Scale(LunchShare)),
			Dinner:    meal(DinnerName, targets.Scale(DinnerShare)),
		}
	}

	plan := &model.MealPlan{
		UserID:    userID,
		Meals:     meals,
		Duration:  days,
		StartDate: s.now().UTC(),
		Status:    model.MealPlanStatusActive,
	}
	if err := s.plans.CreateMealPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("service/mealplan: saving plan for user %s: %w", userID, err)
	}

	s.logger.Info("meal plan generated",
		slog.String("userID", userID),
		slog.String("planID", plan.ID),
		slog.Int("days", days),
	)
	return plan, nil
}

// List returns the user's plans, newest first.
func (s *MealPlanService) List(ctx context.Context, userID string, opts repository.ListOptions) ([]model.MealPlan, error) {
	plans, err := s.plans.ListMealPlans(ctx, userID, opts.Normalize())
	if err != nil {
		return nil, fmt.Errorf("service/mealplan: listing plans for user %s: %w", userID, err)
	}
	return plans, nil
}

// Get returns one of the user's plans. Another user's plan is reported as
// not found so plan ids cannot be probed.
func (s *MealPlanService) Get(ctx context.Context, userID, planID string) (*model.MealPlan, error) {
	plan, err := s.plans.GetMealPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("service/mealplan: %w", err)
	}
	if plan.UserID != userID {
		return nil, apperror.NotFound("meal plan", planID)
	}
	return plan, nil
}

func meal(name string, t nutrition.Targets) model.Meal {
	return model.Meal{
		Name:     name,
		Calories: t.Calories,
		Protein:  t.Protein,
		Carbs:    t.Carbs,
		Fat:      t.Fat,
	}
}
