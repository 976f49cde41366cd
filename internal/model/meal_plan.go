package model

import "time"

// MealPlanStatusActive is the status of a freshly generated plan.
const MealPlanStatusActive = "active"

// Meal is one meal slot with its share of the daily targets.
type Meal struct {
	Name     string  `json:"name"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// DayMeals holds the three meals of one plan day. Day is 1-based.
type DayMeals struct {
	Day       int  `json:"day"`
	Breakfast Meal `json:"breakfast"`
	Lunch     Meal `json:"lunch"`
	Dinner    Meal `json:"dinner"`
}

// MealPlan is a generated schedule. Plans are never updated after creation;
// a user accumulates one plan per generation request.
type MealPlan struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Meals     []DayMeals `json:"meals"`
	Duration  int        `json:"duration"`
	StartDate time.Time  `json:"start_date"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}
