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
	"github.com/sakif/dietcraft/internal/repository"
)

const mealPlanColumns = `id, user_id, meals, duration, start_date, status, created_at`

// CreateMealPlan inserts a plan, assigning its ID and CreatedAt.
func (db *DB) CreateMealPlan(ctx context.Context, plan *model.MealPlan) error {
	plan.ID = xid.New().String()
	plan.CreatedAt = time.Now().UTC()

	meals := plan.Meals
	if meals == nil {
		meals = []model.DayMeals{}
	}
	encoded, err := encodeJSON(meals)
	if err != nil {
		return fmt.Errorf("sqlite: encoding meals: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO meal_plans (`+mealPlanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.UserID,
		encoded,
		plan.Duration,
		plan.StartDate.UTC(),
		plan.Status,
		plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting meal plan for user %s: %w", plan.UserID, err)
	}

	return nil
}

func scanMealPlan(row rowScanner) (*model.MealPlan, error) {
	var (
		p     model.MealPlan
		meals string
	)
	if err := row.Scan(&p.ID, &p.UserID, &meals, &p.Duration, &p.StartDate, &p.Status, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meals), &p.Meals); err != nil {
		return nil, fmt.Errorf("decoding meals of plan %s: %w", p.ID, err)
	}
	return &p, nil
}

// GetMealPlan retrieves a plan by ID. Ownership is checked by the caller.
func (db *DB) GetMealPlan(ctx context.Context, id string) (*model.MealPlan, error) {
	p, err := scanMealPlan(db.conn.QueryRowContext(ctx,
		`SELECT `+mealPlanColumns+` FROM meal_plans WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("meal plan", id)
		}
		return nil, fmt.Errorf("sqlite: getting meal plan %s: %w", id, err)
	}
	return p, nil
}

// ListMealPlans returns a page of the user's plans, newest first. The xid
// primary key breaks ties between plans created in the same instant.
func (db *DB) ListMealPlans(ctx context.Context, userID string, opts repository.ListOptions) ([]model.MealPlan, error) {
	opts = opts.Normalize()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+mealPlanColumns+`
		 FROM meal_plans
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing meal plans for user %s: %w", userID, err)
	}
	defer rows.Close()

	plans := make([]model.MealPlan, 0, opts.Limit)
	for rows.Next() {
		p, err := scanMealPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning meal plan row: %w", err)
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating meal plan rows: %w", err)
	}

	return plans, nil
}
