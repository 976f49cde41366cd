package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/model"
	"github.com/sakif/dietcraft/internal/nutrition"
	"github.com/sakif/dietcraft/internal/repository"
	"github.com/sakif/dietcraft/internal/service"
)

// MealPlanHandler serves meal plans and nutrition targets.
type MealPlanHandler struct {
	plans  *service.MealPlanService
	logger *slog.Logger
}

func NewMealPlanHandler(plans *service.MealPlanService, logger *slog.Logger) *MealPlanHandler {
	return &MealPlanHandler{plans: plans, logger: logger}
}

type createMealPlanRequest struct {
	Duration *int `json:"duration"`
}

type mealPlanResponse struct {
	Message  string          `json:"message,omitempty"`
	MealPlan *model.MealPlan `json:"meal_plan"`
}

// HandleCreate generates a plan from the caller's profile.
//
// HTTP: POST /api/meal-plan
// Body: {"duration": 7}
// 201 with the plan; 404 when the caller has no health profile.
func (h *MealPlanHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req createMealPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Duration == nil {
		writeError(w, apperror.ValidationFailed("duration", "duration is required"))
		return
	}

	plan, err := h.plans.Generate(r.Context(), userID, *req.Duration)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mealPlanResponse{Message: "Meal plan created successfully", MealPlan: plan})
}

// HandleList returns the caller's plans, newest first.
//
// HTTP: GET /api/meal-plan?limit=20&offset=0
func (h *MealPlanHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	opts, err := listOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	plans, err := h.plans.List(r.Context(), userID, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]model.MealPlan{"meal_plans": plans})
}

// HandleGet returns one of the caller's plans.
//
// HTTP: GET /api/meal-plan/{id}
func (h *MealPlanHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	plan, err := h.plans.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mealPlanResponse{MealPlan: plan})
}

// HandleTargets returns the caller's daily nutrition targets.
//
// HTTP: GET /api/meal-plan/targets
func (h *MealPlanHandler) HandleTargets(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	targets, err := h.plans.Targets(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]nutrition.Targets{"targets": targets})
}

// listOptions reads ?limit= and ?offset=. Missing values mean defaults.
func listOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &opts.Limit},
		{"offset", &opts.Offset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, apperror.ValidationFailed(p.name, p.name+" must be a non-negative integer")
		}
		*p.dst = n
	}
	return opts, nil
}
