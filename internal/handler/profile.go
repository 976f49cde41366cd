package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/dietcraft/internal/model"
	"github.com/sakif/dietcraft/internal/service"
)

// ProfileHandler serves the caller's health profile.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// profileRequest mirrors the profile fields. Pointers tell "not sent" apart
// from a zero value, which Update needs.
type profileRequest struct {
	Age                 *int     `json:"age"`
	Gender              *string  `json:"gender"`
	Height              *float64 `json:"height"`
	Weight              *float64 `json:"weight"`
	ActivityLevel       *string  `json:"activity_level"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	HealthGoals         []string `json:"health_goals"`
}

func (p profileRequest) input() service.ProfileInput {
	return service.ProfileInput{
		Age:                 p.Age,
		Gender:              p.Gender,
		Height:              p.Height,
		Weight:              p.Weight,
		ActivityLevel:       p.ActivityLevel,
		DietaryRestrictions: p.DietaryRestrictions,
		HealthGoals:         p.HealthGoals,
	}
}

type profileResponse struct {
	Message string               `json:"message,omitempty"`
	Profile *model.HealthProfile `json:"profile"`
}

// HandleCreate creates or replaces the profile.
//
// HTTP: POST /api/profile/health
// Required: age, gender, height, weight, activity_level
func (h *ProfileHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.profiles.Save(r.Context(), userID, req.input())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, profileResponse{Message: "Health profile saved", Profile: p})
}

// HandleGet returns the profile, 404 when none was submitted.
//
// HTTP: GET /api/profile/health
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{Profile: p})
}

// HandleUpdate changes the fields present in the body.
//
// HTTP: PUT /api/profile/health
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.profiles.Update(r.Context(), userID, req.input())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{Message: "Health profile updated", Profile: p})
}
