// Package questionnaire holds the fixed assessment question bank, samples
// questionnaires from it and turns answers into recommendations.
//
// The engine is stateless: nothing about a generated questionnaire is
// stored, and Analyze only looks at the answers it is given.
package questionnaire

import (
	"math/rand/v2"
	"slices"
)

// Question categories.
const (
	CategoryDietaryPreferences = "dietary_preferences"
	CategoryLifestyle          = "lifestyle"
	CategoryHealthConditions   = "health_conditions"
)

// Question ids that the analysis rules look at.
const (
	QuestionDietType          = "diet_type"
	QuestionMealFrequency     = "meal_frequency"
	QuestionExerciseFrequency = "exercise_frequency"
	QuestionSleepQuality      = "sleep_quality"
	QuestionAllergies         = "allergies"
	QuestionMedicalConditions = "medical_conditions"
)

// Canned recommendation texts.
const (
	AdvicePlantProtein = "Ensure adequate protein intake through plant-based sources"
	AdviceExercise     = "Consider increasing physical activity to at least 3-4 times per week"
	AdviceSleep        = "Focus on improving sleep quality through better sleep hygiene"
	AlertConsult       = "Consult with a healthcare provider for personalized dietary advice"
)

// Question is one item of the bank. Answers must be one of Options.
type Question struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Text     string   `json:"question"`
	Options  []string `json:"options"`
}

// Analysis is the outcome of Analyze. The slices are never nil so they
// encode as empty JSON arrays.
type Analysis struct {
	DietaryRecommendations   []string `json:"dietary_recommendations"`
	LifestyleRecommendations []string `json:"lifestyle_recommendations"`
	HealthAlerts             []string `json:"health_alerts"`
}

var bank = []Question{
	{
		ID:       QuestionDietType,
		Category: CategoryDietaryPreferences,
		Text:     "What type of diet do you follow?",
		Options:  []string{"Omnivore", "Vegetarian", "Vegan", "Pescatarian", "Other"},
	},
	{
		ID:       QuestionMealFrequency,
		Category: CategoryDietaryPreferences,
		Text:     "How many meals do you typically eat per day?",
		Options:  []string{"2", "3", "4", "5+"},
	},
	{
		ID:       QuestionExerciseFrequency,
		Category: CategoryLifestyle,
		Text:     "How often do you exercise?",
		Options:  []string{"Never", "1-2 times/week", "3-4 times/week", "5+ times/week"},
	},
	{
		ID:       QuestionSleepQuality,
		Category: CategoryLifestyle,
		Text:     "How would you rate your sleep quality?",
		Options:  []string{"Poor", "Fair", "Good", "Excellent"},
	},
	{
		ID:       QuestionAllergies,
		Category: CategoryHealthConditions,
		Text:     "Do you have any food allergies?",
		Options:  []string{"None", "Dairy", "Gluten", "Nuts", "Other"},
	},
	{
		ID:       QuestionMedicalConditions,
		Category: CategoryHealthConditions,
		Text:     "Do you have any medical conditions that affect your diet?",
		Options:  []string{"None", "Diabetes", "Hypertension", "Other"},
	},
}

// Bank returns a copy of the whole question bank in its canonical order.
func Bank() []Question {
	out := make([]Question, len(bank))
	for i, q := range bank {
		q.Options = slices.Clone(q.Options)
		out[i] = q
	}
	return out
}

// Engine samples questionnaires and analyses answers.
type Engine struct {
	shuffle func(n int, swap func(i, j int))
}

// New returns an Engine that draws from the global random source, so every
// call to Generate may return a different subset in a different order.
func New() *Engine {
	return &Engine{shuffle: rand.Shuffle}
}

// newSeeded returns an Engine with a reproducible order. Used by tests.
func newSeeded(seed uint64) *Engine {
	r := rand.New(rand.NewPCG(seed, seed))
	return &Engine{shuffle: r.Shuffle}
}

// Generate returns min(n, bank size) distinct questions in random order.
// A non-positive n yields an empty questionnaire.
func (e *Engine) Generate(n int) []Question {
	if n <= 0 {
		return []Question{}
	}
	qs := Bank()
	e.shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	return qs[:min(n, len(qs))]
}

// Analyze applies the recommendation rules to responses, a map from
// question id to the chosen option. The rules are independent; a missing
// answer never triggers one.
func (e *Engine) Analyze(responses map[string]string) Analysis {
	a := Analysis{
		DietaryRecommendations:   []string{},
		LifestyleRecommendations: []string{},
		HealthAlerts:             []string{},
	}

	switch responses[QuestionDietType] {
	case "Vegetarian", "Vegan":
		a.DietaryRecommendations = append(a.DietaryRecommendations, AdvicePlantProtein)
	}

	switch responses[QuestionExerciseFrequency] {
	case "Never", "1-2 times/week":
		a.LifestyleRecommendations = append(a.LifestyleRecommendations, AdviceExercise)
	}

	switch responses[QuestionSleepQuality] {
	case "Poor", "Fair":
		a.LifestyleRecommendations = append(a.LifestyleRecommendations, AdviceSleep)
	}

	if cond, ok := responses[QuestionMedicalConditions]; ok && cond != "None" {
		a.HealthAlerts = append(a.HealthAlerts, AlertConsult)
	}

	return a
}
