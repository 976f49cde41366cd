// Package nutrition turns a health profile into daily energy and
// macronutrient targets.
//
// THE FORMULA:
// Basal metabolic rate uses Mifflin–St Jeor:
//
//	BMR = 10*weight_kg + 6.25*height_cm - 5*age + s
//	s   = +5 for male, -161 otherwise
//
// Total daily energy expenditure (TDEE) is BMR scaled by the activity
// multiplier. Energy is then split 30/40/30 between protein, carbohydrate
// and fat, converted to grams at 4/4/9 kcal per gram.
//
// Everything here is a pure function of its input: no clock, no randomness,
// no I/O.
package nutrition

import (
	"math"

	"github.com/sakif/dietcraft/internal/model"
)

// Energy per gram of each macronutrient, in kcal.
const (
	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9
)

// Share of total energy taken by each macronutrient. Sums to 1.
const (
	proteinShare = 0.30
	carbsShare   = 0.40
	fatShare     = 0.30
)

// DefaultActivityMultiplier is used for an activity level missing from the
// table. It is the sedentary value, so an unknown level never inflates the
// targets.
const DefaultActivityMultiplier = 1.2

var activityMultipliers = map[model.ActivityLevel]float64{
	model.ActivitySedentary:        1.2,
	model.ActivityLightlyActive:    1.375,
	model.ActivityModeratelyActive: 1.55,
	model.ActivityVeryActive:       1.725,
	model.ActivityExtraActive:      1.9,
}

// Targets are daily nutrition targets. Calories in kcal, the rest in grams.
type Targets struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Scale multiplies every target by f. The result is not rounded, so the
// shares of a day can be summed back to the daily value.
func (t Targets) Scale(f float64) Targets {
	return Targets{
		Calories: t.Calories * f,
		Protein:  t.Protein * f,
		Carbs:    t.Carbs * f,
		Fat:      t.Fat * f,
	}
}

// ActivityMultiplier returns the TDEE multiplier for level and whether the
// level was recognised.
func ActivityMultiplier(level model.ActivityLevel) (float64, bool) {
	m, ok := activityMultipliers[level]
	if !ok {
		return DefaultActivityMultiplier, false
	}
	return m, true
}

// KnownActivityLevel reports whether level is in the multiplier table.
func KnownActivityLevel(level model.ActivityLevel) bool {
	_, ok := activityMultipliers[level]
	return ok
}

// BMR returns the basal metabolic rate in kcal/day.
func BMR(p *model.HealthProfile) float64 {
	bmr := 10*p.Weight + 6.25*p.Height - 5*float64(p.Age)
	if p.Gender.IsMale() {
		return bmr + 5
	}
	return bmr - 161
}

// Compute returns the daily targets for p, each rounded to 2 decimals.
// Macronutrient grams are derived from the unrounded energy total.
func Compute(p *model.HealthProfile) Targets {
	multiplier, _ := ActivityMultiplier(p.ActivityLevel)
	tdee := BMR(p) * multiplier

	return Targets{
		Calories: round2(tdee),
		Protein:  round2(tdee * proteinShare / kcalPerGramProtein),
		Carbs:    round2(tdee * carbsShare / kcalPerGramCarbs),
		Fat:      round2(tdee * fatShare / kcalPerGramFat),
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
