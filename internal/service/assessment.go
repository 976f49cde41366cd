package service

import (
	"log/slog"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/questionnaire"
)

// DefaultQuestionCount is how many questions a questionnaire has when the
// caller does not ask for a number.
const DefaultQuestionCount = 5

// AssessmentService serves questionnaires and analyses the answers.
// Nothing is stored.
type AssessmentService struct {
	engine *questionnaire.Engine
	logger *slog.Logger
}

func NewAssessmentService(engine *questionnaire.Engine, logger *slog.Logger) *AssessmentService {
	return &AssessmentService{engine: engine, logger: logger}
}

// Questionnaire samples n distinct questions in random order. It returns
// the whole bank when n exceeds it and nothing when n is not positive.
func (s *AssessmentService) Questionnaire(n int) []questionnaire.Question {
	return s.engine.Generate(n)
}

// Analyze turns answers (question id → chosen option) into
// recommendations. At least one answer is required.
func (s *AssessmentService) Analyze(responses map[string]string) (questionnaire.Analysis, error) {
	if len(responses) == 0 {
		return questionnaire.Analysis{}, apperror.ValidationFailed("responses", "missing responses")
	}

	a := s.engine.Analyze(responses)
	s.logger.Debug("questionnaire analysed",
		slog.Int("answers", len(responses)),
		slog.Int("alerts", len(a.HealthAlerts)),
	)
	return a, nil
}
