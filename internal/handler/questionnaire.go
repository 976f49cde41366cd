package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/dietcraft/internal/apperror"
	"github.com/sakif/dietcraft/internal/questionnaire"
	"github.com/sakif/dietcraft/internal/service"
)

// QuestionnaireHandler serves assessment questionnaires.
type QuestionnaireHandler struct {
	assessment *service.AssessmentService
	logger     *slog.Logger
}

func NewQuestionnaireHandler(assessment *service.AssessmentService, logger *slog.Logger) *QuestionnaireHandler {
	return &QuestionnaireHandler{assessment: assessment, logger: logger}
}

// HandleGenerate returns a random questionnaire.
//
// HTTP: GET /api/profile/questionnaire?n=5
// n defaults to 5 and is capped at the size of the question bank.
func (h *QuestionnaireHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	n := service.DefaultQuestionCount
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperror.ValidationFailed("n", "n must be an integer"))
			return
		}
		n = parsed
	}

	writeJSON(w, http.StatusOK, map[string][]questionnaire.Question{
		"questions": h.assessment.Questionnaire(n),
	})
}

type analyzeRequest struct {
	Responses map[string]string `json:"responses"`
}

// HandleAnalyze turns answers into recommendations.
//
// HTTP: POST /api/profile/questionnaire/analyze
// Body: {"responses": {"diet_type": "Vegan", ...}}
func (h *QuestionnaireHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	analysis, err := h.assessment.Analyze(req.Responses)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]questionnaire.Analysis{"analysis": analysis})
}
