package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/learntrack-backend/internal/middleware"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stemsi/learntrack-backend/internal/response"
	"github.com/stemsi/learntrack-backend/internal/service"
	"github.com/stemsi/learntrack-backend/internal/validator"
)

// ProctoringHandler serves telemetry ingestion and integrity verdicts.
type ProctoringHandler struct {
	proctoringService *service.ProctoringService
}

// NewProctoringHandler creates a new ProctoringHandler.
func NewProctoringHandler(proctoringService *service.ProctoringService) *ProctoringHandler {
	return &ProctoringHandler{proctoringService: proctoringService}
}

// IngestTelemetry godoc
// POST /api/v1/assessments/:assessment_id/telemetry
// Folds an incremental telemetry report into the session accumulator.
func (h *ProctoringHandler) IngestTelemetry(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	assessmentID, ok := pathID(c, "assessment_id")
	if !ok {
		return
	}

	var delta model.TelemetryDelta
	if fields := validator.Bind(c, &delta); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload, fields)
		return
	}

	if err := h.proctoringService.Ingest(c.Request.Context(), assessmentID, claims.Learner(), delta); err != nil {
		failFromError(c, err, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"status": "accepted"})
}

// Finalize godoc
// POST /api/v1/assessments/:assessment_id/proctoring/finalize
// Scores the session and records the verdict. Repeated calls return the
// first verdict.
func (h *ProctoringHandler) Finalize(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	assessmentID, ok := pathID(c, "assessment_id")
	if !ok {
		return
	}

	res, err := h.proctoringService.Finalize(c.Request.Context(), assessmentID, claims.Learner())
	if err != nil {
		failFromError(c, err, response.ErrResultNotFound)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// GetResult godoc
// GET /api/v1/assessments/:assessment_id/proctoring
func (h *ProctoringHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	assessmentID, ok := pathID(c, "assessment_id")
	if !ok {
		return
	}

	res, err := h.proctoringService.Result(c.Request.Context(), assessmentID, claims.Learner())
	if err != nil {
		failFromError(c, err, response.ErrResultNotFound)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Score godoc
// POST /api/v1/proctoring/score
// Scores a supplied snapshot without recording anything.
func (h *ProctoringHandler) Score(c *gin.Context) {
	var req model.ScoreRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res := h.proctoringService.Score(req.AssessmentID, req.Metrics)
	response.Success(c, http.StatusOK, res)
}
