package controller

import (
	"context"

	"examgrader/internal/grading/model"
	"examgrader/internal/grading/service"
	"examgrader/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// GradingAPI is the service surface the HTTP layer depends on.
type GradingAPI interface {
	Submit(ctx context.Context, input service.SubmitInput) (service.SubmitOutput, error)
	GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error)
	RunCode(ctx context.Context, language, code string) (service.RunOutput, error)
}

// GradingController handles submission and sandbox HTTP endpoints.
type GradingController struct {
	grading GradingAPI
}

// NewGradingController creates a new GradingController.
func NewGradingController(grading GradingAPI) *GradingController {
	return &GradingController{grading: grading}
}

// Register mounts the routes under group.
func (h *GradingController) Register(group *gin.RouterGroup) {
	group.POST("/submissions", h.Submit)
	group.GET("/submissions/:id", h.GetSubmission)
	group.POST("/sandbox/run", h.RunCode)
}

// Submit grades and stores a submission.
func (h *GradingController) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	answers := make([]service.AnswerInput, 0, len(req.AnswersWithID))
	for _, a := range req.AnswersWithID {
		answers = append(answers, service.AnswerInput{QuestionID: a.QuestionID, Answer: a.Answer})
	}
	out, err := h.grading.Submit(c.Request.Context(), service.SubmitInput{
		ExamSetID: req.ExamSetID,
		Student:   req.StudentInfo,
		Answers:   answers,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, SubmitResponse{
		Success:      true,
		Score:        out.Score,
		TotalPoints:  out.TotalPoints,
		SubmissionID: out.SubmissionID,
		Percentage:   out.Percentage,
	})
}

// GetSubmission returns one stored submission.
func (h *GradingController) GetSubmission(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.grading.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmissionResponse{
		Submission:     submission,
		EffectiveScore: submission.EffectiveScore(),
		Percentage:     service.Percentage(submission.EffectiveScore(), submission.TotalPoints),
	})
}

// RunCode executes a snippet in the sandbox.
func (h *GradingController) RunCode(c *gin.Context) {
	var req RunCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	out, err := h.grading.RunCode(c.Request.Context(), req.Language, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, RunCodeResponse{
		Success: out.Success,
		Stdout:  out.Stdout,
		Stderr:  out.Stderr,
		Status:  out.Status,
	})
}

// SubmitRequest defines the submission payload.
type SubmitRequest struct {
	ExamSetID     string            `json:"examSetId" binding:"required"`
	StudentInfo   model.StudentInfo `json:"studentInfo"`
	AnswersWithID []AnswerPayload   `json:"answersWithId"`
}

// AnswerPayload is one answer keyed by question id.
type AnswerPayload struct {
	QuestionID int64             `json:"questionId"`
	Answer     model.AnswerValue `json:"answer"`
}

// SubmitResponse defines the submission response payload.
type SubmitResponse struct {
	Success      bool   `json:"success"`
	Score        int    `json:"score"`
	TotalPoints  int    `json:"totalPoints"`
	SubmissionID string `json:"submissionId"`
	Percentage   int    `json:"percentage"`
}

// SubmissionResponse adds derived totals to a stored submission.
type SubmissionResponse struct {
	*model.Submission
	EffectiveScore int `json:"effectiveScore"`
	Percentage     int `json:"percentage"`
}

// RunCodeRequest defines the sandbox run payload.
type RunCodeRequest struct {
	Language string `json:"language" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

// RunCodeResponse defines the sandbox run response payload.
type RunCodeResponse struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Status  string `json:"status"`
}
