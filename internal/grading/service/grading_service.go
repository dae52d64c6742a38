package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"examgrader/internal/grading/grader"
	"examgrader/internal/grading/model"
	"examgrader/internal/grading/repository"
	"examgrader/internal/sandbox"
	appErr "examgrader/pkg/errors"
	"examgrader/pkg/monitoring"
	"examgrader/pkg/utils/contextkey"
	"examgrader/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultGradeConcurrency = 4
	defaultMaxCodeBytes     = 64 * 1024
)

// CodeRunner is the sandbox surface used by the standalone run endpoint.
type CodeRunner interface {
	sandbox.Runner
	Supports(language string) bool
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Publish time.Duration `yaml:"publish"`
	Archive time.Duration `yaml:"archive"`
}

// Config holds grading service dependencies and settings.
type Config struct {
	Questions   repository.QuestionRepository
	Submissions repository.SubmissionRepository
	Grader      *grader.Grader
	Runner      CodeRunner

	// Publisher and Archiver are optional post-commit side effects.
	Publisher EventPublisher
	Archiver  Archiver

	GradeConcurrency int
	MaxCodeBytes     int
	Timeouts         TimeoutConfig
}

// GradingService grades submissions and persists the results.
type GradingService struct {
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	grader      *grader.Grader
	runner      CodeRunner
	publisher   EventPublisher
	archiver    Archiver

	gradeConcurrency int
	maxCodeBytes     int
	timeouts         TimeoutConfig
	now              func() time.Time
}

// AnswerInput is one submitted answer.
type AnswerInput struct {
	QuestionID int64
	Answer     model.AnswerValue
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	ExamSetID string
	Student   model.StudentInfo
	Answers   []AnswerInput
}

// SubmitOutput is returned after the submission commits.
type SubmitOutput struct {
	SubmissionID string
	Score        int
	TotalPoints  int
	Percentage   int
}

// RunOutput is the result of a standalone sandbox run.
type RunOutput struct {
	Success bool
	Stdout  string
	Stderr  string
	Status  string
}

// Totals is the fold of a submission's graded answers.
type Totals struct {
	Score       int
	TotalPoints int
}

// NewGradingService creates a new grading service.
func NewGradingService(cfg Config) (*GradingService, error) {
	if cfg.Questions == nil {
		return nil, fmt.Errorf("question repository is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Grader == nil {
		return nil, fmt.Errorf("grader is required")
	}
	if cfg.GradeConcurrency <= 0 {
		cfg.GradeConcurrency = defaultGradeConcurrency
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	return &GradingService{
		questions:        cfg.Questions,
		submissions:      cfg.Submissions,
		grader:           cfg.Grader,
		runner:           cfg.Runner,
		publisher:        cfg.Publisher,
		archiver:         cfg.Archiver,
		gradeConcurrency: cfg.GradeConcurrency,
		maxCodeBytes:     cfg.MaxCodeBytes,
		timeouts:         cfg.Timeouts,
		now:              time.Now,
	}, nil
}

// Submit grades every answer against the exam set's bank and stores the result atomically.
// Nothing is persisted unless the whole submission commits.
func (s *GradingService) Submit(ctx context.Context, input SubmitInput) (SubmitOutput, error) {
	if err := validateSubmitInput(input); err != nil {
		monitoring.SubmissionsGraded.WithLabelValues("invalid").Inc()
		return SubmitOutput{}, err
	}

	bank, err := s.loadBank(ctx, input.ExamSetID)
	if err != nil {
		monitoring.SubmissionsGraded.WithLabelValues("bank_unavailable").Inc()
		return SubmitOutput{}, err
	}

	submissionID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.SubmissionID, submissionID)

	graded, dropped, err := s.gradeAll(ctx, bank, input.Answers)
	if err != nil {
		monitoring.SubmissionsGraded.WithLabelValues("grading_unavailable").Inc()
		logger.Warn(ctx, "grading aborted before commit",
			zap.String("exam_set_id", input.ExamSetID),
			zap.Error(err),
		)
		return SubmitOutput{}, appErr.Wrapf(err, appErr.ServiceUnavailable, "grading could not complete, retry the submission").
			WithDetail("cause", appErr.GetCode(err).Message())
	}
	totals := Aggregate(graded)
	submission := &model.Submission{
		ID:          submissionID,
		ExamSetID:   input.ExamSetID,
		Student:     input.Student,
		Score:       totals.Score,
		TotalPoints: totals.TotalPoints,
		CreatedAt:   s.now().UTC(),
		Answers:     graded,
	}

	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	err = s.submissions.CreateWithAnswers(ctxDB, submission)
	cancel()
	if err != nil {
		monitoring.SubmissionsGraded.WithLabelValues("transaction_failed").Inc()
		return SubmitOutput{}, appErr.Wrapf(err, appErr.TransactionFailed, "save submission failed")
	}
	monitoring.SubmissionsGraded.WithLabelValues("graded").Inc()

	out := SubmitOutput{
		SubmissionID: submissionID,
		Score:        totals.Score,
		TotalPoints:  totals.TotalPoints,
		Percentage:   Percentage(totals.Score, totals.TotalPoints),
	}
	logger.Info(ctx, "submission graded",
		zap.String("exam_set_id", input.ExamSetID),
		zap.Int("score", out.Score),
		zap.Int("total_points", out.TotalPoints),
		zap.Int("answers", len(graded)),
		zap.Int("dropped", len(dropped)),
	)

	s.afterCommit(ctx, submission, out.Percentage, dropped)
	return out, nil
}

// GetSubmission returns a stored submission with its graded answers.
func (s *GradingService) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	submission, err := s.submissions.GetByID(ctxDB, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return submission, nil
}

// RunCode executes a snippet once; unsupported languages are rejected before anything is spawned.
func (s *GradingService) RunCode(ctx context.Context, language, code string) (RunOutput, error) {
	if s.runner == nil {
		return RunOutput{}, appErr.New(appErr.ServiceUnavailable).WithMessage("sandbox is not configured")
	}
	if strings.TrimSpace(language) == "" {
		return RunOutput{}, appErr.ValidationError("language", "required")
	}
	if !s.runner.Supports(language) {
		return RunOutput{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", language)
	}
	if len(code) > s.maxCodeBytes {
		return RunOutput{}, appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}

	res, err := s.runner.Run(ctx, sandbox.RunRequest{Language: language, Code: code})
	if err != nil {
		return RunOutput{}, err
	}
	return RunOutput{
		Success: res.Succeeded,
		Stdout:  res.Stdout,
		Stderr:  res.Stderr,
		Status:  string(res.Status),
	}, nil
}

// Aggregate sums earned and maximum points.
func Aggregate(answers []model.GradedAnswer) Totals {
	var t Totals
	for _, a := range answers {
		t.Score += a.PointsEarned
		t.TotalPoints += a.MaxPoints
	}
	return t
}

// Percentage is round(100*score/total), halves away from zero, or 0 when total is not positive.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(score) / float64(total)))
}

func (s *GradingService) loadBank(ctx context.Context, examSetID string) (*model.Bank, error) {
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	bank, err := s.questions.GetBank(ctxDB, examSetID)
	if err != nil {
		if errors.Is(err, repository.ErrExamSetNotFound) {
			return nil, appErr.New(appErr.ExamSetNotFound).WithMessage("exam set not found").WithDetail("examSetId", examSetID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load question bank failed")
	}
	return bank, nil
}

// gradeAll grades answers to known questions with bounded parallelism.
// Answers to unknown questions are dropped and their ids returned.
// The first sandbox error cancels the remaining runs and is returned.
func (s *GradingService) gradeAll(ctx context.Context, bank *model.Bank, answers []AnswerInput) ([]model.GradedAnswer, []int64, error) {
	index := bank.Index()
	type job struct {
		question model.Question
		answer   model.AnswerValue
	}
	jobs := make([]job, 0, len(answers))
	var dropped []int64
	for _, a := range answers {
		q, ok := index[a.QuestionID]
		if !ok {
			logger.Warn(ctx, "answer for unknown question dropped",
				zap.String("exam_set_id", bank.ExamSet.ID),
				zap.Int64("question_id", a.QuestionID),
			)
			dropped = append(dropped, a.QuestionID)
			continue
		}
		jobs = append(jobs, job{question: q, answer: a.Answer})
	}

	graded := make([]model.GradedAnswer, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.gradeConcurrency)
	for i, j := range jobs {
		g.Go(func() error {
			v, err := s.grader.Grade(gctx, j.question, j.answer)
			if err != nil {
				return fmt.Errorf("question %d: %w", j.question.ID, err)
			}
			graded[i] = model.GradedAnswer{
				QuestionID:   j.question.ID,
				AnswerValue:  j.answer.Raw(),
				IsCorrect:    v.IsCorrect,
				PointsEarned: v.PointsEarned,
				MaxPoints:    v.MaxPoints,
				Reason:       string(v.Reason),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dropped, err
	}
	return graded, dropped, nil
}

// afterCommit runs best-effort side effects; failures are logged and never returned.
func (s *GradingService) afterCommit(ctx context.Context, submission *model.Submission, percentage int, dropped []int64) {
	ctx = context.WithoutCancel(ctx)

	if s.publisher != nil {
		event := model.SubmissionGradedEvent{
			EventType:    model.EventSubmissionGraded,
			SubmissionID: submission.ID,
			ExamSetID:    submission.ExamSetID,
			StudentID:    submission.Student.StudentID,
			Score:        submission.Score,
			TotalPoints:  submission.TotalPoints,
			Percentage:   percentage,
			GradedAt:     submission.CreatedAt,
		}
		ctxPub, cancel := withTimeout(ctx, s.timeouts.Publish)
		if err := s.publisher.PublishGraded(ctxPub, event); err != nil {
			logger.Warn(ctx, "publish graded event failed", zap.Error(err))
		}
		cancel()
	}

	if s.archiver != nil {
		record := ArchiveRecord{
			Submission:         submission,
			Percentage:         percentage,
			DroppedQuestionIDs: dropped,
			ArchivedAt:         s.now().UTC(),
		}
		ctxArc, cancel := withTimeout(ctx, s.timeouts.Archive)
		if err := s.archiver.Archive(ctxArc, record); err != nil {
			logger.Warn(ctx, "archive submission failed", zap.Error(err))
		}
		cancel()
	}
}

func validateSubmitInput(input SubmitInput) error {
	if strings.TrimSpace(input.ExamSetID) == "" {
		return appErr.ValidationError("examSetId", "required")
	}
	if strings.TrimSpace(input.Student.FirstName) == "" {
		return appErr.ValidationError("studentInfo.firstName", "required")
	}
	if strings.TrimSpace(input.Student.LastName) == "" {
		return appErr.ValidationError("studentInfo.lastName", "required")
	}
	if strings.TrimSpace(input.Student.StudentID) == "" {
		return appErr.ValidationError("studentInfo.studentId", "required")
	}
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
