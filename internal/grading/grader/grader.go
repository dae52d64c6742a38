// Package grader decides whether one submitted answer is correct.
package grader

import (
	"context"

	"examgrader/internal/grading/model"
	"examgrader/pkg/monitoring"
	"examgrader/pkg/utils/logger"

	"go.uber.org/zap"
)

// Grader dispatches on question type. Anything wrong with the answer itself is an incorrect verdict;
// only a sandbox that cannot run the programs is reported as an error.
type Grader struct {
	code *CodeEquivalenceGrader
}

// New creates a Grader; code may be nil, in which case CODEMSA answers only pass the literal phase.
func New(code *CodeEquivalenceGrader) *Grader {
	return &Grader{code: code}
}

// Grade grades one answer against its question.
func (g *Grader) Grade(ctx context.Context, q model.Question, answer model.AnswerValue) (Verdict, error) {
	var v Verdict
	switch q.Type {
	case model.QuestionTypeChoice, model.QuestionTypeShort, model.QuestionTypeTrueFalse:
		v = gradeSingle(q, answer)
	case model.QuestionTypeCodeMSA:
		var err error
		if v, err = g.gradeCode(ctx, q, answer); err != nil {
			return Verdict{}, err
		}
	default:
		logger.Warn(ctx, "unknown question type graded as incorrect",
			zap.Int64("question_id", q.ID),
			zap.String("type", string(q.Type)),
		)
		v = newVerdict(q, false, ReasonUnknownType)
	}

	typeLabel := string(q.Type)
	if !q.Type.Known() {
		typeLabel = "unknown"
	}
	monitoring.GradingVerdicts.WithLabelValues(typeLabel, string(v.Reason)).Inc()
	return v, nil
}

func gradeSingle(q model.Question, answer model.AnswerValue) Verdict {
	switch answer.Kind() {
	case model.AnswerAbsent:
		return newVerdict(q, false, ReasonUnanswered)
	case model.AnswerString:
	default:
		return newVerdict(q, false, ReasonMalformedAnswer)
	}
	if len(q.CorrectAnswers) == 0 {
		return newVerdict(q, false, ReasonMissingAnswerKey)
	}
	s, _ := answer.Str()
	if Normalize(s) == Normalize(q.CorrectAnswers[0]) {
		return newVerdict(q, true, ReasonCorrect)
	}
	return newVerdict(q, false, ReasonWrong)
}

func (g *Grader) gradeCode(ctx context.Context, q model.Question, answer model.AnswerValue) (Verdict, error) {
	values, ok := answer.List()
	if !ok {
		if answer.Kind() == model.AnswerAbsent {
			return newVerdict(q, false, ReasonUnanswered), nil
		}
		return newVerdict(q, false, ReasonMalformedAnswer), nil
	}
	if len(q.CorrectAnswers) != len(q.SubQuestions) {
		logger.Warn(ctx, "code question answer key does not match its placeholders",
			zap.Int64("question_id", q.ID),
			zap.Int("correct_answers", len(q.CorrectAnswers)),
			zap.Int("sub_questions", len(q.SubQuestions)),
		)
		return newVerdict(q, false, ReasonMissingAnswerKey), nil
	}
	if len(values) != len(q.SubQuestions) {
		return newVerdict(q, false, ReasonShapeMismatch), nil
	}

	if literalMatch(values, q.CorrectAnswers) {
		return newVerdict(q, true, ReasonLiteralMatch), nil
	}
	if g.code == nil {
		return newVerdict(q, false, ReasonWrong), nil
	}
	correct, reason, err := g.code.Equivalent(ctx, q, values)
	if err != nil {
		return Verdict{}, err
	}
	return newVerdict(q, correct, reason), nil
}

func literalMatch(values, correct []string) bool {
	for i := range values {
		if Normalize(values[i]) != Normalize(correct[i]) {
			return false
		}
	}
	return true
}
