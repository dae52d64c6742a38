package grader

import "examgrader/internal/grading/model"

// Reason is a short machine-readable explanation of a verdict.
type Reason string

const (
	ReasonCorrect           Reason = "correct"
	ReasonWrong             Reason = "wrong"
	ReasonUnanswered        Reason = "unanswered"
	ReasonMalformedAnswer   Reason = "malformed_answer"
	ReasonMissingAnswerKey  Reason = "missing_answer_key"
	ReasonShapeMismatch     Reason = "shape_mismatch"
	ReasonLiteralMatch      Reason = "literal_match"
	ReasonExecutionMatch    Reason = "execution_match"
	ReasonExecutionMismatch Reason = "execution_mismatch"
	ReasonExecutionFailed   Reason = "execution_failed"
	ReasonUnknownType       Reason = "unknown_type"
)

// Verdict is the grading outcome of one answer. PointsEarned is 0 or MaxPoints.
type Verdict struct {
	IsCorrect    bool
	PointsEarned int
	MaxPoints    int
	Reason       Reason
}

func newVerdict(q model.Question, correct bool, reason Reason) Verdict {
	v := Verdict{IsCorrect: correct, MaxPoints: q.Points, Reason: reason}
	if correct {
		v.PointsEarned = q.Points
	}
	return v
}
