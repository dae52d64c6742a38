package model

import (
	"encoding/json"
	"time"
)

// StudentInfo identifies who took the exam. StudentNumber and Classroom are optional.
type StudentInfo struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	StudentID     string `json:"studentId"`
	StudentNumber string `json:"studentNumber,omitempty"`
	Classroom     string `json:"classroom,omitempty"`
}

// GradedAnswer is the persisted outcome of grading one answer.
type GradedAnswer struct {
	QuestionID int64 `json:"questionId"`
	// AnswerValue is the answer as submitted; nil when unanswered.
	AnswerValue  json.RawMessage `json:"answerValue"`
	IsCorrect    bool            `json:"isCorrect"`
	PointsEarned int             `json:"pointsEarned"`
	// MaxPoints is frozen at grading time.
	MaxPoints int    `json:"maxPoints"`
	Reason    string `json:"reason,omitempty"`

	ManualScore    *int `json:"manualScore,omitempty"`
	IsManualGraded bool `json:"isManualGraded"`
}

// EffectivePoints prefers a human grader's score over the automatic one.
func (g GradedAnswer) EffectivePoints() int {
	if g.IsManualGraded && g.ManualScore != nil {
		return *g.ManualScore
	}
	return g.PointsEarned
}

// Submission is the aggregate root of one grading run.
type Submission struct {
	ID          string         `json:"submissionId"`
	ExamSetID   string         `json:"examSetId"`
	Student     StudentInfo    `json:"studentInfo"`
	Score       int            `json:"score"`
	TotalPoints int            `json:"totalPoints"`
	CreatedAt   time.Time      `json:"createdAt"`
	Answers     []GradedAnswer `json:"answers"`
}

// EffectiveScore sums EffectivePoints over all answers.
func (s *Submission) EffectiveScore() int {
	total := 0
	for _, a := range s.Answers {
		total += a.EffectivePoints()
	}
	return total
}

const EventSubmissionGraded = "submission.graded"

// SubmissionGradedEvent is published after a submission commits.
type SubmissionGradedEvent struct {
	EventType    string    `json:"eventType"`
	SubmissionID string    `json:"submissionId"`
	ExamSetID    string    `json:"examSetId"`
	StudentID    string    `json:"studentId"`
	Score        int       `json:"score"`
	TotalPoints  int       `json:"totalPoints"`
	Percentage   int       `json:"percentage"`
	GradedAt     time.Time `json:"gradedAt"`
}
