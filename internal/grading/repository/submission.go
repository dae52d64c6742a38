package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"examgrader/internal/common/db"
	"examgrader/internal/grading/model"
)

var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionRepository persists graded submissions.
type SubmissionRepository interface {
	// CreateWithAnswers writes the submission and all of its answers in one transaction.
	CreateWithAnswers(ctx context.Context, submission *model.Submission) error
	Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error
	CreateAnswers(ctx context.Context, tx db.Transaction, submissionID string, answers []model.GradedAnswer) error
	GetByID(ctx context.Context, submissionID string) (*model.Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	dbProvider db.Provider
	txAttempts int
}

// defaultTxAttempts bounds reruns of the submission transaction on deadlock or lock wait timeout.
const defaultTxAttempts = 3

func NewSubmissionRepository(provider db.Provider) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{dbProvider: provider, txAttempts: defaultTxAttempts}
}

const submissionColumns = "id, exam_set_id, first_name, last_name, student_id, student_number, classroom, score, total_points, created_at"

const gradedAnswerColumns = "question_id, answer_value, is_correct, points_earned, max_points, grading_reason, manual_score, is_manual_graded"

func (r *MySQLSubmissionRepository) CreateWithAnswers(ctx context.Context, submission *model.Submission) error {
	database, err := db.Resolve(r.dbProvider)
	if err != nil {
		return err
	}
	return db.RunInTx(ctx, database, r.txAttempts, func(tx db.Transaction) error {
		if err := r.Create(ctx, tx, submission); err != nil {
			return err
		}
		return r.CreateAnswers(ctx, tx, submission.ID, submission.Answers)
	})
}

// Create inserts the submission row only.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submissionID is required")
	}
	if submission.ExamSetID == "" {
		return errors.New("examSetID is required")
	}
	if submission.CreatedAt.IsZero() {
		return errors.New("createdAt is required")
	}

	database, err := db.Resolve(r.dbProvider)
	if err != nil {
		return err
	}
	query := "INSERT INTO submissions (" + submissionColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err = db.Using(database, tx).Exec(
		ctx,
		query,
		submission.ID,
		submission.ExamSetID,
		submission.Student.FirstName,
		submission.Student.LastName,
		submission.Student.StudentID,
		nullableString(submission.Student.StudentNumber),
		nullableString(submission.Student.Classroom),
		submission.Score,
		submission.TotalPoints,
		submission.CreatedAt,
	)
	if err != nil {
		if key, ok := db.IsDuplicateKey(err); ok {
			return errors.New("duplicate submission on key " + key)
		}
		return err
	}
	return nil
}

// CreateAnswers inserts all answers with a single multi-row statement.
func (r *MySQLSubmissionRepository) CreateAnswers(ctx context.Context, tx db.Transaction, submissionID string, answers []model.GradedAnswer) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	if len(answers) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO graded_answers (submission_id, " + gradedAnswerColumns + ") VALUES ")
	args := make([]interface{}, 0, len(answers)*9)
	for i, a := range answers {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		var answerValue interface{}
		if len(a.AnswerValue) > 0 {
			answerValue = string(a.AnswerValue)
		}
		var manualScore interface{}
		if a.ManualScore != nil {
			manualScore = *a.ManualScore
		}
		args = append(args,
			submissionID,
			a.QuestionID,
			answerValue,
			a.IsCorrect,
			a.PointsEarned,
			a.MaxPoints,
			a.Reason,
			manualScore,
			a.IsManualGraded,
		)
	}
	database, err := db.Resolve(r.dbProvider)
	if err != nil {
		return err
	}
	_, err = db.Using(database, tx).Exec(ctx, b.String(), args...)
	return err
}

// GetByID loads a submission with its answers in insertion order.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}

	database, err := db.Resolve(r.dbProvider)
	if err != nil {
		return nil, err
	}
	row := database.QueryRow(ctx, "SELECT "+submissionColumns+" FROM submissions WHERE id = ? LIMIT 1", submissionID)
	submission := &model.Submission{}
	var studentNumber, classroom sql.NullString
	if err := row.Scan(
		&submission.ID,
		&submission.ExamSetID,
		&submission.Student.FirstName,
		&submission.Student.LastName,
		&submission.Student.StudentID,
		&studentNumber,
		&classroom,
		&submission.Score,
		&submission.TotalPoints,
		&submission.CreatedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	submission.Student.StudentNumber = studentNumber.String
	submission.Student.Classroom = classroom.String

	rows, err := database.Query(ctx, "SELECT "+gradedAnswerColumns+" FROM graded_answers WHERE submission_id = ? ORDER BY id", submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submission.Answers = []model.GradedAnswer{}
	for rows.Next() {
		var (
			a           model.GradedAnswer
			answerValue []byte
			manualScore sql.NullInt64
		)
		if err := rows.Scan(&a.QuestionID, &answerValue, &a.IsCorrect, &a.PointsEarned, &a.MaxPoints, &a.Reason, &manualScore, &a.IsManualGraded); err != nil {
			return nil, err
		}
		if len(answerValue) > 0 {
			a.AnswerValue = append([]byte(nil), answerValue...)
		}
		if manualScore.Valid {
			v := int(manualScore.Int64)
			a.ManualScore = &v
		}
		submission.Answers = append(submission.Answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submission, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
