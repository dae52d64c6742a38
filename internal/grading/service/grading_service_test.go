package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"examgrader/internal/grading/grader"
	"examgrader/internal/grading/model"
	"examgrader/internal/sandbox/result"
	appErr "examgrader/pkg/errors"
)

func ok(stdout string) result.RunResult {
	return result.RunResult{Stdout: stdout, Status: result.StatusOK, Succeeded: true}
}

func testBank() *model.Bank {
	return &model.Bank{
		ExamSet: model.ExamSet{ID: "exam-1", Title: "Basics", Language: "python"},
		Questions: []model.Question{
			{ID: 1, ExamSetID: "exam-1", Type: model.QuestionTypeChoice, Points: 1, CorrectAnswers: []string{"b"}},
			{ID: 2, ExamSetID: "exam-1", Type: model.QuestionTypeTrueFalse, Points: 1, CorrectAnswers: []string{"true"}},
			{
				ID: 3, ExamSetID: "exam-1", Type: model.QuestionTypeCodeMSA, Points: 1,
				Text: "print($X)", SubQuestions: []string{"$X"}, CorrectAnswers: []string{"2"}, Language: "python",
			},
		},
	}
}

type harness struct {
	svc         *GradingService
	submissions *fakeSubmissions
	publisher   *fakePublisher
	archiver    *fakeArchiver
	runner      *fakeRunner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	runner := &fakeRunner{
		outputs: map[string]result.RunResult{
			"print(2)":   ok("2\n"),
			"print(1+1)": ok("2\n"),
		},
		languages: map[string]bool{"python": true},
	}
	h := &harness{
		submissions: newFakeSubmissions(),
		publisher:   &fakePublisher{},
		archiver:    &fakeArchiver{},
		runner:      runner,
	}
	svc, err := NewGradingService(Config{
		Questions:    &fakeQuestions{banks: map[string]*model.Bank{"exam-1": testBank()}},
		Submissions:  h.submissions,
		Grader:       grader.New(grader.NewCodeEquivalenceGrader(runner)),
		Runner:       runner,
		Publisher:    h.publisher,
		Archiver:     h.archiver,
		MaxCodeBytes: 32,
	})
	if err != nil {
		t.Fatalf("NewGradingService() error = %v", err)
	}
	h.svc = svc
	return h
}

func student() model.StudentInfo {
	return model.StudentInfo{FirstName: "Ada", LastName: "Lovelace", StudentID: "s-1"}
}

func TestNewGradingServiceRequiresDependencies(t *testing.T) {
	g := grader.New(nil)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no questions", Config{Submissions: newFakeSubmissions(), Grader: g}},
		{"no submissions", Config{Questions: &fakeQuestions{}, Grader: g}},
		{"no grader", Config{Questions: &fakeQuestions{}, Submissions: newFakeSubmissions()}},
	}
	for _, tt := range tests {
		if _, err := NewGradingService(tt.cfg); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestSubmitAllCorrect(t *testing.T) {
	h := newHarness(t)
	out, err := h.svc.Submit(context.Background(), SubmitInput{
		ExamSetID: "exam-1",
		Student:   student(),
		Answers: []AnswerInput{
			{QuestionID: 1, Answer: model.StringAnswer(" B ")},
			{QuestionID: 2, Answer: model.StringAnswer("TRUE")},
			{QuestionID: 3, Answer: model.ListAnswer("1+1")},
		},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if out.Score != 3 || out.TotalPoints != 3 || out.Percentage != 100 {
		t.Fatalf("Submit() = %+v", out)
	}
	if out.SubmissionID == "" {
		t.Fatal("expected submission id")
	}

	stored, err := h.svc.GetSubmission(context.Background(), out.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if len(stored.Answers) != 3 || stored.Score != 3 || stored.TotalPoints != 3 {
		t.Fatalf("stored = %+v", stored)
	}
	if stored.Answers[2].Reason != string(grader.ReasonExecutionMatch) {
		t.Fatalf("code reason = %q", stored.Answers[2].Reason)
	}
	if stored.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt")
	}

	if len(h.publisher.events) != 1 {
		t.Fatalf("events = %d", len(h.publisher.events))
	}
	ev := h.publisher.events[0]
	if ev.EventType != model.EventSubmissionGraded || ev.SubmissionID != out.SubmissionID || ev.Percentage != 100 || ev.StudentID != "s-1" {
		t.Fatalf("event = %+v", ev)
	}
	if len(h.archiver.records) != 1 || h.archiver.records[0].Submission.ID != out.SubmissionID {
		t.Fatalf("archive records = %+v", h.archiver.records)
	}
}

func TestSubmitAllWrong(t *testing.T) {
	h := newHarness(t)
	out, err := h.svc.Submit(context.Background(), SubmitInput{
		ExamSetID: "exam-1",
		Student:   student(),
		Answers: []AnswerInput{
			{QuestionID: 1, Answer: model.StringAnswer("a")},
			{QuestionID: 2, Answer: model.StringAnswer("false")},
			{QuestionID: 3, Answer: model.ListAnswer("undefined_name")},
		},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if out.Score != 0 || out.TotalPoints != 3 || out.Percentage != 0 {
		t.Fatalf("Submit() = %+v", out)
	}
}

func TestSubmitDropsUnknownQuestions(t *testing.T) {
	h := newHarness(t)
	out, err := h.svc.Submit(context.Background(), SubmitInput{
		ExamSetID: "exam-1",
		Student:   student(),
		Answers: []AnswerInput{
			{QuestionID: 1, Answer: model.StringAnswer("b")},
			{QuestionID: 99, Answer: model.StringAnswer("b")},
		},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if out.Score != 1 || out.TotalPoints != 1 || out.Percentage != 100 {
		t.Fatalf("Submit() = %+v", out)
	}
	stored, _ := h.svc.GetSubmission(context.Background(), out.SubmissionID)
	if len(stored.Answers) != 1 || stored.Answers[0].QuestionID != 1 {
		t.Fatalf("answers = %+v", stored.Answers)
	}
	dropped := h.archiver.records[0].DroppedQuestionIDs
	if len(dropped) != 1 || dropped[0] != 99 {
		t.Fatalf("dropped = %v", dropped)
	}
}

func TestSubmitUnansweredAndMalformed(t *testing.T) {
	h := newHarness(t)
	var absent, malformed model.AnswerValue
	if err := malformed.UnmarshalJSON([]byte(`{"x":1}`)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	out, err := h.svc.Submit(context.Background(), SubmitInput{
		ExamSetID: "exam-1",
		Student:   student(),
		Answers: []AnswerInput{
			{QuestionID: 1, Answer: absent},
			{QuestionID: 2, Answer: malformed},
		},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if out.Score != 0 || out.TotalPoints != 2 {
		t.Fatalf("Submit() = %+v", out)
	}
	stored, _ := h.svc.GetSubmission(context.Background(), out.SubmissionID)
	if stored.Answers[0].Reason != string(grader.ReasonUnanswered) || stored.Answers[1].Reason != string(grader.ReasonMalformedAnswer) {
		t.Fatalf("reasons = %q, %q", stored.Answers[0].Reason, stored.Answers[1].Reason)
	}
}

func TestSubmitEmptyAnswers(t *testing.T) {
	h := newHarness(t)
	out, err := h.svc.Submit(context.Background(), SubmitInput{ExamSetID: "exam-1", Student: student()})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if out.Score != 0 || out.TotalPoints != 0 || out.Percentage != 0 {
		t.Fatalf("Submit() = %+v", out)
	}
	if h.submissions.count() != 1 {
		t.Fatalf("stored = %d", h.submissions.count())
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *harness)
		input  SubmitInput
		code   appErr.ErrorCode
	}{
		{
			name:  "missing exam set id",
			input: SubmitInput{Student: student()},
			code:  appErr.InvalidParams,
		},
		{
			name:  "missing student id",
			input: SubmitInput{ExamSetID: "exam-1", Student: model.StudentInfo{FirstName: "A", LastName: "B"}},
			code:  appErr.InvalidParams,
		},
		{
			name:  "unknown exam set",
			input: SubmitInput{ExamSetID: "nope", Student: student()},
			code:  appErr.ExamSetNotFound,
		},
		{
			name: "bank load failure",
			mutate: func(h *harness) {
				h.svc.questions = &fakeQuestions{err: errors.New("connection refused")}
			},
			input: SubmitInput{ExamSetID: "exam-1", Student: student()},
			code:  appErr.DatabaseError,
		},
		{
			name: "transaction failure",
			mutate: func(h *harness) {
				h.submissions.createErr = errors.New("deadlock")
			},
			input: SubmitInput{
				ExamSetID: "exam-1",
				Student:   student(),
				Answers:   []AnswerInput{{QuestionID: 1, Answer: model.StringAnswer("b")}},
			},
			code: appErr.TransactionFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.mutate != nil {
				tt.mutate(h)
			}
			_, err := h.svc.Submit(context.Background(), tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := appErr.GetCode(err); got != tt.code {
				t.Fatalf("code = %d, want %d", got, tt.code)
			}
			if h.submissions.count() != 0 {
				t.Fatalf("stored = %d, want 0", h.submissions.count())
			}
			if len(h.publisher.events) != 0 || len(h.archiver.records) != 0 {
				t.Fatal("side effects ran for a failed submission")
			}
		})
	}
}

func TestSubmitToleratesSideEffectFailures(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker down")
	h.archiver.err = errors.New("bucket gone")

	out, err := h.svc.Submit(context.Background(), SubmitInput{
		ExamSetID: "exam-1",
		Student:   student(),
		Answers:   []AnswerInput{{QuestionID: 1, Answer: model.StringAnswer("b")}},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if out.Score != 1 || h.submissions.count() != 1 {
		t.Fatalf("out = %+v, stored = %d", out, h.submissions.count())
	}
}

func TestSubmitSandboxFailureAbortsBeforeCommit(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"busy", appErr.New(appErr.SandboxBusy)},
		{"unsupported language", appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", "python")},
		{"system error", appErr.Wrapf(errors.New("fork failed"), appErr.SandboxSystemError, "start python3")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.runner.err = tt.err

			_, err := h.svc.Submit(context.Background(), SubmitInput{
				ExamSetID: "exam-1",
				Student:   student(),
				Answers: []AnswerInput{
					{QuestionID: 1, Answer: model.StringAnswer("b")},
					{QuestionID: 3, Answer: model.ListAnswer("1+1")},
				},
			})
			if code := appErr.GetCode(err); code != appErr.ServiceUnavailable {
				t.Fatalf("code = %v, want ServiceUnavailable (err %v)", code, err)
			}
			if appErr.GetCode(err).HTTPStatus() != 503 {
				t.Fatalf("status = %d", appErr.GetCode(err).HTTPStatus())
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("cause lost: %v", err)
			}
			if h.submissions.count() != 0 || len(h.publisher.events) != 0 || len(h.archiver.records) != 0 {
				t.Fatalf("stored = %d events = %d archives = %d", h.submissions.count(), len(h.publisher.events), len(h.archiver.records))
			}
		})
	}
}

func TestSubmitLiteralCodeMatchNeedsNoSandbox(t *testing.T) {
	h := newHarness(t)
	h.runner.err = appErr.New(appErr.SandboxBusy)

	out, err := h.svc.Submit(context.Background(), SubmitInput{
		ExamSetID: "exam-1",
		Student:   student(),
		Answers:   []AnswerInput{{QuestionID: 3, Answer: model.ListAnswer(" 2 ")}},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if out.Score != 1 || h.submissions.count() != 1 {
		t.Fatalf("out = %+v, stored = %d", out, h.submissions.count())
	}
}

func TestSubmitConcurrentSubmissionsAreIndependent(t *testing.T) {
	h := newHarness(t)
	const n = 20
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answer := "a"
			if i%2 == 0 {
				answer = "b"
			}
			out, err := h.svc.Submit(context.Background(), SubmitInput{
				ExamSetID: "exam-1",
				Student:   model.StudentInfo{FirstName: "S", LastName: "T", StudentID: fmt.Sprintf("s-%d", i)},
				Answers:   []AnswerInput{{QuestionID: 1, Answer: model.StringAnswer(answer)}},
			})
			ids[i], errs[i] = out.SubmissionID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("submission %d error = %v", i, errs[i])
		}
		sub, err := h.svc.GetSubmission(context.Background(), ids[i])
		if err != nil {
			t.Fatalf("GetSubmission(%d) error = %v", i, err)
		}
		want := 0
		if i%2 == 0 {
			want = 1
		}
		if sub.Score != want || sub.Student.StudentID != fmt.Sprintf("s-%d", i) {
			t.Fatalf("submission %d = %+v", i, sub)
		}
	}
	if h.submissions.count() != n {
		t.Fatalf("stored = %d", h.submissions.count())
	}
}

func TestGetSubmissionErrors(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.GetSubmission(context.Background(), ""); appErr.GetCode(err) != appErr.InvalidParams {
		t.Fatalf("blank id err = %v", err)
	}
	if _, err := h.svc.GetSubmission(context.Background(), "missing"); appErr.GetCode(err) != appErr.SubmissionNotFound {
		t.Fatalf("missing err = %v", err)
	}
	h.submissions.getErr = errors.New("connection reset")
	if _, err := h.svc.GetSubmission(context.Background(), "any"); appErr.GetCode(err) != appErr.DatabaseError {
		t.Fatalf("db err = %v", err)
	}
}

func TestAggregateAndPercentage(t *testing.T) {
	answers := []model.GradedAnswer{
		{PointsEarned: 2, MaxPoints: 2},
		{PointsEarned: 0, MaxPoints: 3},
		{PointsEarned: 1, MaxPoints: 1},
	}
	if got := Aggregate(answers); got != (Totals{Score: 3, TotalPoints: 6}) {
		t.Fatalf("Aggregate() = %+v", got)
	}
	if got := Aggregate(nil); got != (Totals{}) {
		t.Fatalf("Aggregate(nil) = %+v", got)
	}

	tests := []struct{ score, total, want int }{
		{3, 3, 100},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{1, 200, 1},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := Percentage(tt.score, tt.total); got != tt.want {
			t.Fatalf("Percentage(%d, %d) = %d, want %d", tt.score, tt.total, got, tt.want)
		}
	}
}

func TestRunCode(t *testing.T) {
	h := newHarness(t)

	out, err := h.svc.RunCode(context.Background(), "python", "print(2)")
	if err != nil {
		t.Fatalf("RunCode() error = %v", err)
	}
	if !out.Success || out.Stdout != "2\n" || out.Status != string(result.StatusOK) {
		t.Fatalf("RunCode() = %+v", out)
	}

	out, err = h.svc.RunCode(context.Background(), "python", "boom")
	if err != nil {
		t.Fatalf("RunCode() error = %v", err)
	}
	if out.Success || out.Stderr == "" {
		t.Fatalf("RunCode() = %+v", out)
	}

	tests := []struct {
		name     string
		language string
		code     string
		want     appErr.ErrorCode
	}{
		{"blank language", " ", "print(1)", appErr.InvalidParams},
		{"unsupported language", "cobol", "DISPLAY 1", appErr.LanguageNotSupported},
		{"too large", "python", "print('0123456789012345678901234567890')", appErr.CodeTooLarge},
	}
	for _, tt := range tests {
		if _, err := h.svc.RunCode(context.Background(), tt.language, tt.code); appErr.GetCode(err) != tt.want {
			t.Fatalf("%s: err = %v, want code %d", tt.name, err, tt.want)
		}
	}

	h.runner.err = appErr.New(appErr.SandboxBusy)
	if _, err := h.svc.RunCode(context.Background(), "python", "print(1)"); appErr.GetCode(err) != appErr.SandboxBusy {
		t.Fatalf("busy err = %v", err)
	}
}

func TestSubmitChoiceAndShortScenario(t *testing.T) {
	bank := &model.Bank{
		ExamSet: model.ExamSet{ID: "colors", Language: "python"},
		Questions: []model.Question{
			{ID: 10, ExamSetID: "colors", Type: model.QuestionTypeChoice, Points: 1, CorrectAnswers: []string{"B"}},
			{ID: 11, ExamSetID: "colors", Type: model.QuestionTypeShort, Points: 2, CorrectAnswers: []string{"blue"}},
		},
	}
	tests := []struct {
		name    string
		answers []AnswerInput
		want    SubmitOutput
	}{
		{
			name: "all correct",
			answers: []AnswerInput{
				{QuestionID: 10, Answer: model.StringAnswer("B")},
				{QuestionID: 11, Answer: model.StringAnswer("BLUE")},
			},
			want: SubmitOutput{Score: 3, TotalPoints: 3, Percentage: 100},
		},
		{
			name: "wrong and unanswered",
			answers: []AnswerInput{
				{QuestionID: 10, Answer: model.StringAnswer("A")},
				{QuestionID: 11},
			},
			want: SubmitOutput{Score: 0, TotalPoints: 3, Percentage: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewGradingService(Config{
				Questions:   &fakeQuestions{banks: map[string]*model.Bank{"colors": bank}},
				Submissions: newFakeSubmissions(),
				Grader:      grader.New(nil),
			})
			if err != nil {
				t.Fatalf("NewGradingService() error = %v", err)
			}
			out, err := svc.Submit(context.Background(), SubmitInput{ExamSetID: "colors", Student: student(), Answers: tt.answers})
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			if out.Score != tt.want.Score || out.TotalPoints != tt.want.TotalPoints || out.Percentage != tt.want.Percentage {
				t.Fatalf("Submit() = %+v, want %+v", out, tt.want)
			}
		})
	}
}
