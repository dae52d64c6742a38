//go:build unix

package grader

import (
	"context"
	"testing"
	"time"

	"examgrader/internal/grading/model"
	"examgrader/internal/sandbox"
	"examgrader/internal/sandbox/profile"
)

func TestCodeExecutionWaitsOutBusySandbox(t *testing.T) {
	exec, err := sandbox.NewExecutor(sandbox.Config{
		WorkRoot:       t.TempDir(),
		WallTimeout:    5 * time.Second,
		MaxConcurrent:  1,
		AcquireTimeout: 100 * time.Millisecond,
		Languages: map[string]profile.LanguageConfig{
			"sh": {SourceFile: "main.sh", Command: "/bin/sh main.sh"},
		},
	})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	q := model.Question{
		ID:             11,
		Type:           model.QuestionTypeCodeMSA,
		Points:         5,
		Text:           "echo $(( $X ))",
		SubQuestions:   []string{"$X"},
		CorrectAnswers: []string{"2"},
		Language:       "sh",
	}
	g := New(NewCodeEquivalenceGrader(exec))

	busy := make(chan error, 1)
	go func() {
		_, err := exec.Run(context.Background(), sandbox.RunRequest{Language: "sh", Code: "sleep 1"})
		busy <- err
	}()
	time.Sleep(200 * time.Millisecond)

	v := mustGrade(t, g, q, model.ListAnswer("1+1"))
	if !v.IsCorrect || v.PointsEarned != 5 || v.Reason != ReasonExecutionMatch {
		t.Fatalf("verdict under load = %+v", v)
	}
	if err := <-busy; err != nil {
		t.Fatalf("blocking run error = %v", err)
	}
}
