package grader

import (
	"context"
	"strings"

	"examgrader/internal/grading/model"
	"examgrader/internal/sandbox"
	"examgrader/internal/sandbox/result"
	"examgrader/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CodeEquivalenceGrader compares a student's program with the reference program by running both.
type CodeEquivalenceGrader struct {
	runner sandbox.Runner
}

func NewCodeEquivalenceGrader(runner sandbox.Runner) *CodeEquivalenceGrader {
	return &CodeEquivalenceGrader{runner: runner}
}

// Equivalent assembles the student and reference programs from q.Text and runs them concurrently.
// They are equivalent when both succeed and their trimmed stdout is byte-identical.
// Runs queue for a sandbox slot. An error means the sandbox could not produce a result
// (unsupported language, spawn failure, cancelled ctx); how the programs ended is never an error.
func (c *CodeEquivalenceGrader) Equivalent(ctx context.Context, q model.Question, values []string) (bool, Reason, error) {
	language := q.Language
	if language == "" {
		language = model.DefaultLanguage
	}
	studentCode := Assemble(q.Text, q.SubQuestions, values)
	referenceCode := Assemble(q.Text, q.SubQuestions, q.CorrectAnswers)

	var student, reference result.RunResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		student, err = c.runner.Run(gctx, sandbox.RunRequest{Language: language, Code: studentCode, Queue: true})
		return err
	})
	g.Go(func() error {
		var err error
		reference, err = c.runner.Run(gctx, sandbox.RunRequest{Language: language, Code: referenceCode, Queue: true})
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Warn(ctx, "code equivalence run failed",
			zap.Int64("question_id", q.ID),
			zap.String("language", language),
			zap.Error(err),
		)
		return false, ReasonExecutionFailed, err
	}

	logger.Debug(ctx, "code equivalence runs finished",
		zap.Int64("question_id", q.ID),
		zap.String("student_status", string(student.Status)),
		zap.Int("student_exit_code", student.ExitCode),
		zap.String("student_stderr", student.Stderr),
		zap.String("reference_status", string(reference.Status)),
		zap.Int("reference_exit_code", reference.ExitCode),
		zap.String("reference_stderr", reference.Stderr),
	)
	if !student.Succeeded || !reference.Succeeded {
		if !reference.Succeeded {
			logger.Warn(ctx, "reference program did not succeed",
				zap.Int64("question_id", q.ID),
				zap.String("status", string(reference.Status)),
			)
		}
		return false, ReasonExecutionFailed, nil
	}
	if strings.TrimSpace(student.Stdout) == strings.TrimSpace(reference.Stdout) {
		return true, ReasonExecutionMatch, nil
	}
	return false, ReasonExecutionMismatch, nil
}

// Assemble replaces every occurrence of each placeholder with the value at the same position,
// one placeholder at a time in order. Values are not escaped, so a value that contains a later
// placeholder is itself rewritten by that placeholder's replacement. Empty placeholders are skipped.
func Assemble(template string, placeholders, values []string) string {
	out := template
	for i, token := range placeholders {
		if token == "" || i >= len(values) {
			continue
		}
		out = strings.ReplaceAll(out, token, values[i])
	}
	return out
}
