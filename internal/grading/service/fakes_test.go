package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"examgrader/internal/common/db"
	"examgrader/internal/common/mq"
	"examgrader/internal/grading/model"
	"examgrader/internal/grading/repository"
	"examgrader/internal/sandbox"
	"examgrader/internal/sandbox/result"
)

type fakeQuestions struct {
	banks map[string]*model.Bank
	err   error
}

func (f *fakeQuestions) GetBank(ctx context.Context, examSetID string) (*model.Bank, error) {
	if f.err != nil {
		return nil, f.err
	}
	bank, ok := f.banks[examSetID]
	if !ok {
		return nil, repository.ErrExamSetNotFound
	}
	return bank, nil
}

func (f *fakeQuestions) InvalidateBank(ctx context.Context, examSetID string) error { return nil }

// fakeSubmissions stores whole submissions only when createErr is nil.
type fakeSubmissions struct {
	mu        sync.Mutex
	stored    map[string]*model.Submission
	createErr error
	getErr    error
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{stored: make(map[string]*model.Submission)}
}

func (f *fakeSubmissions) CreateWithAnswers(ctx context.Context, submission *model.Submission) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stored[submission.ID]; ok {
		return errors.New("duplicate submission id")
	}
	f.stored[submission.ID] = submission
	return nil
}

func (f *fakeSubmissions) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error {
	return errors.New("not used")
}

func (f *fakeSubmissions) CreateAnswers(ctx context.Context, tx db.Transaction, submissionID string, answers []model.GradedAnswer) error {
	return errors.New("not used")
}

func (f *fakeSubmissions) GetByID(ctx context.Context, submissionID string) (*model.Submission, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.stored[submissionID]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	return sub, nil
}

func (f *fakeSubmissions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

type fakeRunner struct {
	outputs   map[string]result.RunResult
	err       error
	languages map[string]bool
}

func (f *fakeRunner) Run(ctx context.Context, req sandbox.RunRequest) (result.RunResult, error) {
	if f.err != nil {
		return result.Failed(result.StatusSystemError, ""), f.err
	}
	if res, ok := f.outputs[req.Code]; ok {
		return res, nil
	}
	return result.RunResult{Status: result.StatusRuntimeError, ExitCode: 1, Stderr: "NameError"}, nil
}

func (f *fakeRunner) Supports(language string) bool { return f.languages[language] }

type fakePublisher struct {
	mu     sync.Mutex
	events []model.SubmissionGradedEvent
	err    error
}

func (f *fakePublisher) PublishGraded(ctx context.Context, event model.SubmissionGradedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type fakeArchiver struct {
	mu      sync.Mutex
	records []ArchiveRecord
	err     error
}

func (f *fakeArchiver) Archive(ctx context.Context, record ArchiveRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return f.err
}

type fakeProducer struct {
	topic string
	msgs  []*mq.Message
	err   error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, message)
	return f.err
}

func (f *fakeProducer) Close() error { return nil }

type putCall struct {
	bucket      string
	key         string
	body        []byte
	size        int64
	contentType string
}

type fakeObjectStorage struct {
	puts []putCall
	err  error
}

func (f *fakeObjectStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if f.err != nil {
		return f.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.puts = append(f.puts, putCall{bucket: bucket, key: objectKey, body: body, size: sizeBytes, contentType: contentType})
	return nil
}

func (f *fakeObjectStorage) EnsureBucket(ctx context.Context, bucket string) error { return nil }
