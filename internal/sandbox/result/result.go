// Package result defines sandbox execution results.
package result

// Status is the terminal state of one sandbox run.
type Status string

const (
	StatusOK                  Status = "OK"
	StatusRuntimeError        Status = "RuntimeError"
	StatusTimeLimitExceeded   Status = "TimeLimitExceeded"
	StatusOutputLimitExceeded Status = "OutputLimitExceeded"
	StatusSystemError         Status = "SystemError"
)

// RunResult captures raw sandbox execution data.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// TimeMs is wall time.
	TimeMs int64
	// Succeeded is true only for a normal exit with code 0.
	Succeeded bool
	Status    Status
}

// Failed builds a result for a run that never produced a process outcome.
func Failed(status Status, stderr string) RunResult {
	return RunResult{ExitCode: -1, Status: status, Stderr: stderr}
}
