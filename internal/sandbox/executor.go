// Package sandbox runs untrusted snippets as short-lived child processes with wall-time and output bounds.
// It is resource-bounded, not a security boundary.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"examgrader/internal/sandbox/profile"
	"examgrader/internal/sandbox/result"
	appErr "examgrader/pkg/errors"
	"examgrader/pkg/monitoring"
	"examgrader/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultWallTimeout    = 5 * time.Second
	defaultMaxOutputBytes = 1 << 20
	defaultMaxConcurrent  = 4
	defaultAcquireTimeout = 2 * time.Second
	defaultPath           = "/usr/local/bin:/usr/bin:/bin"
	waitDelay             = time.Second
)

// Config controls executor limits.
type Config struct {
	// WorkRoot is the parent of per-run temp dirs; empty means os.TempDir().
	WorkRoot       string        `yaml:"workRoot"`
	WallTimeout    time.Duration `yaml:"wallTimeout"`
	MaxOutputBytes int64         `yaml:"maxOutputBytes"`
	// MemoryLimitMB and CPUTimeLimit are applied as rlimits where supported; zero disables them.
	MemoryLimitMB  int64                             `yaml:"memoryLimitMB"`
	CPUTimeLimit   time.Duration                     `yaml:"cpuTimeLimit"`
	MaxConcurrent  int                               `yaml:"maxConcurrent"`
	AcquireTimeout time.Duration                     `yaml:"acquireTimeout"`
	Path           string                            `yaml:"path"`
	Languages      map[string]profile.LanguageConfig `yaml:"languages"`
}

func (c *Config) applyDefaults() {
	if c.WallTimeout <= 0 {
		c.WallTimeout = defaultWallTimeout
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = defaultMaxOutputBytes
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	if c.Path == "" {
		c.Path = defaultPath
	}
	if len(c.Languages) == 0 {
		c.Languages = profile.DefaultLanguages()
	}
}

// RunRequest is one program to execute.
type RunRequest struct {
	Language string
	Code     string
	// Queue waits for a free slot until ctx ends instead of failing with SandboxBusy after AcquireTimeout.
	Queue bool
}

// Runner executes one program and reports how it ended.
// A non-nil error means the run could not be attempted or completed by the executor itself.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (result.RunResult, error)
}

// Executor is the process-backed Runner.
type Executor struct {
	cfg      Config
	registry *profile.Registry
	sem      chan struct{}
}

// NewExecutor validates the language table and creates the worker pool.
func NewExecutor(cfg Config) (*Executor, error) {
	cfg.applyDefaults()
	registry, err := profile.NewRegistry(cfg.Languages)
	if err != nil {
		return nil, fmt.Errorf("build language registry: %w", err)
	}
	if cfg.WorkRoot != "" {
		if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create work root: %w", err)
		}
	}
	return &Executor{
		cfg:      cfg,
		registry: registry,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Supports reports whether language has a profile.
func (e *Executor) Supports(language string) bool {
	_, ok := e.registry.Lookup(language)
	return ok
}

// Languages lists the configured language tags.
func (e *Executor) Languages() []string {
	return e.registry.Languages()
}

// Run writes req.Code into a fresh temp dir and executes it under the language profile.
func (e *Executor) Run(ctx context.Context, req RunRequest) (result.RunResult, error) {
	spec, ok := e.registry.Lookup(req.Language)
	if !ok {
		return result.Failed(result.StatusSystemError, ""), appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", req.Language)
	}

	if err := e.acquireSlot(ctx, req.Queue); err != nil {
		return result.Failed(result.StatusSystemError, ""), err
	}
	defer e.releaseSlot()

	start := time.Now()
	res, err := e.runInTempDir(ctx, spec, req.Code)
	monitoring.SandboxRuns.WithLabelValues(spec.ID, string(res.Status)).Inc()
	monitoring.SandboxRunDuration.WithLabelValues(spec.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Warn(ctx, "sandbox run failed", zap.String("language", spec.ID), zap.Error(err))
		return res, err
	}
	logger.Debug(ctx, "sandbox run finished",
		zap.String("language", spec.ID),
		zap.String("status", string(res.Status)),
		zap.Int("exit_code", res.ExitCode),
		zap.Int64("time_ms", res.TimeMs),
	)
	return res, nil
}

func (e *Executor) acquireSlot(ctx context.Context, queue bool) error {
	var busy <-chan time.Time
	if !queue {
		timer := time.NewTimer(e.cfg.AcquireTimeout)
		defer timer.Stop()
		busy = timer.C
	}
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return appErr.Wrap(ctx.Err(), appErr.Timeout)
	case <-busy:
		return appErr.New(appErr.SandboxBusy).WithMessage("sandbox pool is full")
	}
}

func (e *Executor) releaseSlot() {
	select {
	case <-e.sem:
	default:
	}
}

func (e *Executor) runInTempDir(ctx context.Context, spec profile.LanguageSpec, code string) (result.RunResult, error) {
	dir, err := os.MkdirTemp(e.cfg.WorkRoot, "run-*")
	if err != nil {
		return result.Failed(result.StatusSystemError, ""), appErr.Wrapf(err, appErr.SandboxSystemError, "create work dir")
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn(ctx, "remove sandbox work dir failed", zap.String("dir", dir), zap.Error(err))
		}
	}()

	if err := os.WriteFile(filepath.Join(dir, spec.SourceFile), []byte(code), 0o600); err != nil {
		return result.Failed(result.StatusSystemError, ""), appErr.Wrapf(err, appErr.SandboxSystemError, "write source file")
	}
	return e.runProcess(ctx, dir, spec.Cmd)
}

func (e *Executor) runProcess(ctx context.Context, dir string, argv []string) (result.RunResult, error) {
	overflow := make(chan struct{})
	var overflowed atomic.Bool
	onOverflow := func() {
		if overflowed.CompareAndSwap(false, true) {
			close(overflow)
		}
	}
	stdout := newCappedBuffer(e.cfg.MaxOutputBytes, onOverflow)
	stderr := newCappedBuffer(e.cfg.MaxOutputBytes, onOverflow)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = []string{"PATH=" + e.cfg.Path, "HOME=" + dir, "TMPDIR=" + dir, "LANG=C.UTF-8"}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.Failed(result.StatusSystemError, err.Error()), appErr.Wrapf(err, appErr.SandboxSystemError, "start %s", argv[0])
	}
	if err := applyLimits(cmd.Process.Pid, e.cfg.MemoryLimitMB, e.cfg.CPUTimeLimit, e.cfg.MaxOutputBytes); err != nil {
		logger.Debug(ctx, "apply sandbox rlimits failed", zap.Error(err))
	}

	var timedOut, cancelled atomic.Bool
	done := make(chan struct{})
	watchdogExited := make(chan struct{})
	go func() {
		defer close(watchdogExited)
		wallTimer := time.NewTimer(e.cfg.WallTimeout)
		defer wallTimer.Stop()
		select {
		case <-ctx.Done():
			cancelled.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-wallTimer.C:
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-overflow:
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	// Until Wait reaps the leader its pid, and with it the group id, cannot be reused,
	// so every group kill must happen before Wait.
	var waitErr error
	if awaitLeaderExit(cmd.Process.Pid) {
		close(done)
		<-watchdogExited
		// Descendants that outlived the program.
		killProcessGroup(cmd.Process.Pid)
		waitErr = cmd.Wait()
	} else {
		waitErr = cmd.Wait()
		close(done)
		<-watchdogExited
	}

	res := result.RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCodeFromErr(waitErr, cmd.ProcessState),
		TimeMs:   time.Since(start).Milliseconds(),
	}

	switch {
	case overflowed.Load():
		res.Status = result.StatusOutputLimitExceeded
	case timedOut.Load():
		res.Status = result.StatusTimeLimitExceeded
	case cancelled.Load():
		res.Status = result.StatusSystemError
		return res, appErr.Wrap(ctx.Err(), appErr.Timeout)
	case waitErr == nil && res.ExitCode == 0:
		res.Status = result.StatusOK
		res.Succeeded = true
	case errors.Is(waitErr, exec.ErrWaitDelay) && res.ExitCode == 0:
		// The program exited cleanly but a descendant kept its output open.
		res.Status = result.StatusOK
		res.Succeeded = true
	default:
		res.Status = result.StatusRuntimeError
	}
	if !res.Succeeded && res.ExitCode == 0 {
		res.ExitCode = -1
	}
	return res, nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
