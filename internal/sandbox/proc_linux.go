//go:build linux

package sandbox

import (
	"errors"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, unix.SIGKILL)
}

// awaitLeaderExit blocks until pid has exited without reaping it.
func awaitLeaderExit(pid int) bool {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == nil {
			return true
		}
		if !errors.Is(err, unix.EINTR) {
			return false
		}
	}
}

// applyLimits sets rlimits on the started child. The child may already be running, so limits
// bound the program from this point on.
func applyLimits(pid int, memoryLimitMB int64, cpuTime time.Duration, maxFileBytes int64) error {
	var errs []error
	if memoryLimitMB > 0 {
		bytes := uint64(memoryLimitMB) << 20
		errs = append(errs, unix.Prlimit(pid, unix.RLIMIT_AS, &unix.Rlimit{Cur: bytes, Max: bytes}, nil))
	}
	if cpuTime > 0 {
		secs := uint64((cpuTime + time.Second - 1) / time.Second)
		errs = append(errs, unix.Prlimit(pid, unix.RLIMIT_CPU, &unix.Rlimit{Cur: secs, Max: secs + 1}, nil))
	}
	if maxFileBytes > 0 {
		errs = append(errs, unix.Prlimit(pid, unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: uint64(maxFileBytes), Max: uint64(maxFileBytes)}, nil))
	}
	return errors.Join(errs...)
}
