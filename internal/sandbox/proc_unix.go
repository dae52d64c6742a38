//go:build unix && !linux

package sandbox

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, unix.SIGKILL)
}

// awaitLeaderExit is linux-only; false makes the caller reap with Wait first.
func awaitLeaderExit(int) bool {
	return false
}

func applyLimits(int, int64, time.Duration, int64) error {
	return nil
}
