//go:build !unix

package sandbox

import (
	"errors"
	"os"
	"syscall"
	"time"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

func killProcessGroup(pid int) {
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}

func awaitLeaderExit(int) bool {
	return false
}

func applyLimits(int, int64, time.Duration, int64) error {
	return errors.New("sandbox limits are only supported on unix")
}
