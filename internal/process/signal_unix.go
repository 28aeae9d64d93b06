//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// terminate asks the process group led by pid to exit.
func terminate(pid int) error { return signalGroup(pid, syscall.SIGTERM) }

// kill forcibly ends the process group led by pid.
func kill(pid int) error { return signalGroup(pid, syscall.SIGKILL) }

func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// group already gone; the leader may still need reaping
		return nil
	}
	return err
}
