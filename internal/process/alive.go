package process

import (
	"slices"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// pidAlive reports whether pid refers to a running, non-zombie process.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := gopsproc.NewProcess(int32(pid)) // #nosec G115
	if err != nil {
		return false
	}
	running, err := p.IsRunning()
	if err != nil || !running {
		return false
	}
	// A child that exited but has not been reaped yet still shows up as a zombie.
	if st, err := p.Status(); err == nil && slices.Contains(st, gopsproc.Zombie) {
		return false
	}
	return true
}
