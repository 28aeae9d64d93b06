//go:build windows

package process

import "os"

// terminate has no graceful equivalent for a console-less child on Windows.
func terminate(pid int) error { return kill(pid) }

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}
