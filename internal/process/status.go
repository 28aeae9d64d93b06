package process

import (
	"errors"
	"os/exec"
	"time"
)

// Status is a point-in-time copy of a supervised process' state.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitErr   error     `json:"exit_error,omitempty"`
	Killed    bool      `json:"killed"` // stop escalated to a forced kill
}

// ExitCode returns the exit code once the process has stopped, -1 when it was
// terminated by a signal or is still running.
func (s Status) ExitCode() int {
	if s.Running {
		return -1
	}
	if s.ExitErr == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(s.ExitErr, &ee) {
		return ee.ExitCode()
	}
	return -1
}
