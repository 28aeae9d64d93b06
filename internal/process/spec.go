package process

import (
	"os/exec"
	"time"

	"github.com/loykin/medassist/internal/logger"
)

// Spec describes a child process to be supervised.
type Spec struct {
	Name    string        `json:"name"`
	Path    string        `json:"path"`     // executable; relative paths resolve against WorkDir
	Args    []string      `json:"args"`     // arguments after Path
	WorkDir string        `json:"work_dir"` // working directory of the child only
	Env     []string      `json:"env"`      // full environment; nil inherits the launcher's
	Log     logger.Config `json:"-"`        // optional rotation of captured output
	// WaitDelay bounds how long reaping waits for the output pipes after the
	// child exits; grandchildren can hold them open. Zero means DefaultWaitDelay.
	WaitDelay time.Duration `json:"wait_delay"`
}

// DefaultWaitDelay is the pipe drain bound used when Spec.WaitDelay is zero.
const DefaultWaitDelay = 5 * time.Second

// BuildCommand constructs the *exec.Cmd for s. The launcher's own working
// directory is never changed; the child's is set through cmd.Dir.
func (s *Spec) BuildCommand() *exec.Cmd {
	// #nosec G204
	cmd := exec.Command(s.Path, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	cmd.WaitDelay = s.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	configureSysProcAttr(cmd)
	return cmd
}
