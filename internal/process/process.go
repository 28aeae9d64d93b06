package process

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
	"time"
)

// killGrace bounds how long Stop waits for the reaper after a forced kill.
const killGrace = 2 * time.Second

// Process is the handle of one supervised child. It owns the *exec.Cmd, a
// single waiter goroutine that reaps the child, and bounded copies of its output.
type Process struct {
	spec      Spec
	mu        sync.Mutex
	cmd       *exec.Cmd
	status    Status
	stopping  bool
	done      chan struct{} // closed once cmd.Wait has returned
	stdout    *tailBuffer
	stderr    *tailBuffer
	outCloser io.Closer
	errCloser io.Closer
}

func New(spec Spec) *Process { return &Process{spec: spec} }

// Spec returns a copy of the spec the process was created with.
func (p *Process) Spec() Spec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spec
}

// Start spawns the child without waiting for it. Output is captured into
// in-memory tails and, when configured, rotated log files.
func (p *Process) Start() error {
	p.mu.Lock()
	if p.cmd != nil {
		p.mu.Unlock()
		return errors.New("process already started")
	}
	spec := p.spec
	p.mu.Unlock()

	cmd := spec.BuildCommand()
	stdout, stderr := newTailBuffer(DefaultTailBytes), newTailBuffer(DefaultTailBytes)
	outW, errW := spec.Log.Writers(spec.Name)
	cmd.Stdout = tee(stdout, outW)
	cmd.Stderr = tee(stderr, errW)

	if err := cmd.Start(); err != nil {
		closeIf(outW)
		closeIf(errW)
		return err
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.cmd = cmd
	p.done = done
	p.stdout, p.stderr = stdout, stderr
	if outW != nil {
		p.outCloser = outW
	}
	if errW != nil {
		p.errCloser = errW
	}
	p.status = Status{
		Name:      spec.Name,
		Running:   true,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	p.mu.Unlock()

	go p.reap(cmd, done)
	return nil
}

// reap is the only caller of cmd.Wait. Wait also drains the output pipes, so
// the tails are complete once done is closed.
func (p *Process) reap(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	p.mu.Lock()
	p.status.Running = false
	p.status.StoppedAt = time.Now()
	p.status.ExitErr = err
	outC, errC := p.outCloser, p.errCloser
	p.outCloser, p.errCloser = nil, nil
	p.mu.Unlock()
	closeIf(outC)
	closeIf(errC)
	close(done)
}

// Done returns a channel closed when the child has exited and been reaped.
// It is nil before Start.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// PID returns the OS process id, 0 before Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.PID
}

// Alive polls liveness without side effects: it never waits on or signals the child.
func (p *Process) Alive() bool {
	p.mu.Lock()
	pid, done := p.status.PID, p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
	}
	return pidAlive(pid)
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Output returns the captured tails of stdout and stderr.
func (p *Process) Output() (stdout, stderr string) {
	p.mu.Lock()
	so, se := p.stdout, p.stderr
	p.mu.Unlock()
	if so != nil {
		stdout = so.String()
	}
	if se != nil {
		stderr = se.String()
	}
	return stdout, stderr
}

// StopRequested reports whether Stop has been called.
func (p *Process) StopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

// EnforceStartDuration waits d and fails if the child exits before the window ends.
func (p *Process) EnforceStartDuration(ctx context.Context, d time.Duration) error {
	done := p.Done()
	if done == nil {
		return ErrNotStarted
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return errBeforeStart(d)
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	// the timer and an exit may race; prefer reporting the exit
	if !p.Alive() {
		return errBeforeStart(d)
	}
	return nil
}

// Wait blocks until the child has exited or ctx is done and returns the exit error.
func (p *Process) Wait(ctx context.Context) error {
	done := p.Done()
	if done == nil {
		return ErrNotStarted
	}
	select {
	case <-done:
		return p.Snapshot().ExitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop sends a graceful termination to the child's process group and waits
// up to wait for it to exit. If it is still running afterwards the group is
// killed. Stop always returns with the child reaped unless the kill itself
// could not be delivered.
func (p *Process) Stop(wait time.Duration) error {
	p.mu.Lock()
	pid, done := p.status.PID, p.done
	p.stopping = true
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}

	if err := terminate(pid); err != nil {
		return err
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
	}
	return p.Kill()
}

// Kill forcibly ends the child's process group and waits briefly for the reaper.
func (p *Process) Kill() error {
	p.mu.Lock()
	pid, done := p.status.PID, p.done
	p.stopping = true
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}
	if err := kill(pid); err != nil {
		return err
	}
	p.mu.Lock()
	p.status.Killed = true
	p.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-time.After(killGrace):
		return errors.New("process did not exit after kill")
	}
}

func tee(tail *tailBuffer, w io.Writer) io.Writer {
	if w == nil {
		return tail
	}
	return io.MultiWriter(tail, w)
}

func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
