package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/loykin/medassist/internal/logger"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func shSpec(name, script string) Spec {
	return Spec{Name: name, Path: "sh", Args: []string{"-c", script}}
}

func waitDone(t *testing.T, p *Process, d time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(d):
		t.Fatalf("process did not exit within %s", d)
	}
}

func TestStartSetsStatusAndAlive(t *testing.T) {
	requireUnix(t)
	p := New(shSpec("sleeper", "sleep 5"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = p.Kill() }()

	st := p.Snapshot()
	if !st.Running || st.PID <= 0 || st.Name != "sleeper" {
		t.Fatalf("status not set after start: %+v", st)
	}
	// two liveness polls in immediate succession must agree
	if !p.Alive() || !p.Alive() {
		t.Fatalf("expected live process to be reported alive twice")
	}
	if p.PID() != st.PID {
		t.Fatalf("PID mismatch: %d vs %d", p.PID(), st.PID)
	}
}

func TestStartTwiceFails(t *testing.T) {
	requireUnix(t)
	p := New(shSpec("twice", "sleep 5"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = p.Kill() }()
	if err := p.Start(); err == nil {
		t.Fatalf("expected second Start to fail")
	}
}

func TestStartMissingExecutable(t *testing.T) {
	p := New(Spec{Name: "missing", Path: filepath.Join(t.TempDir(), "no-such-python")})
	if err := p.Start(); err == nil {
		t.Fatalf("expected spawn error")
	}
	if p.Alive() {
		t.Fatalf("never-started process reported alive")
	}
	if p.Done() != nil {
		t.Fatalf("Done must be nil before a successful Start")
	}
}

func TestOutputCapturedAfterExit(t *testing.T) {
	requireUnix(t)
	p := New(shSpec("noisy", "echo out; echo err 1>&2; exit 3"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, p, 5*time.Second)

	stdout, stderr := p.Output()
	if strings.TrimSpace(stdout) != "out" || strings.TrimSpace(stderr) != "err" {
		t.Fatalf("unexpected output: stdout=%q stderr=%q", stdout, stderr)
	}
	st := p.Snapshot()
	if st.Running || st.ExitCode() != 3 {
		t.Fatalf("unexpected exit status: %+v code=%d", st, st.ExitCode())
	}
	if p.Alive() {
		t.Fatalf("exited process reported alive")
	}
}

func TestWorkDirAndEnvApplied(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	spec := shSpec("env", "pwd; echo $MEDASSIST_TEST")
	spec.WorkDir = dir
	spec.Env = []string{"MEDASSIST_TEST=hello", "PATH=" + os.Getenv("PATH")}
	p := New(spec)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, p, 5*time.Second)
	stdout, _ := p.Output()
	wantDir, _ := filepath.EvalSymlinks(dir)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected output: %q", stdout)
	}
	gotDir, _ := filepath.EvalSymlinks(lines[0])
	if gotDir != wantDir || lines[1] != "hello" {
		t.Fatalf("workdir/env not applied: %q", stdout)
	}
	if cwd, _ := os.Getwd(); cwd == dir {
		t.Fatalf("launcher working directory must not change")
	}
}

func TestOutputRotatedToLogDir(t *testing.T) {
	requireUnix(t)
	logs := t.TempDir()
	spec := shSpec("backend", "echo to-file; echo to-err 1>&2")
	spec.Log = logger.Config{Dir: logs}
	p := New(spec)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, p, 5*time.Second)

	ob, err := os.ReadFile(filepath.Join(logs, "backend.stdout.log"))
	if err != nil || !strings.Contains(string(ob), "to-file") {
		t.Fatalf("stdout log: %v %q", err, string(ob))
	}
	eb, err := os.ReadFile(filepath.Join(logs, "backend.stderr.log"))
	if err != nil || !strings.Contains(string(eb), "to-err") {
		t.Fatalf("stderr log: %v %q", err, string(eb))
	}
}

func TestEnforceStartDurationEarlyExit(t *testing.T) {
	requireUnix(t)
	p := New(shSpec("early", "exit 1"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := p.EnforceStartDuration(context.Background(), 2*time.Second)
	if !IsBeforeStartErr(err) {
		t.Fatalf("expected before-start error, got %v", err)
	}
}

func TestEnforceStartDurationSurvives(t *testing.T) {
	requireUnix(t)
	p := New(shSpec("steady", "sleep 5"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = p.Kill() }()
	if err := p.EnforceStartDuration(context.Background(), 100*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Alive() {
		t.Fatalf("process should still be alive")
	}
}

func TestEnforceStartDurationNotStarted(t *testing.T) {
	p := New(shSpec("idle", "true"))
	if err := p.EnforceStartDuration(context.Background(), time.Second); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestStopGraceful(t *testing.T) {
	requireUnix(t)
	p := New(shSpec("graceful", "sleep 30"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	start := time.Now()
	if err := p.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatalf("graceful stop took too long")
	}
	st := p.Snapshot()
	if st.Running || st.Killed || !p.StopRequested() {
		t.Fatalf("unexpected status after stop: %+v", st)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	requireUnix(t)
	// the shell ignores SIGTERM; only SIGKILL ends it
	p := New(shSpec("stubborn", "trap '' TERM; while true; do sleep 0.1; done"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := p.Stop(300 * time.Millisecond); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st := p.Snapshot()
	if st.Running || !st.Killed {
		t.Fatalf("expected forced kill, got %+v", st)
	}
}

func TestStopAfterExitIsNoop(t *testing.T) {
	requireUnix(t)
	p := New(shSpec("quick", "true"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, p, 5*time.Second)
	if err := p.Stop(time.Second); err != nil {
		t.Fatalf("Stop after exit: %v", err)
	}
	if err := New(shSpec("never", "true")).Stop(time.Second); err != nil {
		t.Fatalf("Stop before start: %v", err)
	}
}

func TestWaitReturnsExitError(t *testing.T) {
	requireUnix(t)
	p := New(shSpec("fails", "exit 2"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err == nil {
		t.Fatalf("expected exit error")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	requireUnix(t)
	p := New(shSpec("long", "sleep 30"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = p.Kill() }()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
