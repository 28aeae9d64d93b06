// Package preflight verifies, by filesystem existence only, that the project
// layout is ready for launching the backend.
package preflight

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Layout names the files and directories the launcher depends on, relative to Root.
type Layout struct {
	Root       string
	BackendDir string   // e.g. "Backend"
	EntryPoint string   // file inside BackendDir, e.g. "app.py"
	VenvDirs   []string // any one must exist inside BackendDir
	EnvFile    string   // file inside BackendDir, e.g. ".env"
}

// DefaultLayout is the MedAssistBot project layout.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:       root,
		BackendDir: "Backend",
		EntryPoint: "app.py",
		VenvDirs:   []string{"venv", ".venv"},
		EnvFile:    ".env",
	}
}

// Backend returns the absolute-or-root-relative backend directory.
func (l Layout) Backend() string { return filepath.Join(l.Root, l.BackendDir) }

// Item identifies one preflight requirement.
type Item string

const (
	ItemEntryPoint Item = "entrypoint"
	ItemVenv       Item = "venv"
	ItemEnvFile    Item = "envfile"
)

// Finding is the result of one requirement check.
type Finding struct {
	Item Item
	Path string // path(s) that were checked
	OK   bool
	Hint []string // remediation lines, empty when OK
}

// Report collects the findings of all checks in order.
type Report struct {
	Findings []Finding
}

// OK is true only if every finding passed.
func (r Report) OK() bool {
	for _, f := range r.Findings {
		if !f.OK {
			return false
		}
	}
	return true
}

// Failed returns the findings that did not pass.
func (r Report) Failed() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if !f.OK {
			out = append(out, f)
		}
	}
	return out
}

type Checker struct {
	fs     afero.Fs
	layout Layout
}

// New returns a checker over fs; a nil fs means the OS filesystem.
func New(fs afero.Fs, layout Layout) *Checker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Checker{fs: fs, layout: layout}
}

// Check evaluates every requirement. It does not stop at the first failure.
func (c *Checker) Check() Report {
	l := c.layout
	backend := l.Backend()
	var r Report

	entry := filepath.Join(backend, l.EntryPoint)
	r.Findings = append(r.Findings, c.finding(ItemEntryPoint, entry, c.exists(entry),
		"Please run this from the MedAssistBot root directory (missing "+filepath.Join(l.BackendDir, l.EntryPoint)+")"))

	venvOK := false
	var venvPaths []string
	for _, d := range l.VenvDirs {
		p := filepath.Join(backend, d)
		venvPaths = append(venvPaths, p)
		if c.exists(p) {
			venvOK = true
			break
		}
	}
	r.Findings = append(r.Findings, c.finding(ItemVenv, strings.Join(venvPaths, " | "), venvOK,
		"Virtual environment not found. Please set up the backend first.",
		"Run: cd "+l.BackendDir+" && python -m venv venv && pip install -r requirements.txt"))

	envFile := filepath.Join(backend, l.EnvFile)
	r.Findings = append(r.Findings, c.finding(ItemEnvFile, envFile, c.exists(envFile),
		l.EnvFile+" file not found. Please create "+filepath.Join(l.BackendDir, l.EnvFile)+" with your GEMINI_API_KEY"))

	return r
}

// Run prints the outcome of Check to w and returns whether all checks passed.
func (c *Checker) Run(w io.Writer) bool {
	_, _ = fmt.Fprintln(w, "Checking requirements...")
	r := c.Check()
	for _, f := range r.Failed() {
		for i, line := range f.Hint {
			if i == 0 {
				_, _ = fmt.Fprintf(w, "✗ %s\n", line)
				continue
			}
			_, _ = fmt.Fprintf(w, "  %s\n", line)
		}
	}
	if !r.OK() {
		return false
	}
	_, _ = fmt.Fprintln(w, "✓ Requirements check passed")
	return true
}

func (c *Checker) finding(item Item, path string, ok bool, hint ...string) Finding {
	f := Finding{Item: item, Path: path, OK: ok}
	if !ok {
		f.Hint = hint
	}
	return f
}

func (c *Checker) exists(path string) bool {
	ok, err := afero.Exists(c.fs, path)
	return ok && err == nil
}
