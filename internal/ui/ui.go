// Package ui resolves the static UI pages and hands one of them to the OS browser.
package ui

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkg/browser"
)

// Page is one static UI file.
type Page struct {
	Name string
	File string // file name inside the UI directory
}

// Pages are the MedAssistBot UI pages, in display order.
var Pages = []Page{
	{Name: "Landing Page", File: "index.html"},
	{Name: "Chat Interface", File: "chat.html"},
	{Name: "Dashboard", File: "dashboard.html"},
}

// DefaultPage is the page opened automatically.
const DefaultPage = "chat.html"

// OpenFunc opens a URL in a browser.
type OpenFunc func(url string) error

type Opener struct {
	dir    string
	open   OpenFunc
	logger *slog.Logger
}

// New returns an Opener for the UI directory dir. A nil open uses the OS
// default browser; a nil logger uses slog.Default.
func New(dir string, open OpenFunc, logger *slog.Logger) *Opener {
	if open == nil {
		open = openInBrowser
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{dir: dir, open: open, logger: logger}
}

// URL returns the file:// URL of a page inside the UI directory.
func (o *Opener) URL(file string) (string, error) {
	abs, err := filepath.Abs(filepath.Join(o.dir, file))
	if err != nil {
		return "", err
	}
	return FileURL(abs), nil
}

// List prints the file:// URL of every page.
func (o *Opener) List(w io.Writer) {
	_, _ = fmt.Fprintln(w, "\nAvailable UI pages:")
	for _, p := range Pages {
		u, err := o.URL(p.File)
		if err != nil {
			_, _ = fmt.Fprintf(w, "   - %s: unavailable (%v)\n", p.Name, err)
			continue
		}
		_, _ = fmt.Fprintf(w, "   - %s: %s\n", p.Name, u)
	}
}

// Open lists the pages and opens DefaultPage. Failures are reported on w with
// a manual-open hint and never returned.
func (o *Opener) Open(w io.Writer) {
	o.List(w)

	target, err := o.URL(DefaultPage)
	if err != nil {
		o.logger.Warn("resolve UI page", "page", DefaultPage, "error", err)
		_, _ = fmt.Fprintf(w, "! Could not resolve %s: %v\n", DefaultPage, err)
		return
	}
	if err := o.safeOpen(target); err != nil {
		o.logger.Warn("browser open failed", "url", target, "error", err)
		_, _ = fmt.Fprintf(w, "! Could not auto-open browser: %v\n", err)
		_, _ = fmt.Fprintf(w, "  Please manually open: %s\n", target)
		return
	}
	_, _ = fmt.Fprintf(w, "✓ Opened chat interface: %s\n", target)
}

// safeOpen converts a panicking OpenFunc into an error.
func (o *Opener) safeOpen(u string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("browser open panicked: %v", r)
		}
	}()
	return o.open(u)
}

// FileURL converts an absolute filesystem path to a file:// URL.
func FileURL(abs string) string {
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths: C:/x -> /C:/x
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

func openInBrowser(u string) error {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return browser.OpenURL(u)
}
