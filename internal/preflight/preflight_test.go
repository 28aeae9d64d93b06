package preflight

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const root = "/srv/medassist"

func layoutFS(t *testing.T, entry, venv, envFile bool) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	backend := filepath.Join(root, "Backend")
	if err := fs.MkdirAll(backend, 0o755); err != nil {
		t.Fatal(err)
	}
	if entry {
		_ = afero.WriteFile(fs, filepath.Join(backend, "app.py"), []byte("app = None\n"), 0o644)
	}
	if venv {
		_ = fs.MkdirAll(filepath.Join(backend, ".venv"), 0o755)
	}
	if envFile {
		_ = afero.WriteFile(fs, filepath.Join(backend, ".env"), []byte("GEMINI_API_KEY=x\n"), 0o600)
	}
	return fs
}

func TestRunReportsEachMissingItem(t *testing.T) {
	hints := map[Item]string{
		ItemEntryPoint: "MedAssistBot root directory",
		ItemVenv:       "Virtual environment not found",
		ItemEnvFile:    "GEMINI_API_KEY",
	}
	cases := []struct {
		name                 string
		entry, venv, envFile bool
		wantOK               bool
		wantMissing          []Item
	}{
		{"all present", true, true, true, true, nil},
		{"no entrypoint", false, true, true, false, []Item{ItemEntryPoint}},
		{"no venv", true, false, true, false, []Item{ItemVenv}},
		{"no env file", true, true, false, false, []Item{ItemEnvFile}},
		{"nothing", false, false, false, false, []Item{ItemEntryPoint, ItemVenv, ItemEnvFile}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(layoutFS(t, tc.entry, tc.venv, tc.envFile), DefaultLayout(root))
			var out bytes.Buffer
			if got := c.Run(&out); got != tc.wantOK {
				t.Fatalf("Run()=%v want %v; output:\n%s", got, tc.wantOK, out.String())
			}
			missing := map[Item]bool{}
			for _, it := range tc.wantMissing {
				missing[it] = true
			}
			for item, hint := range hints {
				printed := strings.Contains(out.String(), hint)
				if printed != missing[item] {
					t.Fatalf("hint for %s printed=%v, want %v; output:\n%s", item, printed, missing[item], out.String())
				}
			}
			if tc.wantOK && !strings.Contains(out.String(), "Requirements check passed") {
				t.Fatalf("missing success line: %s", out.String())
			}
		})
	}
}

func TestEitherVenvNameSatisfies(t *testing.T) {
	fs := layoutFS(t, true, false, true)
	_ = fs.MkdirAll(filepath.Join(root, "Backend", "venv"), 0o755)
	r := New(fs, DefaultLayout(root)).Check()
	if !r.OK() {
		t.Fatalf("venv/ should satisfy the requirement: %+v", r.Failed())
	}
}

func TestCheckFindingsOrderAndPaths(t *testing.T) {
	r := New(layoutFS(t, false, false, false), DefaultLayout(root)).Check()
	if len(r.Findings) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(r.Findings))
	}
	if r.Findings[0].Item != ItemEntryPoint || r.Findings[1].Item != ItemVenv || r.Findings[2].Item != ItemEnvFile {
		t.Fatalf("unexpected order: %+v", r.Findings)
	}
	if r.Findings[2].Path != filepath.Join(root, "Backend", ".env") {
		t.Fatalf("unexpected env path: %s", r.Findings[2].Path)
	}
	if len(r.Failed()) != 3 {
		t.Fatalf("expected all three to fail")
	}
}

func TestNilFSUsesOS(t *testing.T) {
	dir := t.TempDir()
	backend := filepath.Join(dir, "Backend")
	_ = os.MkdirAll(filepath.Join(backend, "venv"), 0o755)
	_ = os.WriteFile(filepath.Join(backend, "app.py"), nil, 0o644)
	_ = os.WriteFile(filepath.Join(backend, ".env"), nil, 0o600)
	if !New(nil, DefaultLayout(dir)).Check().OK() {
		t.Fatalf("expected OS filesystem layout to pass")
	}
}
