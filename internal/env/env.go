package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes the environment handed to the backend child.
type Env struct {
	Var  Var // launcher-level overrides (K->V)
	base Var // cached base from the OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.base = Parse(os.Environ())
}

// SetBase replaces the base environment; used when the OS environment must not leak in.
func (e *Env) SetBase(kvs []string) {
	e.base = Parse(kvs)
}

// Set sets a launcher-level variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Merge composes the final environment in this order:
// base (OS env unless SetBase was called), then e.Var, then extra "K=V" entries.
// ${VAR} references in e.Var and extra are expanded against the composed,
// unexpanded values in a single pass; base values pass through untouched.
// The result is sorted by key.
func (e *Env) Merge(extra []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.Var)+len(extra))
	templated := make(map[string]bool, len(e.Var)+len(extra))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
		templated[k] = true
	}
	for k, v := range Parse(extra) {
		m[k] = v
		templated[k] = true
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v := m[k]
		if templated[k] {
			v = expand(v, m)
		}
		out = append(out, k+"="+v)
	}
	return out
}

// Parse converts "K=V" entries into a map, skipping malformed entries and empty keys.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// expand resolves ${VAR} and $VAR against m. Unknown references are left as
// ${VAR} and "$$" is kept.
func expand(s string, m Var) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(name string) string {
		if v, ok := m[name]; ok {
			return v
		}
		if name == "$" {
			return "$$"
		}
		return "${" + name + "}"
	})
}
