// Package env composes the environment handed to supervised processes.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Var map[string]string

// Env is built up in layers; later layers override earlier ones.
type Env struct {
	vars Var
}

// New returns an empty environment, seeded from the supervisor's own
// environment when inheritOS is true.
func New(inheritOS bool) *Env {
	e := &Env{vars: make(Var)}
	if inheritOS {
		e.SetPairs(os.Environ())
	}
	return e
}

// Set sets K=V. Empty keys are ignored.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	e.vars[k] = v
}

// SetPairs applies "K=V" entries; entries without '=' are skipped.
func (e *Env) SetPairs(pairs []string) {
	for _, kv := range pairs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			e.Set(strings.TrimSpace(k), v)
		}
	}
}

// LoadFile applies a .env file with KEY=VALUE lines (no export, no quotes).
// Lines starting with # are ignored.
func (e *Env) LoadFile(path string) error {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			e.Set(strings.TrimSpace(k), strings.TrimSpace(v))
		}
	}
	return nil
}

// Len is the number of variables set.
func (e *Env) Len() int { return len(e.vars) }

// List returns the environment as sorted "K=V" entries with ${VAR}
// references expanded once against the composed set. Unknown references
// are left as is.
func (e *Env) List() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(e.vars[k], keys, e.vars))
	}
	return out
}

func expand(s string, keys []string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for _, k := range keys {
		res = strings.ReplaceAll(res, "${"+k+"}", m[k])
	}
	return res
}
