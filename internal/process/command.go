package process

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrEmptyCommand is returned when a command string has no arguments.
var ErrEmptyCommand = errors.New("empty command")

// Command is an immutable argument vector plus the name its logs are kept under.
type Command struct {
	args []string
	name string
	line string // original text, kept for display
}

// NewCommand builds a Command from an explicit argv.
func NewCommand(args ...string) (Command, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return Command{}, ErrEmptyCommand
	}
	argv := append([]string(nil), args...)
	return Command{args: argv, line: strings.Join(argv, " ")}, nil
}

// ParseCommand turns a shell-style command line into a Command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func ParseCommand(line string) (Command, error) {
	cmdStr := strings.TrimSpace(line)
	if cmdStr == "" {
		return Command{}, ErrEmptyCommand
	}
	var argv []string
	switch {
	case hasExplicitShell(cmdStr):
		_, afterC, _ := parseExplicitShell(cmdStr)
		argv = []string{"/bin/sh", "-c", afterC}
	case strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~"):
		argv = []string{"/bin/sh", "-c", cmdStr}
	default:
		argv = strings.Fields(cmdStr)
	}
	c, err := NewCommand(argv...)
	if err != nil {
		return Command{}, err
	}
	c.line = cmdStr
	// a shell-wrapped line is still named after what the user typed
	c.name = filepath.Base(strings.Fields(cmdStr)[0])
	return c, nil
}

// WithName returns a copy of c whose logs are kept under name.
func (c Command) WithName(name string) Command {
	c.name = strings.TrimSpace(name)
	return c
}

// Name is the custom name when set, otherwise the base of the first argument.
func (c Command) Name() string {
	if c.name != "" {
		return c.name
	}
	if len(c.args) == 0 {
		return ""
	}
	return filepath.Base(c.args[0])
}

// Args returns a copy of the argument vector.
func (c Command) Args() []string { return append([]string(nil), c.args...) }

// IsZero reports whether c was never constructed.
func (c Command) IsZero() bool { return len(c.args) == 0 }

func (c Command) String() string { return c.line }

// build constructs the *exec.Cmd for one invocation.
func (c Command) build(ctx context.Context) *exec.Cmd {
	// ok: intentional execution of operator supplied commands
	// #nosec G204
	return exec.CommandContext(ctx, c.args[0], c.args[1:]...)
}

func hasExplicitShell(cmdStr string) bool {
	_, _, ok := parseExplicitShell(cmdStr)
	return ok
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// Strip one pair of outer quotes so the shell parses the script itself.
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
