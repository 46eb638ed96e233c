package process

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func TestParseCommand_SplitsPlainArgs(t *testing.T) {
	c, err := ParseCommand("  ls -l  /tmp ")
	require.NoError(t, err)
	assert.Equal(t, []string{"ls", "-l", "/tmp"}, c.Args())
	assert.Equal(t, "ls", c.Name())
	assert.Equal(t, "ls -l  /tmp", c.String())
}

func TestParseCommand_Empty(t *testing.T) {
	_, err := ParseCommand("   ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
	_, err = NewCommand()
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

// Ensure that when the command string already includes an explicit
// shell invocation (e.g., "sh -c 'echo hi'"), we do not double-wrap
// it with another "/bin/sh -c" layer.
func TestParseCommand_ExplicitShellNoDoubleWrap(t *testing.T) {
	c, err := ParseCommand("sh -c 'echo hi'")
	require.NoError(t, err)
	args := c.Args()
	require.Len(t, args, 3)
	assert.Equal(t, "-c", args[1])
	assert.Equal(t, "echo hi", args[2])
	assert.False(t, strings.HasPrefix(args[2], "sh -c "), "command was double-wrapped: %q", args[2])
	assert.Equal(t, "sh", c.Name())
}

func TestParseCommand_MetacharTriggersShell(t *testing.T) {
	c, err := ParseCommand("echo hi | wc -c")
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/sh", "-c", "echo hi | wc -c"}, c.Args())
	assert.Equal(t, "echo", c.Name())
}

func TestCommand_NameDefaultsAndOverrides(t *testing.T) {
	c, err := NewCommand("/usr/bin/python3", "job.py")
	require.NoError(t, err)
	assert.Equal(t, "python3", c.Name())
	named := c.WithName(" worker ")
	assert.Equal(t, "worker", named.Name())
	assert.Equal(t, "python3", c.Name(), "WithName must not mutate the receiver")
}

func TestCommand_ArgsAreCopies(t *testing.T) {
	src := []string{"echo", "a"}
	c, err := NewCommand(src...)
	require.NoError(t, err)
	src[1] = "changed"
	got := c.Args()
	got[0] = "rm"
	assert.Equal(t, []string{"echo", "a"}, c.Args())
}
