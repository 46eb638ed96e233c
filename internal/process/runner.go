package process

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"
	"time"
)

// DefaultKillGrace is how long a cancelled process gets between SIGTERM and SIGKILL.
const DefaultKillGrace = 5 * time.Second

// IO wires the standard streams of one invocation. Nil writers discard output.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// OnStart, when set, is called with the child pid right after it starts.
	OnStart func(pid int)
}

// Terminal wires the supervisor's own streams through to the child.
func Terminal() IO { return IO{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr} }

// Runner executes a command and blocks until it exits.
type Runner interface {
	Run(ctx context.Context, c Command, stdio IO) (Status, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, c Command, stdio IO) (Status, error)

func (f RunnerFunc) Run(ctx context.Context, c Command, stdio IO) (Status, error) {
	return f(ctx, c, stdio)
}

// ExecRunner runs commands as OS processes.
// Cancelling ctx sends SIGTERM, then SIGKILL after KillGrace.
type ExecRunner struct {
	Env       []string // nil inherits the supervisor environment; empty means none
	WorkDir   string
	KillGrace time.Duration
}

func (r ExecRunner) Run(ctx context.Context, c Command, stdio IO) (Status, error) {
	st := Status{Name: c.Name()}
	if c.IsZero() {
		return st, &LaunchError{Name: st.Name, Err: ErrEmptyCommand}
	}
	cmd := c.build(ctx)
	cmd.Dir = r.WorkDir
	if r.Env != nil {
		cmd.Env = r.Env
	}
	cmd.Stdin = stdio.Stdin
	cmd.Stdout = stdio.Stdout
	cmd.Stderr = stdio.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = r.KillGrace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultKillGrace
	}

	if err := cmd.Start(); err != nil {
		return st, &LaunchError{Name: st.Name, Err: err}
	}
	st.PID = cmd.Process.Pid
	st.StartedAt = time.Now()
	if stdio.OnStart != nil {
		stdio.OnStart(st.PID)
	}

	err := cmd.Wait()
	st.StoppedAt = time.Now()
	st.Duration = st.StoppedAt.Sub(st.StartedAt)
	if err == nil {
		return st, nil
	}
	st.ExitCode = exitCodeOf(err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(err, ctxErr)
	}
	return st, &ExitError{Name: st.Name, Code: st.ExitCode, Err: err}
}
