package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// LaunchError means the process could not be started at all
// (missing executable, permission denied, ...).
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("launch %s: %v", e.Name, e.Err) }

func (e *LaunchError) Unwrap() error { return e.Err }

// ExitError means the process ran and finished with a failure status.
type ExitError struct {
	Name string
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d: %v", e.Name, e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// IsLaunchError reports whether err carries a *LaunchError.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}

// ExitCode maps a Run error to a process exit status: 0 for nil, the child's
// status for *ExitError, and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) && ee.Code > 0 {
		return ee.Code
	}
	return 1
}

// exitCodeOf extracts the status of a finished child. Signals follow the
// shell convention of 128+signal.
func exitCodeOf(err error) int {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return 1
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	if code := ee.ExitCode(); code > 0 {
		return code
	}
	return 1
}
