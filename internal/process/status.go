package process

import "time"

// Status describes one finished invocation.
type Status struct {
	Name      string        `json:"name"`
	PID       int           `json:"pid"`
	StartedAt time.Time     `json:"started_at"`
	StoppedAt time.Time     `json:"stopped_at"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
}
