package satellite

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/satellite/internal/process"
)

const (
	// intervalSep separates the command from its interval in a spec.
	intervalSep = " @ "
	// listSep separates specs in a satellite list.
	listSep = ","

	// DefaultInterval is used when a spec has no " @ <seconds>" part.
	DefaultInterval = 1
	// DefaultTick is the length of one interval unit.
	DefaultTick = time.Second
)

// ErrInvalidSpec is matched by every satellite spec parse failure.
var ErrInvalidSpec = errors.New("invalid satellite spec")

// SpecError reports which spec failed to parse and why.
type SpecError struct {
	Spec string
	Err  error
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("invalid satellite spec %q: %v", e.Spec, e.Err)
}

func (e *SpecError) Unwrap() error { return e.Err }

func (e *SpecError) Is(target error) bool { return target == ErrInvalidSpec }

// Config describes one satellite. It is a plain value; the Scheduler owns
// all mutable state.
type Config struct {
	Command  process.Command
	Interval int                  // ticks between invocations, >= 1
	Jitter   func() time.Duration // length of one tick; nil means DefaultTick
}

// Name is the name the satellite's logs are kept under.
func (c Config) Name() string { return c.Command.Name() }

// WithName returns a copy of c with a custom log name.
func (c Config) WithName(name string) Config {
	c.Command = c.Command.WithName(name)
	return c
}

// Tick returns the length of the next tick.
func (c Config) Tick() time.Duration {
	if c.Jitter == nil {
		return DefaultTick
	}
	return c.Jitter()
}

// Validate checks the invariants a Scheduler relies on.
func (c Config) Validate() error {
	if c.Command.IsZero() {
		return &SpecError{Spec: c.Command.String(), Err: process.ErrEmptyCommand}
	}
	if c.Interval < 1 {
		return &SpecError{Spec: c.Command.String(), Err: fmt.Errorf("interval must be a positive number of seconds, got %d", c.Interval)}
	}
	return nil
}

// ParseSpec parses "<command> @ <seconds>" or a bare "<command>".
func ParseSpec(text string) (Config, error) {
	cmdText, intervalText, hasInterval := strings.Cut(text, intervalSep)
	interval := DefaultInterval
	if hasInterval {
		n, err := strconv.Atoi(strings.TrimSpace(intervalText))
		if err != nil {
			return Config{}, &SpecError{Spec: text, Err: err}
		}
		interval = n
	}
	cmd, err := process.ParseCommand(cmdText)
	if err != nil {
		return Config{}, &SpecError{Spec: text, Err: err}
	}
	cfg := Config{Command: cmd, Interval: interval}
	if err := cfg.Validate(); err != nil {
		return Config{}, &SpecError{Spec: text, Err: errors.Unwrap(err)}
	}
	return cfg, nil
}

// ParseList parses a comma separated list of specs. Blank entries are
// skipped; any malformed entry fails the whole list.
func ParseList(text string) ([]Config, error) {
	var out []Config
	for _, part := range strings.Split(text, listSep) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		cfg, err := ParseSpec(part)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}
