package satellite

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/loykin/satellite/internal/logger"
	"github.com/loykin/satellite/internal/metrics"
	"github.com/loykin/satellite/internal/process"
	"github.com/loykin/satellite/internal/trigger"
)

// ErrAlreadyStarted is returned when Run is called on a scheduler that has left Idle.
var ErrAlreadyStarted = errors.New("scheduler already started")

// State of a Scheduler.
//
//	Idle -> Checking -> Running -> Waiting -> Checking -> ... -> Stopped
type State int32

const (
	StateIdle State = iota
	StateChecking
	StateRunning
	StateWaiting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Scheduler runs one satellite command repeatedly while its trigger is alive.
// Invocations never overlap; the trigger is checked before every run and
// after every tick of the wait between runs.
type Scheduler struct {
	cfg     Config
	trigger trigger.Trigger
	runner  process.Runner
	sink    *logger.Sink
	log     *slog.Logger
	now     func() time.Time

	state atomic.Int32
	calls atomic.Uint64
	done  chan struct{}
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now for invocation markers.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds an idle scheduler. The scheduler owns sink and closes it when it stops.
func New(cfg Config, trig trigger.Trigger, runner process.Runner, sink *logger.Sink, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if trig == nil {
		return nil, errors.New("scheduler requires a trigger")
	}
	if runner == nil {
		return nil, errors.New("scheduler requires a runner")
	}
	if sink == nil {
		return nil, errors.New("scheduler requires a log sink")
	}
	s := &Scheduler{
		cfg:     cfg,
		trigger: trig,
		runner:  runner,
		sink:    sink,
		log:     slog.Default(),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("satellite", cfg.Name())
	return s, nil
}

func (s *Scheduler) Name() string             { return s.cfg.Name() }
func (s *Scheduler) Interval() int            { return s.cfg.Interval }
func (s *Scheduler) Trigger() trigger.Trigger { return s.trigger }
func (s *Scheduler) State() State             { return State(s.state.Load()) }
func (s *Scheduler) Calls() uint64            { return s.calls.Load() }
func (s *Scheduler) Done() <-chan struct{}    { return s.done }
func (s *Scheduler) Command() process.Command { return s.cfg.Command }
func (s *Scheduler) Config() Config           { return s.cfg }

// Run drives the state machine until the trigger goes false, ctx is
// cancelled, or the command cannot be launched. It returns nil when the
// trigger stopped it, ctx.Err() on cancellation, and the *process.LaunchError
// on launch failure. Non-zero exits are logged and do not end the loop.
// Cancelling ctx aborts a wait immediately but never interrupts a running
// invocation.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateChecking)) {
		return ErrAlreadyStarted
	}
	s.transition(StateIdle, StateChecking)
	defer s.stop()

	for {
		if !s.trigger.Alive() {
			s.log.Debug("trigger is down, stopping", "calls", s.Calls())
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(StateRunning)
		if err := s.invoke(ctx); err != nil && process.IsLaunchError(err) {
			return err
		}

		s.setState(StateWaiting)
		if err := s.wait(ctx); err != nil {
			return err
		}
		s.setState(StateChecking)
	}
}

func (s *Scheduler) invoke(ctx context.Context) error {
	n := s.calls.Add(1)
	name := s.Name()
	if err := s.sink.WriteMarker(n, s.now()); err != nil {
		s.log.Warn("write invocation marker failed", "call", n, "error", err)
	}
	s.log.Debug("running call", "call", n, "wait_ticks", s.cfg.Interval)
	metrics.IncInvocation(name)

	st, err := s.runner.Run(context.WithoutCancel(ctx), s.cfg.Command, process.IO{
		Stdout: s.sink.Stdout(),
		Stderr: s.sink.Stderr(),
	})
	if st.Duration > 0 {
		metrics.ObserveRunDuration(name, st.Duration.Seconds())
	}
	switch {
	case err == nil:
	case process.IsLaunchError(err):
		metrics.IncFailure(name, "launch")
		s.log.Error("satellite could not be launched, giving up", "call", n, "error", err)
	default:
		metrics.IncFailure(name, "exit")
		s.log.Warn("satellite call failed", "call", n, "exit_code", process.ExitCode(err), "error", err)
	}
	return err
}

// wait sleeps Interval ticks, returning early (nil) as soon as the trigger
// goes false after a tick, or with ctx.Err() when ctx is cancelled.
func (s *Scheduler) wait(ctx context.Context) error {
	for i := 0; i < s.cfg.Interval; i++ {
		t := time.NewTimer(s.cfg.Tick())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if !s.trigger.Alive() {
			return nil
		}
	}
	return nil
}

func (s *Scheduler) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to {
		s.transition(from, to)
	}
}

func (s *Scheduler) transition(from, to State) {
	name := s.Name()
	metrics.RecordStateTransition(name, from.String(), to.String())
	metrics.SetCurrentState(name, from.String(), false)
	metrics.SetCurrentState(name, to.String(), true)
}

func (s *Scheduler) stop() {
	if err := s.sink.Close(); err != nil {
		s.log.Warn("closing log sink failed", "error", err)
	}
	s.setState(StateStopped)
	close(s.done)
}
