// Package supervisor runs a main process and keeps its satellites scheduled
// for as long as the main process is alive.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/satellite/internal/logger"
	"github.com/loykin/satellite/internal/metrics"
	"github.com/loykin/satellite/internal/process"
	"github.com/loykin/satellite/internal/satellite"
	"github.com/loykin/satellite/internal/trigger"
)

const (
	// DefaultGrace bounds how long Run waits for schedulers after main exits.
	DefaultGrace = 5 * time.Second
	// DefaultSampleInterval is how often verbose mode samples the main process.
	DefaultSampleInterval = time.Second
)

var (
	// ErrLogDir is returned when the log directory cannot be created.
	ErrLogDir = errors.New("cannot create log directory")
	// ErrNoMain is returned when Options has no main command.
	ErrNoMain = errors.New("no main command")
	// ErrAlreadyRun is returned by a second call to Run.
	ErrAlreadyRun = errors.New("supervisor already run")
)

// Options configures a Supervisor.
type Options struct {
	Main       process.Command
	Satellites []satellite.Config
	Log        logger.Config

	// Verbose runs main in the background with its output sent to its own
	// log files, and prints diagnostics to Console.
	Verbose bool
	// Grace bounds the scheduler join after main exits (default 5s).
	Grace time.Duration
	// PIDFile, when set, receives the main pid for the lifetime of main.
	PIDFile string

	Runner         process.Runner // default process.ExecRunner{}
	Logger         *slog.Logger   // default slog.Default()
	Console        io.Writer      // verbose diagnostics, default os.Stdout
	SampleInterval time.Duration  // verbose resource samples, default 1s
	Clock          func() time.Time
}

// Supervisor owns one main process run and the schedulers of its satellites.
type Supervisor struct {
	opts   Options
	runID  string
	log    *slog.Logger
	runner process.Runner
	now    func() time.Time

	trigger    *trigger.Done
	mainName   string
	mainSink   *logger.Sink
	sinks      []*logger.Sink
	schedulers []*satellite.Scheduler

	consoleMu sync.Mutex

	started atomic.Bool
}

// New validates opts, creates the log directory, opens every log sink and
// builds one idle scheduler per satellite. Nothing is started.
func New(opts Options) (*Supervisor, error) {
	if opts.Main.IsZero() {
		return nil, ErrNoMain
	}
	for _, c := range opts.Satellites {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.Log.File.Dir == "" {
		opts.Log.File.Dir = logger.DefaultDir
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if err := os.MkdirAll(opts.Log.File.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrLogDir, opts.Log.File.Dir, err)
	}

	s := &Supervisor{
		opts:    opts,
		runID:   uuid.NewString(),
		runner:  opts.Runner,
		now:     opts.Clock,
		trigger: trigger.NewDone(),
	}
	if s.runner == nil {
		s.runner = process.ExecRunner{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	s.log = base.With("run_id", s.runID)

	// main only owns a log name when verbose mode gives it log files
	names := make([]string, 0, len(opts.Satellites)+1)
	if opts.Verbose {
		names = append(names, opts.Main.Name())
	}
	for _, c := range opts.Satellites {
		names = append(names, c.Name())
	}
	names = uniqueNames(names)
	s.mainName = opts.Main.Name()
	if opts.Verbose {
		names = names[1:]
	}

	if err := s.build(names); err != nil {
		s.closeSinks()
		return nil, err
	}
	return s, nil
}

func (s *Supervisor) build(names []string) error {
	if s.opts.Verbose {
		sink, err := s.opts.Log.OpenSink(s.mainName)
		if err != nil {
			return fmt.Errorf("open log for %s: %w", s.mainName, err)
		}
		s.mainSink = sink
	}
	for i, c := range s.opts.Satellites {
		c = c.WithName(names[i])
		sink, err := s.opts.Log.OpenSink(c.Name())
		if err != nil {
			return fmt.Errorf("open log for %s: %w", c.Name(), err)
		}
		s.sinks = append(s.sinks, sink)
		sch, err := satellite.New(c, s.trigger, s.runner, sink,
			satellite.WithLogger(s.log), satellite.WithClock(s.now))
		if err != nil {
			return err
		}
		s.schedulers = append(s.schedulers, sch)
	}
	return nil
}

// closeSinks releases sinks of a supervisor that never ran.
func (s *Supervisor) closeSinks() {
	if s.mainSink != nil {
		_ = s.mainSink.Close()
	}
	for _, sink := range s.sinks {
		_ = sink.Close()
	}
}

func (s *Supervisor) RunID() string                      { return s.runID }
func (s *Supervisor) MainName() string                   { return s.mainName }
func (s *Supervisor) Trigger() trigger.Trigger           { return s.trigger }
func (s *Supervisor) Schedulers() []*satellite.Scheduler { return s.schedulers }

// Run starts every scheduler, runs main until it exits, then stops the
// schedulers and waits for them up to the grace period. It returns main's
// error; satellite failures are logged and never returned.
// Cancelling ctx stops main and aborts scheduler waits.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	s.log.Info("supervisor starting",
		"main", s.opts.Main.String(), "satellites", len(s.schedulers), "verbose", s.opts.Verbose)

	var g errgroup.Group
	for _, sch := range s.schedulers {
		g.Go(func() error {
			s.log.Debug("scheduler started", "satellite", sch.Name(), "interval", sch.Interval())
			err := sch.Run(ctx)
			s.log.Debug("scheduler stopped", "satellite", sch.Name(), "calls", sch.Calls(), "error", err)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("satellite %s: %w", sch.Name(), err)
			}
			return nil
		})
	}

	var mainErr error
	if s.opts.Verbose {
		mainErr = s.runBackground(ctx)
	} else {
		mainErr = s.runForeground(ctx)
	}
	s.trigger.Fire()

	code := process.ExitCode(mainErr)
	metrics.SetMainAlive(false)
	metrics.SetMainExitCode(code)
	if mainErr != nil {
		s.log.Warn("main process failed", "main", s.mainName, "exit_code", code, "error", mainErr)
	} else {
		s.log.Info("main process finished", "main", s.mainName)
	}

	s.join(&g)
	return mainErr
}

// join waits for all schedulers, abandoning the ones still busy after Grace.
func (s *Supervisor) join(g *errgroup.Group) {
	joined := make(chan error, 1)
	go func() { joined <- g.Wait() }()

	t := time.NewTimer(s.opts.Grace)
	defer t.Stop()
	select {
	case err := <-joined:
		if err != nil {
			s.log.Warn("satellite ended with an error", "error", err)
		}
		s.log.Debug("all satellites stopped")
	case <-t.C:
		for _, sch := range s.schedulers {
			select {
			case <-sch.Done():
			default:
				s.log.Warn("satellite still running after grace period, abandoning it",
					"satellite", sch.Name(), "state", sch.State().String(), "grace", s.opts.Grace)
			}
		}
	}
}

func (s *Supervisor) onMainStart(pid int) {
	metrics.SetMainAlive(true)
	s.log.Debug("main process started", "main", s.mainName, "pid", pid)
	if err := process.WritePIDFile(s.opts.PIDFile, pid); err != nil {
		s.log.Warn("write pidfile failed", "path", s.opts.PIDFile, "error", err)
	}
}

func (s *Supervisor) runForeground(ctx context.Context) error {
	defer process.RemovePIDFile(s.opts.PIDFile)
	stdio := process.Terminal()
	stdio.OnStart = s.onMainStart
	_, err := s.runner.Run(ctx, s.opts.Main, stdio)
	return err
}

// runBackground runs main exactly once in its own goroutine, logging to its
// sink and printing launch, call and resource diagnostics to the console.
func (s *Supervisor) runBackground(ctx context.Context) error {
	defer process.RemovePIDFile(s.opts.PIDFile)
	defer func() {
		if err := s.mainSink.Close(); err != nil {
			s.log.Warn("closing main log failed", "error", err)
		}
	}()

	const call = 1
	at := s.now()
	if err := s.mainSink.WriteMarker(call, at); err != nil {
		s.log.Warn("write invocation marker failed", "main", s.mainName, "error", err)
	}
	s.console("launching %s: %s\n", s.mainName, s.opts.Main.String())
	s.console("%s", logger.FormatMarker(call, at))

	started := make(chan int, 1)
	stdio := process.IO{
		Stdout: s.mainSink.Stdout(),
		Stderr: s.mainSink.Stderr(),
		OnStart: func(pid int) {
			s.onMainStart(pid)
			started <- pid
		},
	}
	result := make(chan error, 1)
	go func() {
		st, err := s.runner.Run(ctx, s.opts.Main, stdio)
		if st.Duration > 0 {
			metrics.ObserveRunDuration(s.mainName, st.Duration.Seconds())
		}
		result <- err
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	var watchers sync.WaitGroup
	for {
		select {
		case pid := <-started:
			s.console("%s running with pid %d\n", s.mainName, pid)
			watchers.Add(1)
			go func() {
				defer watchers.Done()
				metrics.WatchProcess(watchCtx, s.mainName, int32(pid), s.opts.SampleInterval, func(m metrics.ProcessMetrics) {
					s.console("%s pid %d: cpu %.1f%% rss %.1f MB threads %d\n",
						m.Name, m.PID, m.CPUPercent, m.MemoryMB, m.NumThreads)
				})
			}()
		case err := <-result:
			stopWatch()
			watchers.Wait()
			s.console("%s finished with exit status %d\n", s.mainName, process.ExitCode(err))
			return err
		}
	}
}

func (s *Supervisor) console(format string, args ...any) {
	s.consoleMu.Lock()
	defer s.consoleMu.Unlock()
	_, _ = fmt.Fprintf(s.opts.Console, format, args...)
}
