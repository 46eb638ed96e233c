// Package satellite runs a main process and schedules satellite commands
// for as long as the main process is alive.
package satellite

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/satellite/internal/config"
	"github.com/loykin/satellite/internal/logger"
	"github.com/loykin/satellite/internal/metrics"
	"github.com/loykin/satellite/internal/process"
	sat "github.com/loykin/satellite/internal/satellite"
	"github.com/loykin/satellite/internal/supervisor"
	"github.com/loykin/satellite/internal/trigger"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Command = process.Command

type SatelliteConfig = sat.Config

type Options = supervisor.Options

type Config = cfg.Config

type LogConfig = logger.Config

type FileConfig = logger.FileConfig

type Trigger = trigger.Trigger

type TriggerFunc = trigger.Func

// PIDTrigger is alive while the process pid exists.
type PIDTrigger = trigger.PID

// PIDFileTrigger is alive while the process named by a pidfile exists.
type PIDFileTrigger = trigger.PIDFile

type Runner = process.Runner

type ExecRunner = process.ExecRunner

var (
	ErrInvalidSpec = sat.ErrInvalidSpec
	ErrLogDir      = supervisor.ErrLogDir
	ErrMissingMain = cfg.ErrMissingMain
)

func ParseCommand(line string) (Command, error)        { return process.ParseCommand(line) }
func ParseSpec(text string) (SatelliteConfig, error)   { return sat.ParseSpec(text) }
func ParseList(text string) ([]SatelliteConfig, error) { return sat.ParseList(text) }
func ExitCode(err error) int                           { return process.ExitCode(err) }

func LoadConfig(path string, mainArgs ...string) (*Config, error) {
	return cfg.Load(path, nil, mainArgs)
}

// Supervisor is a thin facade over internal/supervisor.
type Supervisor struct{ inner *supervisor.Supervisor }

func New(opts Options) (*Supervisor, error) {
	s, err := supervisor.New(opts)
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: s}, nil
}

func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }
func (s *Supervisor) RunID() string                 { return s.inner.RunID() }

// Scheduler runs a single satellite against any Trigger, for embedders that
// supply their own liveness check.
type Scheduler = sat.Scheduler

func NewScheduler(c SatelliteConfig, t Trigger, r Runner, logs LogConfig) (*Scheduler, error) {
	sink, err := logs.OpenSink(c.Name())
	if err != nil {
		return nil, err
	}
	return sat.New(c, t, r, sink)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewMetricsServer returns an unstarted HTTP server exposing /metrics from
// the default registry.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	return NewMetricsServer(addr).ListenAndServe()
}
