package main

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/loykin/satellite/internal/logger"
	"github.com/loykin/satellite/internal/supervisor"
)

// RootFlags decouples cobra from the run logic for testing. Everything but
// ConfigPath is read back through viper so env and file values merge in.
type RootFlags struct {
	ConfigPath    string
	Satellites    string
	LogDir        string
	Verbose       bool
	Grace         time.Duration
	PIDFile       string
	MetricsListen string
	LogFormat     string
	LogLevel      string
}

func (f *RootFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "path to TOML config file (optional)")
	fs.StringVarP(&f.Satellites, "satellites", "s", "", `comma separated satellite specs, each "<command> @ <seconds>"`)
	fs.StringVarP(&f.LogDir, "logdir", "l", logger.DefaultDir, "directory for process log files (created if missing)")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "run main in the background with its output logged, and print diagnostics")
	fs.DurationVar(&f.Grace, "grace", supervisor.DefaultGrace, "how long to wait for satellites after main exits")
	fs.StringVar(&f.PIDFile, "pidfile", "", "write the main process pid to this file")
	fs.StringVar(&f.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (e.g. :9090)")
	fs.StringVar(&f.LogFormat, "log-format", string(logger.FormatText), "supervisor log format: text or json")
	fs.StringVar(&f.LogLevel, "log-level", logger.LevelInfo, "supervisor log level: debug, info, warn, error")
}
