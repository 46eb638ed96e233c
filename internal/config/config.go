// Package config merges the TOML file, SATELLITE_* environment variables and
// command line flags into one validated run configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/loykin/satellite/internal/env"
	"github.com/loykin/satellite/internal/logger"
	"github.com/loykin/satellite/internal/process"
	"github.com/loykin/satellite/internal/satellite"
	"github.com/loykin/satellite/internal/supervisor"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "SATELLITE"

// ErrMissingMain is returned when neither arguments, file nor environment
// name a main command.
var ErrMissingMain = errors.New("missing main command")

// flag name -> viper key
var flagKeys = map[string]string{
	"satellites":     "satellite_specs",
	"logdir":         "logdir",
	"verbose":        "verbose",
	"grace":          "grace",
	"pidfile":        "pidfile",
	"metrics-listen": "metrics_listen",
	"log-format":     "log.format",
	"log-level":      "log.level",
}

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Main          string        `toml:"main" mapstructure:"main"`
	LogDir        string        `toml:"logdir" mapstructure:"logdir"`
	Verbose       bool          `toml:"verbose" mapstructure:"verbose"`
	Grace         time.Duration `toml:"grace" mapstructure:"grace"`
	PIDFile       string        `toml:"pidfile" mapstructure:"pidfile"`
	MetricsListen string        `toml:"metrics_listen" mapstructure:"metrics_listen"`
	WorkDir       string        `toml:"workdir" mapstructure:"workdir"`
	Env           []string      `toml:"env" mapstructure:"env"`
	EnvFiles      []string      `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv      bool          `toml:"use_os_env" mapstructure:"use_os_env"`
	Log           LogConfig     `toml:"log" mapstructure:"log"`
	Satellites    []SatConfig   `toml:"satellites" mapstructure:"satellites"`

	// SatelliteSpecs is the --satellites list; it has no TOML key.
	SatelliteSpecs string `toml:"-" mapstructure:"satellite_specs"`
	// MainArgs is the main command as an argv from the command line. With
	// more than one element it is used verbatim and Main is ignored.
	MainArgs []string `toml:"-" mapstructure:"-"`
}

type LogConfig struct {
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
	Format     string `toml:"format" mapstructure:"format"`
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`

	// LevelSet reports that Level was chosen by file, env or flag.
	LevelSet bool `toml:"-" mapstructure:"-"`
}

type SatConfig struct {
	Name     string `toml:"name" mapstructure:"name"`
	Command  string `toml:"command" mapstructure:"command"`
	Interval int    `toml:"interval" mapstructure:"interval"`
}

// Config is the resolved configuration of one supervisor run.
type Config struct {
	Main          process.Command
	Satellites    []satellite.Config
	Log           logger.Config
	Verbose       bool
	Grace         time.Duration
	PIDFile       string
	MetricsListen string
	WorkDir       string
	// Env is nil when the child should inherit the supervisor environment.
	Env []string
}

// NewViper returns a viper instance with defaults, env binding and, when
// flags is non-nil, the command line flags bound.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("main", "")
	v.SetDefault("logdir", logger.DefaultDir)
	v.SetDefault("verbose", false)
	v.SetDefault("grace", "5s")
	v.SetDefault("pidfile", "")
	v.SetDefault("metrics_listen", "")
	v.SetDefault("workdir", "")
	v.SetDefault("use_os_env", true)
	v.SetDefault("satellite_specs", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.format", string(logger.FormatText))
	v.SetDefault("log.level", logger.LevelInfo)
	v.SetDefault("log.color", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// the list flag and the [[satellites]] table cannot share a key
	if err := v.BindEnv("satellite_specs", EnvPrefix+"_SATELLITES"); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	return v, nil
}

// Load reads path (optional, TOML), merges env and flags over it and
// resolves the result. mainArgs, when non-empty, override any configured
// main command: a single element is parsed as a command line, several are
// taken as the exact argv.
func Load(path string, flags *pflag.FlagSet, mainArgs []string) (*Config, error) {
	v, err := NewViper(flags)
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	fc.MainArgs = mainArgs
	fc.Log.LevelSet = levelChosen(v, flags)
	return fc.Resolve()
}

// levelChosen reports whether log.level came from the file, env or a changed
// flag. v.IsSet cannot tell because it also sees the default.
func levelChosen(v *viper.Viper, flags *pflag.FlagSet) bool {
	if flags != nil && flags.Changed("log-level") {
		return true
	}
	if _, ok := os.LookupEnv(EnvPrefix + "_LOG_LEVEL"); ok {
		return true
	}
	return v.InConfig("log.level")
}

// Resolve validates fc and builds the typed configuration. Satellites from
// the file come first, followed by the SatelliteSpecs list.
func (fc FileConfig) Resolve() (*Config, error) {
	mainCmd, err := fc.mainCommand()
	if err != nil {
		return nil, err
	}

	sats := make([]satellite.Config, 0, len(fc.Satellites))
	for i, sc := range fc.Satellites {
		c, err := sc.toSatellite()
		if err != nil {
			return nil, fmt.Errorf("satellites[%d]: %w", i, err)
		}
		sats = append(sats, c)
	}
	listed, err := satellite.ParseList(fc.SatelliteSpecs)
	if err != nil {
		return nil, err
	}
	sats = append(sats, listed...)

	slogCfg := logger.SlogConfig{
		Level:      fc.Log.Level,
		Format:     logger.Format(fc.Log.Format),
		Color:      fc.Log.Color,
		TimeStamps: true,
	}
	if err := slogCfg.Validate(); err != nil {
		return nil, err
	}
	if fc.Verbose && !fc.Log.LevelSet && (slogCfg.Level == "" || slogCfg.Level == logger.LevelInfo) {
		slogCfg.Level = logger.LevelDebug
	}
	if fc.Grace < 0 {
		return nil, fmt.Errorf("grace must not be negative, got %s", fc.Grace)
	}

	childEnv, err := fc.buildEnv()
	if err != nil {
		return nil, err
	}

	return &Config{
		Main:       mainCmd,
		Satellites: sats,
		Log: logger.Config{
			Slog: slogCfg,
			File: logger.FileConfig{
				Dir:        fc.LogDir,
				MaxSizeMB:  fc.Log.MaxSizeMB,
				MaxBackups: fc.Log.MaxBackups,
				MaxAgeDays: fc.Log.MaxAgeDays,
				Compress:   fc.Log.Compress,
			},
		},
		Verbose:       fc.Verbose,
		Grace:         fc.Grace,
		PIDFile:       fc.PIDFile,
		MetricsListen: fc.MetricsListen,
		WorkDir:       fc.WorkDir,
		Env:           childEnv,
	}, nil
}

func (fc FileConfig) mainCommand() (process.Command, error) {
	line := fc.Main
	switch len(fc.MainArgs) {
	case 0:
	case 1:
		line = fc.MainArgs[0]
	default:
		cmd, err := process.NewCommand(fc.MainArgs...)
		if err != nil {
			return process.Command{}, fmt.Errorf("main command: %w", err)
		}
		return cmd, nil
	}
	if strings.TrimSpace(line) == "" {
		return process.Command{}, ErrMissingMain
	}
	cmd, err := process.ParseCommand(line)
	if err != nil {
		return process.Command{}, fmt.Errorf("main command: %w", err)
	}
	return cmd, nil
}

func (sc SatConfig) toSatellite() (satellite.Config, error) {
	cmd, err := process.ParseCommand(sc.Command)
	if err != nil {
		return satellite.Config{}, &satellite.SpecError{Spec: sc.Command, Err: err}
	}
	c := satellite.Config{Command: cmd, Interval: sc.Interval}
	if c.Interval == 0 {
		c.Interval = satellite.DefaultInterval
	}
	if sc.Name != "" {
		c = c.WithName(sc.Name)
	}
	if err := c.Validate(); err != nil {
		return satellite.Config{}, err
	}
	return c, nil
}

// buildEnv layers OS env (when enabled), env_files in order and the env
// list. With neither env nor env_files set the child inherits as is.
func (fc FileConfig) buildEnv() ([]string, error) {
	if len(fc.Env) == 0 && len(fc.EnvFiles) == 0 {
		return nil, nil
	}
	e := env.New(fc.UseOSEnv)
	for _, p := range fc.EnvFiles {
		if err := e.LoadFile(p); err != nil {
			return nil, err
		}
	}
	e.SetPairs(fc.Env)
	return e.List(), nil
}

// SupervisorOptions maps c onto supervisor options; child processes get
// c.Env and c.WorkDir.
func (c *Config) SupervisorOptions(log *slog.Logger) supervisor.Options {
	return supervisor.Options{
		Main:       c.Main,
		Satellites: c.Satellites,
		Log:        c.Log,
		Verbose:    c.Verbose,
		Grace:      c.Grace,
		PIDFile:    c.PIDFile,
		Runner:     process.ExecRunner{Env: c.Env, WorkDir: c.WorkDir},
		Logger:     log,
	}
}
