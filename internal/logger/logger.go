package logger

import (
	"fmt"
	"io"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days

	// DefaultDir is where process logs go when no directory is configured.
	DefaultDir = "./var/log/satellite/"

	stdoutSuffix = ".satellite.log"
	stderrSuffix = ".satellite.err"
)

// Config groups structured logging for the supervisor itself (Slog) and
// file logging for the processes it runs (File).
type Config struct {
	Slog SlogConfig
	File FileConfig
}

// FileConfig describes where process output goes.
// Files are Dir/<name>.satellite.log and Dir/<name>.satellite.err.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Dir        string // base directory for logs
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // Gzip rotated files
}

// Paths returns the stdout and stderr file paths for a process name.
func (c FileConfig) Paths(name string) (string, string) {
	dir := c.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, name+stdoutSuffix), filepath.Join(dir, name+stderrSuffix)
}

// ProcessWriters returns append-mode writers for the stdout and stderr of the
// named process.
func (c Config) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	if name == "" {
		return nil, nil, fmt.Errorf("process writers: empty name")
	}
	stdout, stderr := c.File.Paths(name)
	return c.File.rotating(stdout), c.File.rotating(stderr), nil
}

func (c FileConfig) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
