package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level names accepted by SlogConfig.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SlogConfig configures the supervisor's own structured logger.
type SlogConfig struct {
	Level      string
	Format     Format
	Color      bool // only applies to FormatText
	TimeStamps bool
	Source     bool
}

// DefaultSlogConfig is used when nothing is configured.
func DefaultSlogConfig() SlogConfig {
	return SlogConfig{Level: LevelInfo, Format: FormatText, TimeStamps: true}
}

// Validate checks level and format names.
func (c SlogConfig) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case "", FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid log format %q, must be one of: text, json", c.Format)
	}
}

// NewSlogger builds a logger writing to stderr.
func (c Config) NewSlogger() *slog.Logger { return c.Slog.NewLogger(os.Stderr) }

// NewLogger builds a logger writing to w.
func (c SlogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := parseLevel(c.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl, AddSource: c.Source}
	if !c.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	if c.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	if c.Color {
		return slog.New(NewColorTextHandler(w, opts, c.TimeStamps))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", LevelInfo:
		return slog.LevelInfo, nil
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelWarn, "warning":
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", s)
	}
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
