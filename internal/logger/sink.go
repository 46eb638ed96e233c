package logger

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// MarkerTimeLayout renders timestamps as MM/DD/YYYY, HH:MM:SS.
const MarkerTimeLayout = "01/02/2006, 15:04:05"

// Sink owns the output and error streams of one named process.
// Writes are serialized so a marker never interleaves with itself.
type Sink struct {
	name string

	mu     sync.Mutex
	out    io.WriteCloser
	err    io.WriteCloser
	closed bool
}

// NewSink wraps an already opened stdout/stderr pair.
func NewSink(name string, out, err io.WriteCloser) *Sink {
	return &Sink{name: name, out: out, err: err}
}

// OpenSink opens the rotating file pair for name using c.File.
func (c Config) OpenSink(name string) (*Sink, error) {
	outW, errW, err := c.ProcessWriters(name)
	if err != nil {
		return nil, err
	}
	return NewSink(name, outW, errW), nil
}

func (s *Sink) Name() string { return s.name }

// Stdout returns the writer a child process should use for its standard output.
func (s *Sink) Stdout() io.Writer { return lockedWriter{s, func() io.Writer { return s.out }} }

// Stderr returns the writer a child process should use for its standard error.
func (s *Sink) Stderr() io.Writer { return lockedWriter{s, func() io.Writer { return s.err }} }

// WriteMarker writes "+++ call <n> <timestamp> +++" to both streams.
func (s *Sink) WriteMarker(call uint64, at time.Time) error {
	line := FormatMarker(call, at)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if _, err := io.WriteString(s.out, line); err != nil {
		return fmt.Errorf("write marker to %s stdout: %w", s.name, err)
	}
	if _, err := io.WriteString(s.err, line); err != nil {
		return fmt.Errorf("write marker to %s stderr: %w", s.name, err)
	}
	return nil
}

// Close closes both streams. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.out.Close(), s.err.Close())
}

// ErrSinkClosed is returned for writes after Close.
var ErrSinkClosed = errors.New("log sink closed")

// FormatMarker renders the invocation marker line, including the newline.
func FormatMarker(call uint64, at time.Time) string {
	return fmt.Sprintf("+++ call %d %s +++\n", call, at.Format(MarkerTimeLayout))
}

type lockedWriter struct {
	s   *Sink
	dst func() io.Writer
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if w.s.closed {
		return 0, ErrSinkClosed
	}
	return w.dst().Write(p)
}
