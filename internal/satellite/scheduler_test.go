package satellite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/loykin/satellite/internal/logger"
	"github.com/loykin/satellite/internal/process"
	"github.com/loykin/satellite/internal/trigger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStream is an in-memory WriteCloser; the Sink serializes access to it.
type memStream struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (m *memStream) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Write(p)
}

func (m *memStream) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memStream) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}

func (m *memStream) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func memSink(name string) (*logger.Sink, *memStream, *memStream) {
	out, errs := &memStream{}, &memStream{}
	return logger.NewSink(name, out, errs), out, errs
}

// fakeRunner counts calls and delegates the outcome to fn.
type fakeRunner struct {
	calls    atomic.Int64
	inflight atomic.Int64
	overlap  atomic.Bool
	fn       func(n int64, stdio process.IO) error
}

func (f *fakeRunner) Run(_ context.Context, c process.Command, stdio process.IO) (process.Status, error) {
	if f.inflight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inflight.Add(-1)
	n := f.calls.Add(1)
	var err error
	if f.fn != nil {
		err = f.fn(n, stdio)
	}
	return process.Status{Name: c.Name()}, err
}

func testConfig(t *testing.T, spec string, tick time.Duration) Config {
	t.Helper()
	cfg, err := ParseSpec(spec)
	require.NoError(t, err)
	cfg.Jitter = func() time.Duration { return tick }
	return cfg
}

func runAsync(s *Scheduler, ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- s.Run(ctx) }()
	return ch
}

func waitErr(t *testing.T, ch <-chan error, within time.Duration) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(within):
		t.Fatalf("scheduler did not stop within %s", within)
		return nil
	}
}

func TestScheduler_TriggerFalseAtEntryRunsNothing(t *testing.T) {
	sink, out, errs := memSink("ls")
	r := &fakeRunner{}
	s, err := New(testConfig(t, "ls @ 1", time.Millisecond), trigger.Func(func() bool { return false }), r, sink)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, s.Calls())
	assert.Zero(t, r.calls.Load())
	assert.Empty(t, out.String())
	assert.True(t, out.isClosed() && errs.isClosed(), "sink must be closed on stop")
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

func TestScheduler_CounterMatchesCompletedCycles(t *testing.T) {
	const k = 5
	sink, out, errs := memSink("echo")
	r := &fakeRunner{fn: func(n int64, stdio process.IO) error {
		_, _ = fmt.Fprintf(stdio.Stdout, "run %d\n", n)
		return nil
	}}
	at := time.Date(2024, time.June, 1, 12, 30, 0, 0, time.Local)
	tr := trigger.Func(func() bool { return r.calls.Load() < k })
	s, err := New(testConfig(t, "echo hi @ 1", time.Millisecond), tr, r, sink, WithClock(func() time.Time { return at }))
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, uint64(k), s.Calls())
	assert.EqualValues(t, k, r.calls.Load())

	var wantOut, wantErr strings.Builder
	for i := 1; i <= k; i++ {
		marker := logger.FormatMarker(uint64(i), at)
		wantOut.WriteString(marker)
		wantOut.WriteString(fmt.Sprintf("run %d\n", i))
		wantErr.WriteString(marker)
	}
	assert.Equal(t, wantOut.String(), out.String())
	assert.Equal(t, wantErr.String(), errs.String())
}

func TestScheduler_StopsWithinOneTickAfterTriggerFalls(t *testing.T) {
	const tick = 20 * time.Millisecond
	sink, _, _ := memSink("ls")
	done := trigger.NewDone()
	ran := make(chan struct{}, 1)
	r := &fakeRunner{fn: func(int64, process.IO) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}}
	// a long interval: without per-tick checks this would wait 20s
	s, err := New(testConfig(t, "ls @ 1000", tick), done, r, sink)
	require.NoError(t, err)
	ch := runAsync(s, context.Background())

	<-ran
	done.Fire()
	fired := time.Now()
	require.NoError(t, waitErr(t, ch, 2*time.Second))
	assert.Less(t, time.Since(fired), 10*tick)
	assert.Equal(t, uint64(1), s.Calls(), "no invocation after the trigger fell")
	assert.Equal(t, StateStopped, s.State())
}

func TestScheduler_LaunchFailureStops(t *testing.T) {
	sink, _, _ := memSink("missing")
	r := &fakeRunner{fn: func(int64, process.IO) error {
		return &process.LaunchError{Name: "missing", Err: errors.New("no such file")}
	}}
	s, err := New(testConfig(t, "missing @ 1", time.Millisecond), trigger.Func(func() bool { return true }), r, sink)
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.True(t, process.IsLaunchError(err))
	assert.Equal(t, uint64(1), s.Calls())
	assert.Equal(t, StateStopped, s.State())
}

func TestScheduler_NonZeroExitKeepsScheduling(t *testing.T) {
	sink, _, _ := memSink("flaky")
	r := &fakeRunner{fn: func(n int64, _ process.IO) error {
		if n%2 == 1 {
			return &process.ExitError{Name: "flaky", Code: 2, Err: errors.New("exit status 2")}
		}
		return nil
	}}
	tr := trigger.Func(func() bool { return r.calls.Load() < 4 })
	s, err := New(testConfig(t, "flaky @ 1", time.Millisecond), tr, r, sink)
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, uint64(4), s.Calls())
}

func TestScheduler_InvocationsNeverOverlap(t *testing.T) {
	sink, _, _ := memSink("slow")
	r := &fakeRunner{fn: func(int64, process.IO) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}}
	tr := trigger.Func(func() bool { return r.calls.Load() < 10 })
	s, err := New(testConfig(t, "slow @ 1", 0), tr, r, sink)
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.False(t, r.overlap.Load())
	assert.Equal(t, uint64(10), s.Calls())
}

func TestScheduler_ContextCancelAbortsWait(t *testing.T) {
	sink, _, _ := memSink("ls")
	r := &fakeRunner{}
	s, err := New(testConfig(t, "ls @ 1", time.Hour), trigger.Func(func() bool { return true }), r, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := runAsync(s, ctx)
	require.Eventually(t, func() bool { return s.State() == StateWaiting }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, waitErr(t, ch, time.Second), context.Canceled)
	assert.Equal(t, uint64(1), s.Calls())
}

func TestScheduler_RunningInvocationIsNotInterrupted(t *testing.T) {
	sink, _, _ := memSink("ls")
	started := make(chan struct{})
	release := make(chan struct{})
	var sawCancel atomic.Bool
	r := process.RunnerFunc(func(ctx context.Context, _ process.Command, _ process.IO) (process.Status, error) {
		close(started)
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return process.Status{}, nil
	})
	s, err := New(testConfig(t, "ls @ 1", time.Hour), trigger.Func(func() bool { return true }), r, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := runAsync(s, ctx)
	<-started
	cancel()
	assert.Equal(t, StateRunning, s.State())
	close(release)
	assert.ErrorIs(t, waitErr(t, ch, time.Second), context.Canceled)
	assert.False(t, sawCancel.Load(), "runner context must not be cancelled")
}

func TestScheduler_RunTwice(t *testing.T) {
	sink, _, _ := memSink("ls")
	s, err := New(testConfig(t, "ls", time.Millisecond), trigger.Func(func() bool { return false }), &fakeRunner{}, sink)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyStarted)
}

func TestNew_Validation(t *testing.T) {
	sink, _, _ := memSink("ls")
	cfg := testConfig(t, "ls", time.Millisecond)
	tr := trigger.Func(func() bool { return true })

	_, err := New(Config{}, tr, &fakeRunner{}, sink)
	assert.ErrorIs(t, err, ErrInvalidSpec)
	_, err = New(cfg, nil, &fakeRunner{}, sink)
	assert.Error(t, err)
	_, err = New(cfg, tr, nil, sink)
	assert.Error(t, err)
	_, err = New(cfg, tr, &fakeRunner{}, nil)
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "checking", StateChecking.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}

var _ io.WriteCloser = (*memStream)(nil)
