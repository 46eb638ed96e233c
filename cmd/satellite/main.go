package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/satellite"
	"github.com/loykin/satellite/internal/config"
	"github.com/loykin/satellite/internal/process"
	"github.com/loykin/satellite/internal/supervisor"
)

// Exit statuses of the supervisor itself; otherwise main's status is used.
const (
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := 0
	root := buildRoot(&code)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, "satellite:", err)
		var ce codedError
		if errors.As(err, &ce) {
			return ce.code
		}
		// cobra flag parsing errors
		return exitUsage
	}
	return code
}

type codedError struct {
	code int
	err  error
}

func (e codedError) Error() string { return e.err.Error() }
func (e codedError) Unwrap() error { return e.err }

func buildRoot(code *int) *cobra.Command {
	flags := &RootFlags{}
	root := &cobra.Command{
		Use:   "satellite [flags] <main command...>",
		Short: "Run a main process and schedule satellites while it is alive",
		Long: `Satellite launches a main process and runs each satellite command on its
own schedule for as long as the main process is alive. Satellite output goes
to <logdir>/<name>.satellite.log and <logdir>/<name>.satellite.err.

Examples:
  satellite -s "echo hi @ 1" sleep 2
  satellite -l /tmp/logs -s "ls @ 5, pwd @ 10" ./server --port 8080
  satellite --config satellite.toml`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := runSupervisor(cmd.Context(), flags, cmd, args)
			*code = c
			return err
		},
	}
	flags.register(root.Flags())
	// everything after the main command belongs to it
	root.Flags().SetInterspersed(false)
	return root
}

func runSupervisor(ctx context.Context, flags *RootFlags, cmd *cobra.Command, args []string) (int, error) {
	cfg, err := config.Load(flags.ConfigPath, cmd.Flags(), args)
	if err != nil {
		return exitUsage, codedError{exitUsage, err}
	}

	log := cfg.Log.NewSlogger()
	slog.SetDefault(log)

	if cfg.MetricsListen != "" {
		stop, err := startMetrics(cfg.MetricsListen, log)
		if err != nil {
			return exitFailure, codedError{exitFailure, err}
		}
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sup, err := supervisor.New(cfg.SupervisorOptions(log))
	if err != nil {
		return exitFailure, codedError{exitFailure, err}
	}
	// main's own failure is already logged; only its status is reported
	return process.ExitCode(sup.Run(ctx)), nil
}

// startMetrics serves /metrics in the background and returns its shutdown.
func startMetrics(addr string, log *slog.Logger) (func(), error) {
	if err := satellite.RegisterMetricsDefault(); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	srv := satellite.NewMetricsServer(addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
