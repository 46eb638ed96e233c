package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "satellite",
			Subsystem: "scheduler",
			Name:      "invocations_total",
			Help:      "Number of satellite invocations started.",
		}, []string{"name"},
	)
	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "satellite",
			Subsystem: "scheduler",
			Name:      "failures_total",
			Help:      "Number of failed satellite invocations by kind (launch, exit).",
		}, []string{"name", "kind"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "satellite",
			Subsystem: "process",
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "satellite",
			Subsystem: "scheduler",
			Name:      "state_transitions_total",
			Help:      "Number of scheduler state transitions.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "satellite",
			Subsystem: "scheduler",
			Name:      "current_state",
			Help:      "Current state of schedulers (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
	mainAlive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "satellite",
			Subsystem: "main",
			Name:      "alive",
			Help:      "1 while the main process is running.",
		},
	)
	mainExitCode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "satellite",
			Subsystem: "main",
			Name:      "exit_code",
			Help:      "Exit status of the main process once it has finished.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		invocations, failures, runDuration, stateTransitions, currentStates,
		mainAlive, mainExitCode, processCPU, processRSS, processThreads,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncInvocation(name string) {
	if regOK.Load() {
		invocations.WithLabelValues(name).Inc()
	}
}

func IncFailure(name, kind string) {
	if regOK.Load() {
		failures.WithLabelValues(name, kind).Inc()
	}
}

func ObserveRunDuration(name string, seconds float64) {
	if regOK.Load() {
		runDuration.WithLabelValues(name).Observe(seconds)
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(name, state).Set(value)
	}
}

func SetMainAlive(alive bool) {
	if regOK.Load() {
		var value float64
		if alive {
			value = 1
		}
		mainAlive.Set(value)
	}
}

func SetMainExitCode(code int) {
	if regOK.Load() {
		mainExitCode.Set(float64(code))
	}
}
