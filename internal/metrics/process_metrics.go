package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	processCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "satellite",
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of a supervised process.",
		}, []string{"name", "pid"},
	)
	processRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "satellite",
			Subsystem: "process",
			Name:      "memory_rss_bytes",
			Help:      "Resident set size of a supervised process.",
		}, []string{"name", "pid"},
	)
	processThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "satellite",
			Subsystem: "process",
			Name:      "threads",
			Help:      "Thread count of a supervised process.",
		}, []string{"name", "pid"},
	)
)

// ProcessMetrics holds CPU and memory metrics for a single process
type ProcessMetrics struct {
	PID        int32     `json:"pid"`
	Name       string    `json:"name"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	Timestamp  time.Time `json:"timestamp"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
}

// SampleProcess retrieves CPU and memory metrics for a single process.
func SampleProcess(ctx context.Context, name string, pid int32) (ProcessMetrics, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ProcessMetrics{}, fmt.Errorf("failed to create process handle: %w", err)
	}

	// Get CPU percentage (this may require a previous call for accurate calculation)
	cpuPercent, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		slog.Debug("Failed to get CPU percent", "name", name, "pid", pid, "error", err)
		cpuPercent = 0
	}

	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return ProcessMetrics{}, fmt.Errorf("failed to get memory info: %w", err)
	}

	numThreads, err := proc.NumThreadsWithContext(ctx)
	if err != nil {
		slog.Debug("Failed to get thread count", "name", name, "pid", pid, "error", err)
		numThreads = 0
	}

	m := ProcessMetrics{
		PID:        pid,
		Name:       name,
		CPUPercent: cpuPercent,
		MemoryMB:   float64(memInfo.RSS) / 1024 / 1024,
		MemoryRSS:  memInfo.RSS,
		MemoryVMS:  memInfo.VMS,
		Timestamp:  time.Now(),
		NumThreads: numThreads,
	}
	if runtime.GOOS != "windows" {
		if numFDs, err := proc.NumFDsWithContext(ctx); err == nil {
			m.NumFDs = numFDs
		}
	}
	return m, nil
}

// ObserveProcess publishes a sample to the process gauges.
func ObserveProcess(m ProcessMetrics) {
	if !regOK.Load() {
		return
	}
	pid := strconv.Itoa(int(m.PID))
	processCPU.WithLabelValues(m.Name, pid).Set(m.CPUPercent)
	processRSS.WithLabelValues(m.Name, pid).Set(float64(m.MemoryRSS))
	processThreads.WithLabelValues(m.Name, pid).Set(float64(m.NumThreads))
}

// ForgetProcess drops the gauges of a process that has exited.
func ForgetProcess(name string, pid int32) {
	p := strconv.Itoa(int(pid))
	processCPU.DeleteLabelValues(name, p)
	processRSS.DeleteLabelValues(name, p)
	processThreads.DeleteLabelValues(name, p)
}

// WatchProcess samples pid every interval until ctx is done, publishing each
// sample and handing it to report when set.
func WatchProcess(ctx context.Context, name string, pid int32, interval time.Duration, report func(ProcessMetrics)) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	defer ForgetProcess(name, pid)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m, err := SampleProcess(ctx, name, pid)
			if err != nil {
				// the process most likely exited between ticks
				slog.Debug("process sample failed", "name", name, "pid", pid, "error", err)
				continue
			}
			ObserveProcess(m)
			if report != nil {
				report(m)
			}
		}
	}
}
