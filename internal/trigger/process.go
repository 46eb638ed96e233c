package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// PID is alive while a process with the given pid exists.
type PID int

func (p PID) Alive() bool { return pidAlive(int(p)) }

func (p PID) String() string { return fmt.Sprintf("pid:%d", int(p)) }

// PIDFile is alive while the process named by a pidfile exists. The file is
// re-read on every check, so a missing or unreadable file reads as not alive.
// The first line holds the pid; a later line may hold {"start_unix": N} to
// guard against pid reuse.
type PIDFile string

type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

func (f PIDFile) Alive() bool {
	pid, start, err := readPIDFile(string(f))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("pidfile trigger read failed", "path", string(f), "error", err)
		}
		return false
	}
	if start > 0 {
		if cur := procStartUnix(pid); cur > 0 && cur != start {
			return false // pid reused; not our process
		}
	}
	return pidAlive(pid)
}

func (f PIDFile) String() string { return "pidfile:" + string(f) }

func readPIDFile(path string) (int, int64, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, 0, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	for _, ln := range lines[1:] {
		var m pidMeta
		if err := json.Unmarshal([]byte(strings.TrimSpace(ln)), &m); err == nil && m.StartUnix > 0 {
			return pid, m.StartUnix, nil
		}
	}
	return pid, 0, nil
}

// procStartUnix returns the process start time in Unix seconds, or 0 when
// unavailable.
func procStartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	p, err := gopsproc.NewProcessWithContext(context.Background(), int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTimeWithContext(context.Background())
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}
