// Package process starts detached worker processes for the watchdog.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Handle identifies a started worker.
type Handle struct {
	JobID   string
	PID     int
	LogPath string
}

// Spawner starts a worker for a job and returns without waiting for it.
type Spawner interface {
	Start(ctx context.Context, jobID string) (*Handle, error)
}

// ExecSpawner runs "<Executable> <Args...> worker <jobID>" in its own
// session with output appended to <LogDir>/<jobID>.log.
type ExecSpawner struct {
	Executable string
	Args       []string
	LogDir     string
	Env        []string
}

// NewExecSpawner returns a spawner that re-executes the running binary.
func NewExecSpawner(logDir string) (*ExecSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, eris.Wrap(err, "process: locate executable")
	}
	return &ExecSpawner{Executable: exe, LogDir: logDir}, nil
}

// Start implements Spawner. The child is released immediately; it outlives
// the caller.
func (s *ExecSpawner) Start(_ context.Context, jobID string) (*Handle, error) {
	if jobID == "" {
		return nil, eris.New("process: empty job id")
	}
	if err := os.MkdirAll(s.LogDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "process: create log dir %s", s.LogDir)
	}
	logPath := filepath.Join(s.LogDir, jobID+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "process: open log %s", logPath)
	}
	defer logFile.Close()

	args := append(append([]string(nil), s.Args...), "worker", jobID)
	// The child must not die with the watchdog's context.
	cmd := exec.Command(s.Executable, args...) //nolint:gosec
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), s.Env...)
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, eris.Wrapf(err, "process: start worker for %s", jobID)
	}
	h := &Handle{JobID: jobID, PID: cmd.Process.Pid, LogPath: logPath}
	if err := cmd.Process.Release(); err != nil {
		zap.L().Warn("process: release worker", zap.String("job_id", jobID), zap.Error(err))
	}

	zap.L().Info("process: worker started",
		zap.String("job_id", jobID),
		zap.Int("pid", h.PID),
		zap.String("log", logPath),
	)
	return h, nil
}

func (h *Handle) String() string {
	return fmt.Sprintf("worker %s (pid %d)", h.JobID, h.PID)
}
