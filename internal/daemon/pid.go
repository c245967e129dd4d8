package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/yelban/kiroku-memory/internal/paths"
)

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return paths.PIDPath()
}

// WritePID records the current process ID at path, creating parent
// directories as needed. An empty path means the default location.
func WritePID(path string) error {
	if path == "" {
		path = DefaultPIDPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	return nil
}

// ReadPID parses the process ID stored at path.
func ReadPID(path string) (int, error) {
	if path == "" {
		path = DefaultPIDPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid: %w", err)
	}

	return pid, nil
}

// RemovePID deletes the PID file. A missing file is not an error.
func RemovePID(path string) error {
	if path == "" {
		path = DefaultPIDPath()
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// IsProcessRunning reports whether a process with the given PID exists,
// using signal 0 as the liveness check.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	if err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return false
		}
		// EPERM: the process exists but belongs to someone else.
		return errors.Is(err, syscall.EPERM)
	}

	return true
}

// IsDaemonRunning reads the PID file and verifies the recorded process
// is still alive. A stale or missing file reports (false, 0).
func IsDaemonRunning(pidPath string) (bool, int) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return false, 0
	}

	if IsProcessRunning(pid) {
		return true, pid
	}

	return false, 0
}

// CleanStalePID removes the PID file when its process is gone.
// Returns true if a stale file was removed.
func CleanStalePID(pidPath string) bool {
	if running, _ := IsDaemonRunning(pidPath); !running {
		_ = RemovePID(pidPath)
		return true
	}
	return false
}
