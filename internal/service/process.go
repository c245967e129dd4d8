package service

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/yelban/kiroku-memory/internal/config"
	"github.com/yelban/kiroku-memory/internal/logging"
	"github.com/yelban/kiroku-memory/internal/paths"
)

// killWait bounds how long Terminate waits for exit confirmation after
// SIGKILL. A process that survives SIGKILL is unreapable (kernel-stuck);
// waiting longer would hang shutdown.
const killWait = 5 * time.Second

// Process owns exactly one live OS process. It reaps the child in a
// background goroutine so liveness checks never block.
type Process struct {
	cmd *exec.Cmd
	pid int

	exited chan struct{} // Closed when the wait goroutine reaps the child

	mu sync.Mutex
	// +checklocks:mu
	waitErr error
}

// Spawn starts the service process described by spec. The child's stdout
// and stderr are appended to the service log file. Returns a *SpawnError
// if the executable is missing or the OS refuses to create the process.
func Spawn(spec *config.LaunchSpec) (*Process, error) {
	if _, err := os.Stat(spec.Command); err != nil {
		return nil, &SpawnError{Path: spec.Command, Err: err}
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = spec.Environ()

	out := serviceLogWriter()
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		if c, ok := out.(io.Closer); ok {
			c.Close()
		}
		return nil, &SpawnError{Path: spec.Command, Err: err}
	}

	p := &Process{
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		exited: make(chan struct{}),
	}

	go func() {
		defer logging.LogPanic("process-wait", nil)
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.exited)
		if c, ok := out.(io.Closer); ok {
			c.Close()
		}
		slog.Info("service process exited", "pid", p.pid, "error", err)
	}()

	return p, nil
}

// serviceLogWriter opens the service log file for the child's output.
// Falls back to discarding output if the file cannot be opened.
func serviceLogWriter() io.Writer {
	path, err := paths.ServiceLogPath()
	if err != nil {
		return io.Discard
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		slog.Warn("create service log directory failed", "error", err)
		return io.Discard
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		slog.Warn("open service log failed", "path", path, "error", err)
		return io.Discard
	}
	return f
}

// PID returns the OS process ID.
func (p *Process) PID() int {
	return p.pid
}

// Alive reports whether the process has not yet exited. Non-blocking.
func (p *Process) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.exited
}

// ExitErr returns the error from reaping the process, or nil if it exited
// cleanly or has not exited yet.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Terminate stops the process and blocks until the OS confirms exit.
// SIGTERM first, escalating to SIGKILL after the grace period. Returns
// nil if the process already exited.
func (p *Process) Terminate(grace time.Duration) error {
	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Raced with exit, or the process is already gone.
		slog.Debug("signal service process failed", "pid", p.pid, "error", err)
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(grace):
	}

	slog.Warn("service process ignored SIGTERM, killing", "pid", p.pid)
	if err := p.cmd.Process.Kill(); err != nil {
		slog.Debug("kill service process failed", "pid", p.pid, "error", err)
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("process %d did not exit after SIGKILL", p.pid)
	}
}
