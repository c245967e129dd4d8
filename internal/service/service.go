package service

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yelban/kiroku-memory/internal/config"
)

// Timing constants for the restart sequence.
const (
	// RestartGrace is the pause between a confirmed stop and the next
	// spawn during a restart. Bounds rapid respawn thrashing.
	RestartGrace = 500 * time.Millisecond

	// TerminateGrace is how long a process gets to exit on SIGTERM
	// before escalating to SIGKILL.
	TerminateGrace = 3 * time.Second
)

// restartGuard is a single-acquire flag: at most one restart sequence may
// hold it. Acquisition is try-only so a second restart is rejected rather
// than queued.
type restartGuard struct {
	held atomic.Bool
}

func (g *restartGuard) tryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

func (g *restartGuard) release() {
	g.held.Store(false)
}

func (g *restartGuard) inProgress() bool {
	return g.held.Load()
}

// Service supervises exactly one backend service process. It owns the
// process handle and the status cell; all mutation goes through its
// methods. Health gating (marking Running after a successful probe) is
// the caller's job via MarkRunning/MarkError.
type Service struct {
	mu sync.Mutex
	// +checklocks:mu
	proc *Process

	statusMu sync.RWMutex
	// +checklocks:statusMu
	status Status

	// autoRestart reflects operator intent: true unless an explicit stop
	// was requested. Gates whether the monitor may attempt recovery.
	autoRestart atomic.Bool

	restart restartGuard
}

// New creates a Service with no owned process, in the Stopped phase.
func New() *Service {
	return &Service{
		status: Status{Phase: PhaseStopped},
	}
}

// Start spawns the service process. Any process still owned is fully
// terminated first so at most one child exists at any instant. On spawn
// failure the status becomes Error and the *SpawnError is returned.
func (s *Service) Start(spec *config.LaunchSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		if err := s.proc.Terminate(TerminateGrace); err != nil {
			slog.Warn("terminate stale service process failed", "error", err)
		}
		s.proc = nil
	}

	s.autoRestart.Store(true)
	s.setStatus(Status{Phase: PhaseStarting})

	proc, err := Spawn(spec)
	if err != nil {
		slog.Error("service spawn failed", "command", spec.Command, "error", err)
		s.setStatus(Status{Phase: PhaseError, Reason: err.Error()})
		return err
	}

	s.proc = proc
	s.setStatus(Status{
		Phase:     PhaseStarting,
		PID:       proc.PID(),
		StartedAt: time.Now(),
	})

	slog.Info("service process started", "command", spec.Command, "pid", proc.PID())
	return nil
}

// Stop terminates the owned process and blocks until the OS confirms
// exit. Idempotent: with no owned process it is a no-op. Disables the
// auto-restart intent and always ends in the Stopped phase; kill/wait
// failures are logged, never returned.
func (s *Service) Stop() error {
	s.autoRestart.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		if err := s.proc.Terminate(TerminateGrace); err != nil {
			slog.Error("terminate service process failed", "pid", s.proc.PID(), "error", err)
		}
		s.proc = nil
	}

	s.setStatus(Status{Phase: PhaseStopped})
	slog.Info("service stopped")
	return nil
}

// Restart performs stop, a short grace pause, then start. Only one
// restart sequence may run at a time; concurrent callers get
// ErrRestartInProgress immediately. The stop is confirmed (process exit
// observed) before the new process is spawned. The Restarting phase is
// held across the whole sequence; callers never observe a transient
// Stopped or Starting.
func (s *Service) Restart(spec *config.LaunchSpec) error {
	if !s.restart.tryAcquire() {
		return ErrRestartInProgress
	}
	defer s.restart.release()

	slog.Info("restarting service")
	s.setStatus(Status{Phase: PhaseRestarting})

	if err := s.Stop(); err != nil {
		return err
	}

	time.Sleep(RestartGrace)

	return s.Start(spec)
}

// MarkRunning records that a health probe confirmed the service. It does
// not touch the process handle.
func (s *Service) MarkRunning() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Phase = PhaseRunning
	s.status.Reason = ""
}

// MarkError records a failure reason. It does not touch the process handle.
func (s *Service) MarkError(reason string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Phase = PhaseError
	s.status.Reason = reason
}

// IsRunning reports whether the owned process is alive at the OS level.
// Says nothing about health. Returns false when no process is owned.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil && s.proc.Alive()
}

// PID returns the owned process ID, or 0 when no process is owned.
func (s *Service) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.PID()
}

// AutoRestartEnabled reports the operator intent flag.
func (s *Service) AutoRestartEnabled() bool {
	return s.autoRestart.Load()
}

// Status returns a snapshot copy of the current state. Never blocks on I/O.
func (s *Service) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Service) setStatus(st Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	// While a restart sequence holds the guard, the intermediate Stopped
	// and Starting phases stay hidden from status readers. Error still
	// surfaces so a failed restart is visible.
	if s.restart.inProgress() && st.Phase != PhaseError {
		st.Phase = PhaseRestarting
	}
	s.status = st
}
