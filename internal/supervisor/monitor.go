package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yelban/kiroku-memory/internal/config"
	"github.com/yelban/kiroku-memory/internal/logging"
	"github.com/yelban/kiroku-memory/internal/service"
)

// Default monitor configuration values.
const (
	// DefaultMonitorInterval is how often the service is checked.
	DefaultMonitorInterval = 5 * time.Second

	// DefaultFailureThreshold is how many consecutive failed health checks
	// mark the service unresponsive.
	DefaultFailureThreshold = 3
)

// supervisedService is the slice of service.Service the monitor needs.
type supervisedService interface {
	IsRunning() bool
	AutoRestartEnabled() bool
	Status() service.Status
	MarkError(reason string)
}

// MonitorConfig configures the monitor loop.
type MonitorConfig struct {
	// Interval is how often the service is checked.
	Interval time.Duration

	// FailureThreshold is how many consecutive failed health checks mark
	// the service unresponsive.
	FailureThreshold int

	// Policy decides what happens when the process dies: report the death
	// or respawn the service.
	Policy string

	// Check probes the service health endpoint once. Required.
	Check func(ctx context.Context) bool

	// Recover restarts the service. Required when Policy is respawn.
	Recover func() error
}

// DefaultMonitorConfig returns the default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:         DefaultMonitorInterval,
		FailureThreshold: DefaultFailureThreshold,
		Policy:           config.PolicyReport,
	}
}

// Monitor periodically verifies that the supervised process is alive and
// its health endpoint responds. Checks are skipped entirely while the
// operator intent is stopped, so a deliberate stop never raises an error.
type Monitor struct {
	svc       supervisedService
	check     func(ctx context.Context) bool
	recover   func() error
	interval  time.Duration
	threshold int
	policy    string

	mu sync.Mutex
	// +checklocks:mu
	failures int

	// +checklocks:mu
	stopCh chan struct{}
	// +checklocks:mu
	doneCh chan struct{}
}

// NewMonitor creates a monitor for the given service.
func NewMonitor(svc supervisedService, cfg MonitorConfig) *Monitor {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultMonitorInterval
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Policy == "" {
		cfg.Policy = config.PolicyReport
	}

	return &Monitor{
		svc:       svc,
		check:     cfg.Check,
		recover:   cfg.Recover,
		interval:  cfg.Interval,
		threshold: cfg.FailureThreshold,
		policy:    cfg.Policy,
	}
}

// Start begins the monitoring loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check if already running by seeing if stopCh is open
	if m.stopCh != nil {
		select {
		case <-m.stopCh:
			// Channel is closed, was stopped - OK to restart
		default:
			// Channel is open, still running
			return
		}
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.run(m.stopCh, m.doneCh)
}

// Stop signals the monitor to stop and waits for the loop to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.mu.Unlock()

	if stopCh == nil {
		return
	}

	// Close stopCh if not already closed
	select {
	case <-stopCh:
		// Already closed
	default:
		close(stopCh)
	}

	if doneCh != nil {
		<-doneCh
	}
}

// run is the main monitoring loop.
func (m *Monitor) run(stopCh, doneCh chan struct{}) {
	defer logging.LogPanic("monitor", nil)
	defer close(doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick runs one monitoring pass.
func (m *Monitor) tick() {
	// The operator stopped the service on purpose: nothing to watch.
	if !m.svc.AutoRestartEnabled() {
		return
	}

	phase := m.svc.Status().Phase
	if phase == service.PhaseStarting || phase == service.PhaseRestarting {
		// Startup orchestration owns the health gate.
		return
	}

	if !m.svc.IsRunning() {
		m.handleDeadProcess(phase)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), service.ProbeRequestTimeout)
	healthy := m.check(ctx)
	cancel()

	if healthy {
		// A passing probe resets the failure streak but never clears an
		// Error phase. Only a restart moves the service out of Error.
		m.mu.Lock()
		m.failures = 0
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.failures++
	failures := m.failures
	m.mu.Unlock()

	slog.Warn("service health check failed", "consecutive_failures", failures, "threshold", m.threshold)

	// The counter keeps climbing past the threshold. The phase check makes
	// the transition edge-triggered; only a successful check resets it.
	if failures >= m.threshold && phase != service.PhaseError {
		m.svc.MarkError(service.ReasonUnresponsive)
	}
}

// handleDeadProcess reacts to the supervised process dying while the
// operator intent is still running.
func (m *Monitor) handleDeadProcess(phase service.Phase) {
	if phase != service.PhaseError {
		slog.Error("service process died unexpectedly")
		m.svc.MarkError(service.ReasonStopped)
	}

	if m.policy != config.PolicyRespawn || m.recover == nil {
		return
	}

	slog.Info("respawning service", "policy", m.policy)
	if err := m.recover(); err != nil {
		slog.Error("service respawn failed", "error", err)
		return
	}

	m.mu.Lock()
	m.failures = 0
	m.mu.Unlock()
}

// Failures returns the current consecutive failure count.
func (m *Monitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}
