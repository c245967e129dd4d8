package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yelban/kiroku-memory/internal/config"
	"github.com/yelban/kiroku-memory/internal/service"
)

// fakeService is a scriptable stand-in for service.Service.
type fakeService struct {
	mu          sync.Mutex
	running     bool
	autoRestart bool
	status      service.Status
	errReasons  []string
	runMarks    int
}

func (f *fakeService) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeService) AutoRestartEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoRestart
}

func (f *fakeService) Status() service.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeService) MarkRunning() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runMarks++
	f.status = service.Status{Phase: service.PhaseRunning}
}

func (f *fakeService) MarkError(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errReasons = append(f.errReasons, reason)
	f.status = service.Status{Phase: service.PhaseError, Reason: reason}
}

func (f *fakeService) reasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errReasons...)
}

// scriptedCheck returns health check results in order, repeating the last
// one when the script runs out.
func scriptedCheck(results ...bool) func(context.Context) bool {
	var mu sync.Mutex
	i := 0
	return func(context.Context) bool {
		mu.Lock()
		defer mu.Unlock()
		r := results[i]
		if i < len(results)-1 {
			i++
		}
		return r
	}
}

func TestMonitorSkipsWhenIntentDisabled(t *testing.T) {
	svc := &fakeService{
		running:     false,
		autoRestart: false,
		status:      service.Status{Phase: service.PhaseStopped},
	}

	checked := false
	m := NewMonitor(svc, MonitorConfig{
		Check: func(context.Context) bool {
			checked = true
			return false
		},
	})

	m.tick()

	if checked {
		t.Error("health check must not run while auto-restart is disabled")
	}
	if len(svc.reasons()) != 0 {
		t.Errorf("unexpected error marks: %v", svc.reasons())
	}
}

func TestMonitorSkipsDuringStartup(t *testing.T) {
	for _, phase := range []service.Phase{service.PhaseStarting, service.PhaseRestarting} {
		svc := &fakeService{
			running:     true,
			autoRestart: true,
			status:      service.Status{Phase: phase},
		}

		checked := false
		m := NewMonitor(svc, MonitorConfig{
			Check: func(context.Context) bool {
				checked = true
				return false
			},
		})

		m.tick()

		if checked {
			t.Errorf("health check must not run during %s", phase)
		}
	}
}

func TestMonitorDeadProcessReported(t *testing.T) {
	svc := &fakeService{
		running:     false,
		autoRestart: true,
		status:      service.Status{Phase: service.PhaseRunning},
	}

	m := NewMonitor(svc, MonitorConfig{
		Check: scriptedCheck(true),
	})

	m.tick()

	reasons := svc.reasons()
	if len(reasons) != 1 || reasons[0] != service.ReasonStopped {
		t.Fatalf("reasons = %v, want one %q", reasons, service.ReasonStopped)
	}

	// Already in the error phase: the death is not reported again.
	m.tick()
	if got := len(svc.reasons()); got != 1 {
		t.Errorf("got %d error marks after second tick, want 1", got)
	}
}

func TestMonitorDeadProcessRespawned(t *testing.T) {
	svc := &fakeService{
		running:     false,
		autoRestart: true,
		status:      service.Status{Phase: service.PhaseRunning},
	}

	recovered := 0
	m := NewMonitor(svc, MonitorConfig{
		Policy: config.PolicyRespawn,
		Check:  scriptedCheck(true),
		Recover: func() error {
			recovered++
			svc.mu.Lock()
			svc.running = true
			svc.mu.Unlock()
			svc.MarkRunning()
			return nil
		},
	})

	m.tick()

	if recovered != 1 {
		t.Errorf("recover called %d times, want 1", recovered)
	}
	if svc.Status().Phase != service.PhaseRunning {
		t.Errorf("phase = %v, want %v after respawn", svc.Status().Phase, service.PhaseRunning)
	}
	if m.Failures() != 0 {
		t.Errorf("failure count = %d, want 0 after respawn", m.Failures())
	}
}

func TestMonitorUnresponsiveThreshold(t *testing.T) {
	svc := &fakeService{
		running:     true,
		autoRestart: true,
		status:      service.Status{Phase: service.PhaseRunning},
	}

	m := NewMonitor(svc, MonitorConfig{
		FailureThreshold: 3,
		Check:            scriptedCheck(false),
	})

	// Two failures: below the threshold, no error yet.
	m.tick()
	m.tick()
	if len(svc.reasons()) != 0 {
		t.Fatalf("error marked before threshold: %v", svc.reasons())
	}

	// Third consecutive failure crosses the threshold.
	m.tick()
	reasons := svc.reasons()
	if len(reasons) != 1 || reasons[0] != service.ReasonUnresponsive {
		t.Fatalf("reasons = %v, want one %q", reasons, service.ReasonUnresponsive)
	}

	// Further failures keep counting but do not re-mark the error.
	m.tick()
	if got := len(svc.reasons()); got != 1 {
		t.Errorf("got %d error marks, want 1", got)
	}
	if m.Failures() < 4 {
		t.Errorf("failure count = %d, want it to keep climbing", m.Failures())
	}
}

func TestMonitorFailureCounterInterruptedBySuccess(t *testing.T) {
	svc := &fakeService{
		running:     true,
		autoRestart: true,
		status:      service.Status{Phase: service.PhaseRunning},
	}

	// Two failures, a success, then two more failures: the success resets
	// the streak, so the threshold is never crossed.
	m := NewMonitor(svc, MonitorConfig{
		FailureThreshold: 3,
		Check:            scriptedCheck(false, false, true, false, false),
	})

	for i := 0; i < 5; i++ {
		m.tick()
	}

	if len(svc.reasons()) != 0 {
		t.Errorf("error marked despite interrupted failure streak: %v", svc.reasons())
	}
	if m.Failures() != 2 {
		t.Errorf("failure count = %d, want 2", m.Failures())
	}
}

func TestMonitorErrorStickyOnProbeSuccess(t *testing.T) {
	svc := &fakeService{
		running:     true,
		autoRestart: true,
		status:      service.Status{Phase: service.PhaseError, Reason: service.ReasonUnresponsive},
	}

	// A passing probe while the phase is Error resets the failure streak
	// but must not move the service back to Running; only a restart does.
	m := NewMonitor(svc, MonitorConfig{
		Check: scriptedCheck(true),
		Recover: func() error {
			t.Error("recover must not run on a passing probe")
			return nil
		},
	})

	m.tick()

	st := svc.Status()
	if st.Phase != service.PhaseError || st.Reason != service.ReasonUnresponsive {
		t.Errorf("status = %+v, want error to stay sticky", st)
	}
	if svc.runMarks != 0 {
		t.Errorf("MarkRunning called %d times, want 0", svc.runMarks)
	}
	if m.Failures() != 0 {
		t.Errorf("failure count = %d, want 0 after passing probe", m.Failures())
	}
}

func TestMonitorThresholdAfterInterruptedStreak(t *testing.T) {
	svc := &fakeService{
		running:     true,
		autoRestart: true,
		status:      service.Status{Phase: service.PhaseRunning},
	}

	// Two failures, a success, then three failures: the reset streak
	// crosses the threshold exactly on the sixth probe.
	m := NewMonitor(svc, MonitorConfig{
		FailureThreshold: 3,
		Check:            scriptedCheck(false, false, true, false, false, false),
	})

	for i := 0; i < 5; i++ {
		m.tick()
	}
	if len(svc.reasons()) != 0 {
		t.Fatalf("error marked before the sixth probe: %v", svc.reasons())
	}

	m.tick()
	reasons := svc.reasons()
	if len(reasons) != 1 || reasons[0] != service.ReasonUnresponsive {
		t.Fatalf("reasons = %v, want one %q on the sixth probe", reasons, service.ReasonUnresponsive)
	}
}

func TestMonitorStartStop(t *testing.T) {
	svc := &fakeService{
		running:     true,
		autoRestart: true,
		status:      service.Status{Phase: service.PhaseRunning},
	}

	m := NewMonitor(svc, MonitorConfig{
		Interval: 10 * time.Millisecond,
		Check:    scriptedCheck(true),
	})

	m.Start()
	m.Start() // second start is a no-op

	time.Sleep(30 * time.Millisecond)

	m.Stop()
	m.Stop() // second stop is a no-op
}
