package service

import (
	"errors"
	"testing"
	"time"

	"github.com/yelban/kiroku-memory/internal/config"
	"github.com/yelban/kiroku-memory/internal/paths"
)

// sleepSpec returns a launch spec for a process that sleeps until killed.
func sleepSpec() *config.LaunchSpec {
	return &config.LaunchSpec{
		Command: "/bin/sh",
		Args:    []string{"-c", "sleep 60"},
	}
}

func TestSpawnMissingExecutable(t *testing.T) {
	t.Setenv(paths.EnvKirokuDir, t.TempDir())

	_, err := Spawn(&config.LaunchSpec{Command: "/nonexistent/memoryd"})
	if err == nil {
		t.Fatal("expected spawn error for missing executable")
	}

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected *SpawnError, got %T: %v", err, err)
	}
	if spawnErr.Path != "/nonexistent/memoryd" {
		t.Errorf("SpawnError.Path = %q, want %q", spawnErr.Path, "/nonexistent/memoryd")
	}
}

func TestSpawnAndTerminate(t *testing.T) {
	t.Setenv(paths.EnvKirokuDir, t.TempDir())

	p, err := Spawn(sleepSpec())
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	if !p.Alive() {
		t.Fatal("expected process to be alive after spawn")
	}
	if p.PID() <= 0 {
		t.Errorf("PID() = %d, want positive", p.PID())
	}

	if err := p.Terminate(time.Second); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if p.Alive() {
		t.Error("expected process to be dead after Terminate")
	}

	// Terminate is a no-op once the process has exited.
	if err := p.Terminate(time.Second); err != nil {
		t.Errorf("second Terminate() error = %v", err)
	}
}

func TestTerminateEscalatesToKill(t *testing.T) {
	t.Setenv(paths.EnvKirokuDir, t.TempDir())

	// Ignored signal dispositions survive exec, so the sleep ignores SIGTERM.
	p, err := Spawn(&config.LaunchSpec{
		Command: "/bin/sh",
		Args:    []string{"-c", `trap "" TERM; exec sleep 60`},
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	if err := p.Terminate(100 * time.Millisecond); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if p.Alive() {
		t.Error("expected process to be killed after grace period")
	}
}

func TestExitIsObserved(t *testing.T) {
	t.Setenv(paths.EnvKirokuDir, t.TempDir())

	p, err := Spawn(&config.LaunchSpec{
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process exit was not observed")
	}

	if p.Alive() {
		t.Error("expected Alive() to be false after exit")
	}
	if p.ExitErr() == nil {
		t.Error("expected ExitErr() to report the non-zero exit")
	}
}

func TestSpawnEnvironment(t *testing.T) {
	t.Setenv(paths.EnvKirokuDir, t.TempDir())
	t.Setenv("KIROKU_TEST_FORWARD", "forwarded")

	spec := &config.LaunchSpec{
		Command:        "/bin/sh",
		Args:           []string{"-c", `[ "$BACKEND" = surrealdb ] && [ "$KIROKU_TEST_FORWARD" = forwarded ]`},
		Env:            map[string]string{"BACKEND": "surrealdb"},
		EnvPassthrough: []string{"KIROKU_TEST_FORWARD"},
	}

	p, err := Spawn(spec)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	if p.ExitErr() != nil {
		t.Errorf("expected clean exit with env present, got %v", p.ExitErr())
	}
}
