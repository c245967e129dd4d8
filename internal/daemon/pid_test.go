package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/yelban/kiroku-memory/internal/paths"
)

func TestDefaultPIDPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(paths.EnvKirokuDir, tmpDir)

	want := filepath.Join(tmpDir, "kiroku.pid")
	if got := DefaultPIDPath(); got != want {
		t.Errorf("DefaultPIDPath() = %s, want %s", got, want)
	}
}

func TestPIDRoundTrip(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	if err := WritePID(pidPath); err != nil {
		t.Fatalf("WritePID: %v", err)
	}

	pid, err := ReadPID(pidPath)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID() = %d, want %d", pid, os.Getpid())
	}

	if err := RemovePID(pidPath); err != nil {
		t.Fatalf("RemovePID: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file still exists after RemovePID")
	}
}

func TestWritePIDCreatesDirectory(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.pid")

	if err := WritePID(pidPath); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		t.Error("PID file was not created")
	}
}

func TestReadPIDMissingFile(t *testing.T) {
	_, err := ReadPID("/nonexistent/path/test.pid")
	if !os.IsNotExist(err) {
		t.Errorf("expected IsNotExist error, got %v", err)
	}
}

func TestReadPIDGarbage(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	if err := os.WriteFile(pidPath, []byte("not-a-number\n"), 0600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := ReadPID(pidPath); err == nil {
		t.Error("expected error for unparsable PID content")
	}
}

func TestRemovePIDMissingFile(t *testing.T) {
	if err := RemovePID("/nonexistent/path/test.pid"); err != nil {
		t.Errorf("RemovePID on a missing file: %v", err)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !IsProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if IsProcessRunning(0) || IsProcessRunning(-1) {
		t.Error("non-positive PIDs must not report running")
	}
	if IsProcessRunning(999999999) {
		t.Skip("unexpectedly high PID exists")
	}
}

func TestIsDaemonRunning(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	t.Run("no pid file", func(t *testing.T) {
		running, pid := IsDaemonRunning(pidPath)
		if running || pid != 0 {
			t.Errorf("IsDaemonRunning = (%v, %d), want (false, 0)", running, pid)
		}
	})

	t.Run("live process", func(t *testing.T) {
		if err := WritePID(pidPath); err != nil {
			t.Fatalf("WritePID: %v", err)
		}

		running, pid := IsDaemonRunning(pidPath)
		if !running {
			t.Error("should report running with a valid PID file")
		}
		if pid != os.Getpid() {
			t.Errorf("pid = %d, want %d", pid, os.Getpid())
		}
	})

	t.Run("stale pid file", func(t *testing.T) {
		if err := os.WriteFile(pidPath, []byte(strconv.Itoa(999999999)+"\n"), 0600); err != nil {
			t.Fatalf("write file: %v", err)
		}

		running, pid := IsDaemonRunning(pidPath)
		if running {
			t.Skip("unexpectedly high PID exists")
		}
		if pid != 0 {
			t.Errorf("pid = %d, want 0 for a stale file", pid)
		}
	})
}

func TestCleanStalePID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	t.Run("removes stale file", func(t *testing.T) {
		if err := os.WriteFile(pidPath, []byte("999999999\n"), 0600); err != nil {
			t.Fatalf("write file: %v", err)
		}

		if !CleanStalePID(pidPath) {
			t.Error("expected stale PID to be cleaned")
		}
		if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
			t.Error("stale PID file should be removed")
		}
	})

	t.Run("keeps live process", func(t *testing.T) {
		if err := WritePID(pidPath); err != nil {
			t.Fatalf("WritePID: %v", err)
		}

		if CleanStalePID(pidPath) {
			t.Error("must not clean the PID of a live process")
		}
		if _, err := os.Stat(pidPath); os.IsNotExist(err) {
			t.Error("PID file of a live process should survive")
		}
	})
}
