// Package paths provides a single source of truth for kiroku file paths.
// All path helpers honor environment variable overrides for isolated testing.
//
// Path resolution precedence:
//  1. Specific env vars (KIROKU_SOCKET_PATH, KIROKU_PID_PATH) take highest priority
//  2. KIROKU_DIR env var sets the base directory (derives socket/pid/config/logs)
//  3. Default behavior (~/.kiroku, ~/.config/kiroku) when no env vars are set
package paths

import (
	"os"
	"path/filepath"
)

// Environment variable names for path overrides.
const (
	// EnvKirokuDir is the base directory override (e.g., /tmp/kiroku-test).
	// When set, socket, PID, config, and log paths derive from this directory.
	EnvKirokuDir = "KIROKU_DIR"

	// EnvSocketPath overrides the socket path directly.
	EnvSocketPath = "KIROKU_SOCKET_PATH"

	// EnvPIDPath overrides the PID file path directly.
	EnvPIDPath = "KIROKU_PID_PATH"

	// EnvConfigPath overrides the config file path directly.
	EnvConfigPath = "KIROKU_CONFIG_PATH"
)

// BaseDir returns the kiroku base directory (~/.kiroku by default).
// Honors KIROKU_DIR environment variable.
func BaseDir() (string, error) {
	if dir := os.Getenv(EnvKirokuDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kiroku"), nil
}

// ConfigDir returns the kiroku config directory (~/.config/kiroku by default).
// When KIROKU_DIR is set, returns KIROKU_DIR/config instead.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvKirokuDir); dir != "" {
		return filepath.Join(dir, "config"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "kiroku"), nil
}

// ConfigPath returns the path to the daemon config file.
// Precedence: KIROKU_CONFIG_PATH > KIROKU_DIR/config/config.toml > ~/.config/kiroku/config.toml
func ConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LaunchSpecPath returns the path to the service launch spec file.
// (~/.config/kiroku/service.yaml by default, or KIROKU_DIR/config/service.yaml).
func LaunchSpecPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "service.yaml"), nil
}

// SocketPath returns the daemon socket path.
// Precedence: KIROKU_SOCKET_PATH > KIROKU_DIR/kiroku.sock > ~/.kiroku/kiroku.sock
func SocketPath() string {
	if path := os.Getenv(EnvSocketPath); path != "" {
		return path
	}
	base, err := BaseDir()
	if err != nil {
		return "/tmp/kiroku.sock"
	}
	return filepath.Join(base, "kiroku.sock")
}

// PIDPath returns the daemon PID file path.
// Precedence: KIROKU_PID_PATH > KIROKU_DIR/kiroku.pid > ~/.kiroku/kiroku.pid
func PIDPath() string {
	if path := os.Getenv(EnvPIDPath); path != "" {
		return path
	}
	base, err := BaseDir()
	if err != nil {
		return "/tmp/kiroku.pid"
	}
	return filepath.Join(base, "kiroku.pid")
}

// LogPath returns the daemon log file path (~/.kiroku/kiroku.log by default).
// When KIROKU_DIR is set, returns KIROKU_DIR/kiroku.log.
func LogPath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "kiroku.log"), nil
}

// ServiceLogPath returns the log file that captures the supervised
// service's stdout and stderr (~/.kiroku/service.log by default).
func ServiceLogPath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "service.log"), nil
}
