// Package logging configures the process-wide slog logger for the
// kiroku daemon. The daemon logs JSON to a file so that log lines
// never interleave with CLI output on the terminal.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultLogPath returns the default log file path (~/.kiroku/kiroku.log).
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/kiroku.log"
	}
	return filepath.Join(home, ".kiroku", "kiroku.log")
}

// ParseLevel maps a config level string ("debug", "info", "warn",
// "error", case-insensitive) to a slog.Level. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup points the default slog logger at a JSON log file, appending.
// An empty path means DefaultLogPath(). The returned cleanup closes
// the file.
func Setup(path string, level slog.Level) (cleanup func(), err error) {
	f, err := openLogFile(path)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: level,
	})))

	return func() { f.Close() }, nil
}

// SetupMulti is Setup plus a second writer, for foreground runs where
// the operator wants the log on stderr as well.
func SetupMulti(path string, extra io.Writer, level slog.Level) (cleanup func(), err error) {
	f, err := openLogFile(path)
	if err != nil {
		return nil, err
	}

	w := io.MultiWriter(f, extra)
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})))

	return func() { f.Close() }, nil
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		path = DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// SetupTest routes the default logger to w in text format at debug
// level. Tests use it to capture or discard daemon log output.
func SetupTest(w io.Writer) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
}

// LogPanic logs a recovered panic with its stack. Use in a defer at
// the top of long-lived goroutines:
//
//	defer logging.LogPanic("monitor", nil)
//
// onRecover, when non-nil, runs after the panic is logged.
func LogPanic(name string, onRecover func(any)) {
	if r := recover(); r != nil {
		slog.Error("panic recovered",
			"goroutine", name,
			"panic", r,
			"stack", string(captureStack()),
		)
		if onRecover != nil {
			onRecover(r)
		}
	}
}

func captureStack() []byte {
	buf := make([]byte, 4096)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, len(buf)*2)
	}
}
