package service

import (
	"errors"
	"fmt"
	"time"
)

// ErrRestartInProgress is returned when a restart is requested while
// another restart sequence holds the exclusive restart right. The caller
// is rejected, not queued.
var ErrRestartInProgress = errors.New("service: restart already in progress")

// Error reasons recorded in the status cell. The desktop shell surfaces
// these verbatim.
const (
	ReasonStopped      = "Service stopped"
	ReasonUnresponsive = "Service unresponsive"
)

// SpawnError indicates the service process could not be created: missing
// executable, permission denied, or OS resource exhaustion.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// HealthTimeoutError indicates the service process spawned but never
// answered a health probe within the deadline. The process may still be
// alive but stuck.
type HealthTimeoutError struct {
	Elapsed time.Duration
}

func (e *HealthTimeoutError) Error() string {
	return fmt.Sprintf("service not healthy after %s", e.Elapsed.Round(time.Millisecond))
}
