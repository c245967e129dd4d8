// Package service owns the supervised backend process: spawning it,
// tracking its lifecycle state, and probing its health endpoints.
package service

import "time"

// Phase represents the current lifecycle phase of the supervised service.
type Phase string

const (
	// PhaseStarting indicates a spawn was issued but health is not yet confirmed.
	PhaseStarting Phase = "starting"

	// PhaseRunning indicates the last health probe succeeded.
	PhaseRunning Phase = "running"

	// PhaseRestarting indicates a stop-then-start cycle is in progress.
	PhaseRestarting Phase = "restarting"

	// PhaseStopped indicates the service was intentionally terminated.
	PhaseStopped Phase = "stopped"

	// PhaseError indicates a spawn failure, health timeout, crash, or hang.
	// The Reason field of Status carries the detail.
	PhaseError Phase = "error"
)

// Status is a snapshot of the service state. Returned by value so callers
// never observe a partially updated state cell.
type Status struct {
	Phase     Phase     `json:"phase"`
	Reason    string    `json:"reason,omitempty"` // Set when Phase is PhaseError
	PID       int       `json:"pid,omitempty"`    // OS process ID, 0 when no process is owned
	StartedAt time.Time `json:"started_at,omitzero"`
}
