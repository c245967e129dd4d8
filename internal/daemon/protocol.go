// Package daemon provides the kiroku daemon server and IPC protocol.
package daemon

import "time"

// MessageType identifies the type of IPC message.
type MessageType string

const (
	// Server management
	MsgPing     MessageType = "ping"
	MsgShutdown MessageType = "shutdown"

	// Service control
	MsgServiceStart   MessageType = "service.start"
	MsgServiceStop    MessageType = "service.stop"
	MsgServiceRestart MessageType = "service.restart"

	// Observation
	MsgStatus MessageType = "status" // Get daemon/service status
	MsgHealth MessageType = "health" // Probe the service health endpoint once
	MsgStats  MessageType = "stats"  // Fetch the memory count

	// Shell streaming
	MsgAttach MessageType = "attach" // Subscribe to status notifications
	MsgDetach MessageType = "detach" // Unsubscribe from notifications
)

// Request is the envelope for all IPC requests.
type Request struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"`      // Optional request ID for correlation
	Payload any         `json:"payload,omitempty"` // Type-specific payload
}

// Response is the envelope for all IPC responses.
type Response struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"` // Correlates with request ID
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Payload any         `json:"payload,omitempty"` // Type-specific payload
}

// PingResponse is the payload for ping responses.
type PingResponse struct {
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	StartedAt time.Time `json:"started_at"`
}

// StatusResponse is the payload for status responses.
type StatusResponse struct {
	Daemon  DaemonStatus  `json:"daemon"`
	Service ServiceStatus `json:"service"`
}

// DaemonStatus contains daemon health info.
type DaemonStatus struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// ServiceStatus contains the supervised service's state.
type ServiceStatus struct {
	State       string    `json:"state"`               // starting, running, restarting, stopped, error
	Reason      string    `json:"reason,omitempty"`    // Set when state is error
	PID         int       `json:"pid,omitempty"`       // 0 when no process is owned
	StartedAt   time.Time `json:"started_at,omitzero"` // When the process was spawned
	AutoRestart bool      `json:"auto_restart"`        // Operator intent flag
	Label       string    `json:"label"`               // Tray label text, e.g. "Status: Running"
}

// HealthResponse is the payload for health responses.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// StatsResponse is the payload for stats responses.
// Total is nil when the count is unknown (service not running or the
// stats endpoint returned no data).
type StatsResponse struct {
	Total *uint64 `json:"total,omitempty"`
	Label string  `json:"label"` // Tray label text, e.g. "Memories: 42"
}

// StreamEvent is sent to attached clients when the service state changes.
type StreamEvent struct {
	Type      string  `json:"type"`                // "status", "ready", "error", "restarting", "stats"
	State     string  `json:"state,omitempty"`     // For status events
	Reason    string  `json:"reason,omitempty"`    // For error events
	Label     string  `json:"label,omitempty"`     // Tray label text
	Total     *uint64 `json:"total,omitempty"`     // For stats events, nil = unknown
	Timestamp string  `json:"timestamp,omitempty"` // RFC3339
}
