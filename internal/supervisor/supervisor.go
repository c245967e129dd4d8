// Package supervisor provides the daemon request handler and the service
// monitoring loop.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yelban/kiroku-memory/internal/config"
	"github.com/yelban/kiroku-memory/internal/daemon"
	"github.com/yelban/kiroku-memory/internal/publisher"
	"github.com/yelban/kiroku-memory/internal/service"
	"github.com/yelban/kiroku-memory/internal/version"
)

// Version is the supervisor/daemon version.
var Version = version.Version

// Supervisor handles IPC requests and orchestrates the memory service.
// It implements the daemon.Handler interface.
type Supervisor struct {
	cfg       *config.Config
	spec      *config.LaunchSpec
	svc       *service.Service
	probe     *service.Probe
	startedAt time.Time

	shutdownCh chan struct{} // Created at init, closed to signal shutdown
	shutdownMu sync.Mutex    // Protects closing shutdownCh exactly once

	mu sync.RWMutex
	// +checklocks:mu
	server *daemon.Server // Server reference for broadcasting status events
}

// New creates a new Supervisor for the given service.
func New(cfg *config.Config, spec *config.LaunchSpec, svc *service.Service, probe *service.Probe) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		spec:       spec,
		svc:        svc,
		probe:      probe,
		startedAt:  time.Now(),
		shutdownCh: make(chan struct{}),
	}
}

// SetServer sets the daemon server reference used for broadcasting.
func (s *Supervisor) SetServer(srv *daemon.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.server = srv
}

// BroadcastNotification forwards a publisher notification to all attached
// clients as a stream event. Registered as a publisher handler at startup.
func (s *Supervisor) BroadcastNotification(n publisher.Notification) {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv == nil {
		return
	}

	srv.Broadcast(&daemon.StreamEvent{
		Type:      string(n.Kind),
		State:     string(n.State),
		Reason:    n.Reason,
		Label:     n.Label,
		Total:     n.Total,
		Timestamp: n.Timestamp.Format(time.RFC3339),
	})
}

// Handle processes IPC requests and returns responses.
// Implements daemon.Handler.
func (s *Supervisor) Handle(ctx context.Context, req *daemon.Request) *daemon.Response {
	slog.Debug("supervisor handling request", "type", req.Type)
	switch req.Type {
	// Server management
	case daemon.MsgPing:
		return s.handlePing(ctx, req)
	case daemon.MsgShutdown:
		return s.handleShutdown(ctx, req)

	// Service control
	case daemon.MsgServiceStart:
		return s.handleServiceStart(ctx, req)
	case daemon.MsgServiceStop:
		return s.handleServiceStop(ctx, req)
	case daemon.MsgServiceRestart:
		return s.handleServiceRestart(ctx, req)

	// Observation
	case daemon.MsgStatus:
		return s.handleStatus(ctx, req)
	case daemon.MsgHealth:
		return s.handleHealth(ctx, req)
	case daemon.MsgStats:
		return s.handleStats(ctx, req)

	// Shell streaming
	case daemon.MsgAttach:
		return s.handleAttach(ctx, req)
	case daemon.MsgDetach:
		return s.handleDetach(ctx, req)

	default:
		return errorResponse(req, fmt.Sprintf("unknown message type: %s", req.Type))
	}
}

// ShutdownCh returns a channel that is closed when shutdown is requested.
func (s *Supervisor) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

// StartedAt returns when the supervisor was started.
func (s *Supervisor) StartedAt() time.Time {
	return s.startedAt
}

// StartService launches the service and waits for it to become healthy.
// The service is marked running once the health endpoint answers, or
// marked failed if the startup gate expires.
func (s *Supervisor) StartService() error {
	if err := s.svc.Start(s.spec); err != nil {
		return err
	}
	return s.waitHealthy()
}

// RestartService restarts the service and waits for it to become healthy.
// Returns service.ErrRestartInProgress if a restart is already in flight.
func (s *Supervisor) RestartService() error {
	if err := s.svc.Restart(s.spec); err != nil {
		return err
	}
	return s.waitHealthy()
}

// StopService stops the service. Always succeeds.
func (s *Supervisor) StopService() error {
	return s.svc.Stop()
}

// waitHealthy blocks until the health endpoint answers or the startup
// timeout expires, updating the service phase either way.
func (s *Supervisor) waitHealthy() error {
	health, err := s.probe.WaitUntilHealthy(context.Background(), s.cfg.Service.StartupTimeout.Std())
	if err != nil {
		slog.Error("service did not become healthy", "error", err)
		s.svc.MarkError(err.Error())
		return err
	}

	slog.Info("service is healthy", "status", health.Status, "version", health.Version)
	s.svc.MarkRunning()
	return nil
}

// handlePing responds to ping requests.
func (s *Supervisor) handlePing(ctx context.Context, req *daemon.Request) *daemon.Response {
	uptime := time.Since(s.startedAt)
	return successResponse(req, daemon.PingResponse{
		Version:   Version,
		Uptime:    uptime.Round(time.Second).String(),
		StartedAt: s.startedAt,
	})
}

// handleShutdown initiates daemon shutdown.
func (s *Supervisor) handleShutdown(ctx context.Context, req *daemon.Request) *daemon.Response {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	select {
	case <-s.shutdownCh:
		// Already shutting down
	default:
		close(s.shutdownCh)
	}

	return successResponse(req, nil)
}

// handleServiceStart starts the memory service.
func (s *Supervisor) handleServiceStart(ctx context.Context, req *daemon.Request) *daemon.Response {
	if err := s.StartService(); err != nil {
		return errorResponse(req, err.Error())
	}
	return successResponse(req, nil)
}

// handleServiceStop stops the memory service.
func (s *Supervisor) handleServiceStop(ctx context.Context, req *daemon.Request) *daemon.Response {
	if err := s.StopService(); err != nil {
		return errorResponse(req, err.Error())
	}
	return successResponse(req, nil)
}

// handleServiceRestart restarts the memory service.
// Concurrent restart requests are rejected, not queued.
func (s *Supervisor) handleServiceRestart(ctx context.Context, req *daemon.Request) *daemon.Response {
	if err := s.RestartService(); err != nil {
		return errorResponse(req, err.Error())
	}
	return successResponse(req, nil)
}

// handleStatus responds with daemon and service status.
func (s *Supervisor) handleStatus(ctx context.Context, req *daemon.Request) *daemon.Response {
	st := s.svc.Status()
	return successResponse(req, daemon.StatusResponse{
		Daemon: daemon.DaemonStatus{
			Running:   true,
			PID:       os.Getpid(),
			StartedAt: s.startedAt,
			Version:   Version,
		},
		Service: daemon.ServiceStatus{
			State:       string(st.Phase),
			Reason:      st.Reason,
			PID:         st.PID,
			StartedAt:   st.StartedAt,
			AutoRestart: s.svc.AutoRestartEnabled(),
			Label:       publisher.StatusLabel(st),
		},
	})
}

// handleHealth probes the service health endpoint once.
func (s *Supervisor) handleHealth(ctx context.Context, req *daemon.Request) *daemon.Response {
	health, ok := s.probe.CheckOnce(ctx)
	if !ok {
		return errorResponse(req, "service health check failed")
	}
	return successResponse(req, daemon.HealthResponse{
		Status:  health.Status,
		Version: health.Version,
	})
}

// handleStats fetches the current memory count.
// The count is unknown when the service is not running or the stats
// endpoint has no data.
func (s *Supervisor) handleStats(ctx context.Context, req *daemon.Request) *daemon.Response {
	var total *uint64
	if s.svc.IsRunning() {
		if n, ok := s.probe.Stats(ctx); ok {
			total = &n
		}
	}
	return successResponse(req, daemon.StatsResponse{
		Total: total,
		Label: publisher.CountLabel(total),
	})
}

// handleAttach subscribes the requesting connection to status events.
func (s *Supervisor) handleAttach(ctx context.Context, req *daemon.Request) *daemon.Response {
	conn := daemon.ConnFromContext(ctx)
	srv := daemon.ServerFromContext(ctx)
	if conn == nil || srv == nil {
		return errorResponse(req, "no connection in context")
	}

	srv.Attach(conn)
	slog.Debug("client attached for status events", "attached", srv.AttachedCount())
	return successResponse(req, nil)
}

// handleDetach unsubscribes the requesting connection from status events.
func (s *Supervisor) handleDetach(ctx context.Context, req *daemon.Request) *daemon.Response {
	conn := daemon.ConnFromContext(ctx)
	srv := daemon.ServerFromContext(ctx)
	if conn == nil || srv == nil {
		return errorResponse(req, "no connection in context")
	}

	srv.Detach(conn)
	return successResponse(req, nil)
}
