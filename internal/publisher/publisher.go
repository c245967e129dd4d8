// Package publisher turns service state changes into notifications for
// attached shell clients.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yelban/kiroku-memory/internal/logging"
	"github.com/yelban/kiroku-memory/internal/service"
)

// Default publisher configuration values.
const (
	// DefaultStatusInterval is how often the service status is sampled.
	DefaultStatusInterval = 2 * time.Second

	// DefaultStatsInterval is how often the memory count is refreshed.
	DefaultStatsInterval = 30 * time.Second
)

// NotificationKind identifies what a notification reports.
type NotificationKind string

const (
	// KindStatus reports a phase change that is not one of the named edges.
	KindStatus NotificationKind = "status"

	// KindReady reports the service entering the running phase.
	KindReady NotificationKind = "ready"

	// KindError reports the service entering the error phase.
	KindError NotificationKind = "error"

	// KindRestarting reports the start of a restart sequence.
	KindRestarting NotificationKind = "restarting"

	// KindStats reports a change in the memory count.
	KindStats NotificationKind = "stats"
)

// Notification is a single state or stats update for shell clients.
type Notification struct {
	Kind      NotificationKind
	State     service.Phase
	Reason    string
	Label     string
	Total     *uint64 // nil means the count is unknown
	Timestamp time.Time
}

// StatusLabel renders the tray label text for a service phase.
func StatusLabel(st service.Status) string {
	switch st.Phase {
	case service.PhaseStarting:
		return "Status: Starting"
	case service.PhaseRunning:
		return "Status: Running"
	case service.PhaseRestarting:
		return "Status: Restarting"
	case service.PhaseError:
		if st.Reason != "" {
			return "Status: Error (" + st.Reason + ")"
		}
		return "Status: Error"
	default:
		return "Status: Stopped"
	}
}

// CountLabel renders the tray label text for a memory count.
// An unknown count renders as a dash, never as zero.
func CountLabel(total *uint64) string {
	if total == nil {
		return "Memories: -"
	}
	return fmt.Sprintf("Memories: %d", *total)
}

// Config configures the publisher.
type Config struct {
	// StatusInterval is how often the service status is sampled.
	StatusInterval time.Duration

	// StatsInterval is how often the memory count is refreshed.
	StatsInterval time.Duration

	// Status returns the current service status. Required.
	Status func() service.Status

	// Stats fetches the current memory count. Required.
	Stats func(ctx context.Context) (uint64, bool)
}

// DefaultConfig returns the default publisher configuration.
func DefaultConfig() Config {
	return Config{
		StatusInterval: DefaultStatusInterval,
		StatsInterval:  DefaultStatsInterval,
	}
}

// Publisher samples service status and stats on fixed intervals and emits
// notifications on changes. Repeated samples of the same state are
// swallowed, so each transition produces exactly one notification.
type Publisher struct {
	statusInterval time.Duration
	statsInterval  time.Duration
	status         func() service.Status
	stats          func(ctx context.Context) (uint64, bool)

	handlerMu sync.RWMutex
	// +checklocks:handlerMu
	handlers []func(Notification)

	mu sync.Mutex
	// +checklocks:mu
	last service.Status
	// +checklocks:mu
	lastTotal *uint64
	// +checklocks:mu
	primed bool

	// +checklocks:mu
	stopCh chan struct{}
	// +checklocks:mu
	doneCh chan struct{}
}

// New creates a publisher with the given configuration.
func New(cfg Config) *Publisher {
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.StatsInterval == 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	return &Publisher{
		statusInterval: cfg.StatusInterval,
		statsInterval:  cfg.StatsInterval,
		status:         cfg.Status,
		stats:          cfg.Stats,
	}
}

// OnNotify registers a notification handler.
// Handlers are called synchronously from the publisher loop.
func (p *Publisher) OnNotify(handler func(Notification)) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.handlers = append(p.handlers, handler)
}

// emit sends a notification to all registered handlers.
// Handlers are called with a copy of the handler slice to allow
// safe iteration even if new handlers are registered during emission.
func (p *Publisher) emit(n Notification) {
	p.handlerMu.RLock()
	handlers := make([]func(Notification), len(p.handlers))
	copy(handlers, p.handlers)
	p.handlerMu.RUnlock()

	for _, h := range handlers {
		h(n)
	}
}

// Start begins the publishing loop.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Check if already running by seeing if stopCh is open
	if p.stopCh != nil {
		select {
		case <-p.stopCh:
			// Channel is closed, was stopped - OK to restart
		default:
			// Channel is open, still running
			return
		}
	}

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.run(p.stopCh, p.doneCh)
}

// Stop signals the publishing loop to stop and waits for it to finish.
func (p *Publisher) Stop() {
	p.mu.Lock()
	stopCh := p.stopCh
	doneCh := p.doneCh
	p.mu.Unlock()

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

// run is the main publishing loop.
func (p *Publisher) run(stopCh, doneCh chan struct{}) {
	defer logging.LogPanic("publisher", nil)
	defer close(doneCh)

	statusTicker := time.NewTicker(p.statusInterval)
	defer statusTicker.Stop()
	statsTicker := time.NewTicker(p.statsInterval)
	defer statsTicker.Stop()

	// Publish the state subscribers would otherwise only see after the
	// first transition.
	p.sampleStatus()
	p.sampleStats()

	for {
		select {
		case <-stopCh:
			return
		case <-statusTicker.C:
			p.sampleStatus()
		case <-statsTicker.C:
			p.sampleStats()
		}
	}
}

// sampleStatus reads the current status and emits a notification if the
// phase or reason changed since the previous sample.
func (p *Publisher) sampleStatus() {
	st := p.status()

	p.mu.Lock()
	changed := !p.primed || st.Phase != p.last.Phase || st.Reason != p.last.Reason
	p.last = st
	p.primed = true
	p.mu.Unlock()

	if !changed {
		return
	}

	kind := KindStatus
	switch st.Phase {
	case service.PhaseRunning:
		kind = KindReady
	case service.PhaseError:
		kind = KindError
	case service.PhaseRestarting:
		kind = KindRestarting
	}

	slog.Debug("publishing status change", "state", st.Phase, "reason", st.Reason)

	p.emit(Notification{
		Kind:      kind,
		State:     st.Phase,
		Reason:    st.Reason,
		Label:     StatusLabel(st),
		Timestamp: time.Now(),
	})
}

// sampleStats refreshes the memory count and emits a notification if it
// changed. The count is only fetched while the service is running;
// otherwise it is reported as unknown.
func (p *Publisher) sampleStats() {
	var total *uint64
	if p.status().Phase == service.PhaseRunning {
		ctx, cancel := context.WithTimeout(context.Background(), service.ProbeRequestTimeout)
		if n, ok := p.stats(ctx); ok {
			total = &n
		}
		cancel()
	}

	p.mu.Lock()
	changed := !totalsEqual(total, p.lastTotal)
	p.lastTotal = total
	p.mu.Unlock()

	if !changed {
		return
	}

	p.emit(Notification{
		Kind:      KindStats,
		Total:     total,
		Label:     CountLabel(total),
		Timestamp: time.Now(),
	})
}

func totalsEqual(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
