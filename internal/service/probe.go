package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Probe timing constants.
const (
	// ProbeRequestTimeout bounds a single health or stats request.
	ProbeRequestTimeout = 2 * time.Second

	// ProbePollInterval is the pause between probes in WaitUntilHealthy.
	ProbePollInterval = 250 * time.Millisecond

	// maxProbeBody caps how much of a response body a probe will read.
	maxProbeBody = 1 << 20
)

// Health is the payload of a successful health probe.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Probe issues bounded-timeout requests against the service's health and
// stats endpoints. It holds no state beyond its configuration.
type Probe struct {
	healthURL string
	statsURL  string
	client    *http.Client
	interval  time.Duration
}

// NewProbe creates a probe for the given endpoint URLs.
func NewProbe(healthURL, statsURL string) *Probe {
	return &Probe{
		healthURL: healthURL,
		statsURL:  statsURL,
		client:    &http.Client{Timeout: ProbeRequestTimeout},
		interval:  ProbePollInterval,
	}
}

// CheckOnce issues a single health request. Returns the parsed payload
// and true on HTTP success; false on any failure (connection refused,
// non-2xx, timeout, malformed body). It never returns an error: absence
// of a result is the failure signal.
func (p *Probe) CheckOnce(ctx context.Context) (*Health, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return nil, false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false
	}

	var health Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProbeBody)).Decode(&health); err != nil {
		return nil, false
	}
	return &health, true
}

// WaitUntilHealthy polls CheckOnce until a probe succeeds or the deadline
// elapses. Returns a *HealthTimeoutError carrying the elapsed duration on
// expiry, or the context error if ctx is cancelled first.
func (p *Probe) WaitUntilHealthy(ctx context.Context, deadline time.Duration) (*Health, error) {
	start := time.Now()
	timeout := time.NewTimer(deadline)
	defer timeout.Stop()

	for {
		if health, ok := p.CheckOnce(ctx); ok {
			return health, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, &HealthTimeoutError{Elapsed: time.Since(start)}
		case <-time.After(p.interval):
		}
	}
}

// Stats fetches the item count from the stats endpoint. Returns false on
// any failure or when the count field is absent: no data is never zero.
func (p *Probe) Stats(ctx context.Context) (uint64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.statsURL, nil)
	if err != nil {
		return 0, false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return 0, false
	}

	total := gjson.GetBytes(body, "items.total")
	if !total.Exists() {
		return 0, false
	}
	return total.Uint(), true
}
