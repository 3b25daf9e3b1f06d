// Package health implements the target-health monitor (spec §4.2):
// "is the target reachable", and a bounded wait for it to become so
// again. Grounded on the teacher's healthCheckHandler (cmd/indexer/main.go),
// generalized from serving a health endpoint to probing one.
package health

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Monitor polls a target node's /health endpoint. It is reentrant but
// not concurrency-safe against itself; only the recovery coordinator
// calls WaitForRecovery.
type Monitor struct {
	url        string
	httpClient *http.Client
	probeCap   time.Duration
	waitCap    time.Duration
}

// New builds a Monitor for the given /health URL.
func New(healthURL string, checkTimeout, probeCap, waitCap time.Duration) *Monitor {
	return &Monitor{
		url:        healthURL,
		httpClient: &http.Client{Timeout: checkTimeout},
		probeCap:   probeCap,
		waitCap:    waitCap,
	}
}

// IsHealthy performs a single GET against /health and returns true iff
// the response is 200 with body "OK". Never returns an error — any
// transport failure is reported as unhealthy.
func (m *Monitor) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return false
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return false
	}
	return string(body) == "OK"
}

// WaitForRecovery polls IsHealthy with exponential back-off capped at
// probeCap, for at most waitCap wall-clock time. Returns true on
// recovery, false on timeout. Never returns an error.
func (m *Monitor) WaitForRecovery(ctx context.Context) bool {
	deadline := time.Now().Add(m.waitCap)
	delay := 100 * time.Millisecond

	for {
		if m.IsHealthy(ctx) {
			return true
		}

		if ctx.Err() != nil {
			return false
		}

		if time.Now().Add(delay).After(deadline) {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return false
			}
			delay = remaining
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}

		if time.Now().After(deadline) {
			return false
		}

		delay *= 2
		if delay > m.probeCap {
			delay = m.probeCap
		}
	}
}
