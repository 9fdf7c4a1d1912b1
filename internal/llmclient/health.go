package llmclient

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// endpointHealth tracks consecutive failure/success counts for one endpoint
// and derives its HealthState, grounded in the teacher's cooldown-based
// router health tracking but generalized to a four-state machine.
type endpointHealth struct {
	mu                  sync.Mutex
	state               HealthState
	consecutiveFailures int
	consecutiveSuccess  int
	policy              HealthPolicy
}

func newEndpointHealth(policy HealthPolicy) *endpointHealth {
	return &endpointHealth{state: HealthUnknown, policy: policy}
}

func (h *endpointHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.consecutiveSuccess++
	if h.state != HealthHealthy && h.consecutiveSuccess >= 1 {
		h.state = HealthHealthy
	}
}

func (h *endpointHealth) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveSuccess = 0
	h.consecutiveFailures++
	switch {
	case h.consecutiveFailures >= h.policy.UnhealthyAfter:
		h.state = HealthUnhealthy
	case h.consecutiveFailures >= h.policy.DegradedAfter:
		h.state = HealthDegraded
	}
}

func (h *endpointHealth) current() HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// healthRank orders candidate selection: lower rank is tried first.
func healthRank(s HealthState) int {
	switch s {
	case HealthHealthy, HealthUnknown:
		return 0
	case HealthDegraded:
		return 1
	default:
		return 2
	}
}

// prober periodically pings every endpoint in the background so health
// state recovers even when no live traffic exercises an unhealthy endpoint.
type prober struct {
	client   *Client
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
}

func newProber(client *Client, interval time.Duration, logger *slog.Logger) *prober {
	return &prober{client: client, interval: interval, logger: logger, stop: make(chan struct{}), done: make(chan struct{})}
}

func (p *prober) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.client.ProbeNow(ctx, p.logger)
		}
	}
}

func (p *prober) Stop() {
	close(p.stop)
	<-p.done
}

// ProbeNow pings every endpoint once, synchronously, updating each
// endpoint's health state. The background prober calls this on each tick;
// callers that want a fresh reading without waiting for the next interval
// (the CLI's `status` command) may call it directly. logger may be nil.
func (c *Client) ProbeNow(ctx context.Context, logger *slog.Logger) {
	for _, ep := range c.endpoints {
		probeCtx, cancel := context.WithTimeout(ctx, ep.cfg.Timeout)
		_, err := c.callEndpoint(probeCtx, ep, Request{
			Messages:    []Message{{Role: RoleUser, Content: "ping"}},
			MaxTokens:   1,
			Temperature: 0,
		})
		cancel()
		if err != nil {
			ep.health.recordFailure()
			if logger != nil {
				logger.Warn("llm endpoint probe failed", "endpoint_id", ep.cfg.ID, "error", err)
			}
		} else {
			ep.health.recordSuccess()
		}
	}
}
