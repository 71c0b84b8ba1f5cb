// Package health combines the liveness and model-presence probes into a
// single per-endpoint health check and runs the periodic loop that keeps
// every endpoint's health flag current.
package health

import (
	"net/http"
	"time"

	"llmgateway/internal/applog"
	"llmgateway/internal/config"
	"llmgateway/internal/endpoint"
	"llmgateway/internal/metrics"
	"llmgateway/internal/modelmanager"
)

// Checker composes a liveness probe (GET {endpoint}) with a model-presence
// probe (ModelManager.IsModelPresent) and runs them on a ticker. An endpoint
// is healthy iff both pass; any failure marks it unhealthy immediately.
//
// The core's behavior is single-sample, per spec: a state change on every
// probe. UnhealthyThreshold/HealthyThreshold are parsed configuration
// surface but not consulted here (see DESIGN.md decision D1).
type Checker struct {
	client        *http.Client
	models        *modelmanager.ModelManager
	requiredModel string
	interval      time.Duration
}

// New builds a Checker from the health-check configuration. The same client
// timeout governs both the liveness probe and the model manager's calls.
func New(cfg config.HealthCheckConfig, requiredModel string) *Checker {
	client := &http.Client{Timeout: cfg.Timeout()}
	return &Checker{
		client:        client,
		models:        modelmanager.New(client),
		requiredModel: requiredModel,
		interval:      cfg.Interval(),
	}
}

// ProbeOnce runs both probes against a single endpoint and updates its
// health flag. It never returns an error: probe failures are swallowed here
// (logged and folded into "mark unhealthy"), matching the spec's decision
// that HealthCheckError never surfaces.
func (c *Checker) ProbeOnce(ep *endpoint.Endpoint) {
	wasHealthy := ep.IsHealthy()

	healthyNow := c.probe(ep)
	if healthyNow {
		ep.MarkHealthy()
	} else {
		ep.MarkUnhealthy()
	}

	if healthyNow != wasHealthy {
		metrics.ObserveHealthTransition(ep.BaseURL(), healthyNow)
	}
}

// probe runs the liveness then model-presence checks and reports the
// combined pass/fail, without mutating the endpoint's health flag itself.
func (c *Checker) probe(ep *endpoint.Endpoint) bool {
	if !c.probeLiveness(ep) {
		return false
	}

	present, err := c.models.IsModelPresent(ep, c.requiredModel)
	if err != nil {
		applog.Error("health", map[string]string{"endpoint": ep.BaseURL()}, "model presence probe failed: %v", err)
		return false
	}
	if !present {
		applog.Info("health", map[string]string{"endpoint": ep.BaseURL()}, "required model %q not present", c.requiredModel)
		return false
	}
	return true
}

// probeLiveness issues GET {endpoint}; any 2xx status passes.
func (c *Checker) probeLiveness(ep *endpoint.Endpoint) bool {
	resp, err := c.client.Get(ep.BaseURL())
	if err != nil {
		applog.Error("health", map[string]string{"endpoint": ep.BaseURL()}, "liveness probe failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Start runs the health loop forever: a ticker fires every configured
// interval, and on each tick ProbeOnce runs for every endpoint sequentially,
// in original order. Start blocks until stop is closed, so callers run it in
// a goroutine. Closing stop is the only way to end the loop; it has no other
// shutdown signal.
func (c *Checker) Start(endpoints []*endpoint.Endpoint, stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, ep := range endpoints {
				c.ProbeOnce(ep)
			}
		}
	}
}
