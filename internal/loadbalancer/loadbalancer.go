// Package loadbalancer owns the endpoint pool, a selection strategy, and a
// health checker, and exposes "pick the next endpoint" to the dispatcher.
package loadbalancer

import (
	"net/url"

	"llmgateway/internal/applog"
	"llmgateway/internal/balancer"
	"llmgateway/internal/config"
	"llmgateway/internal/endpoint"
	"llmgateway/internal/gatewayerr"
	"llmgateway/internal/health"
	"llmgateway/internal/metrics"
)

// LoadBalancer materializes the endpoint pool from configuration, wraps it
// for shared read-only access by multiple consumers, and spawns the health
// loop in the background at construction.
type LoadBalancer struct {
	endpoints []*endpoint.Endpoint
	strategy  balancer.Strategy
	checker   *health.Checker

	stop chan struct{}
}

// New builds the pool from cfg, resolves the named strategy (falling back to
// round_robin and logging the fallback on an unknown name), and starts the
// health loop. Callers must call Stop to cancel the health loop when done.
func New(cfg *config.Config, checker *health.Checker) (*LoadBalancer, error) {
	endpoints := make([]*endpoint.Endpoint, 0, len(cfg.Endpoints))
	for _, ec := range cfg.Endpoints {
		u, err := url.Parse(ec.URL)
		if err != nil {
			return nil, &gatewayerr.ConfigError{Message: "loadbalancer: invalid endpoint url " + ec.URL}
		}
		endpoints = append(endpoints, endpoint.New(u, ec.Weight, ec.MaxConnections))
	}

	strategy, recognized := balancer.New(cfg.Strategy)
	if !recognized {
		applog.Error("loadbalancer", map[string]string{"strategy": cfg.Strategy}, "unknown strategy, falling back to round_robin")
	}

	lb := &LoadBalancer{
		endpoints: endpoints,
		strategy:  strategy,
		checker:   checker,
		stop:      make(chan struct{}),
	}

	go checker.Start(lb.endpoints, lb.stop)

	return lb, nil
}

// Stop cancels the background health loop.
func (lb *LoadBalancer) Stop() { close(lb.stop) }

// Endpoints returns the read-only pool, for the health reporter.
func (lb *LoadBalancer) Endpoints() []*endpoint.Endpoint { return lb.endpoints }

// GetEndpoint delegates to the strategy, updating metrics around the pick.
// If the chosen endpoint is not healthy (a race with the health loop — the
// strategy filtered on a snapshot that is already stale), it spawns a single
// best-effort re-probe of that endpoint; the synchronous result (the
// endpoint, possibly still flagged unhealthy) is returned regardless.
func (lb *LoadBalancer) GetEndpoint() (*endpoint.Endpoint, error) {
	healthyCount := 0
	for _, e := range lb.endpoints {
		if e.IsHealthy() {
			healthyCount++
		}
	}
	metrics.SetHealthyEndpoints(healthyCount)

	picked, err := lb.strategy.Pick(lb.endpoints)
	metrics.ObserveSelection(err == nil)
	if err != nil {
		return nil, err
	}

	var sum uint64
	for _, e := range lb.endpoints {
		sum += uint64(e.Connections())
	}
	metrics.SetActiveConnections(sum)

	if !picked.IsHealthy() {
		applog.Info("loadbalancer", map[string]string{"endpoint": picked.BaseURL()}, "picked endpoint raced to unhealthy, triggering re-probe")
		go lb.checker.ProbeOnce(picked)
	}

	return picked, nil
}
