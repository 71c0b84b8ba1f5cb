// Package dispatcher is the inbound HTTP server: a health reporter at
// /health and a transparent streaming proxy for everything else. Grounded on
// the teacher's internal/proxy.ReverseProxy.ServeHTTP dispatch shape, reworked
// around a LoadBalancer/ModelManager pair instead of the teacher's cache and
// queue layers.
package dispatcher

import (
	"encoding/json"
	"net/http"
	"time"

	"llmgateway/internal/applog"
	"llmgateway/internal/loadbalancer"
	"llmgateway/internal/metrics"
	"llmgateway/internal/modelmanager"
)

// maxProxyBodyBytes caps the request body read on forwarded POST/PUT
// requests (spec.md §4.6 step 5).
const maxProxyBodyBytes = 32 << 20

// Dispatcher is the inbound http.Handler; it routes between the health
// reporter and the proxy path. The listener itself is owned by the caller.
type Dispatcher struct {
	lb            *loadbalancer.LoadBalancer
	models        *modelmanager.ModelManager
	client        *http.Client
	requiredModel string
}

// New builds a Dispatcher. client is the HTTP client used for every outbound
// forwarded request; it should have no timeout of its own beyond what
// individual requests impose, since forwarded requests may stream.
func New(lb *loadbalancer.LoadBalancer, models *modelmanager.ModelManager, client *http.Client, requiredModel string) *Dispatcher {
	return &Dispatcher{lb: lb, models: models, client: client, requiredModel: requiredModel}
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.URL.Path == "/health" {
		d.serveHealth(w, r)
		return
	}
	d.serveProxy(w, r, start)
}

// writeJSONError writes the {"error": "<message>"} body the spec requires
// for every non-503 failure.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func logAndCount(method string, status int, dur time.Duration, op string, err error) {
	metrics.ObserveProxyResponse(method, status, dur)
	if err != nil {
		applog.Error("dispatcher", map[string]string{"op": op}, "%v", err)
	}
}
