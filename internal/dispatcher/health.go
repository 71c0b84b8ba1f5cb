package dispatcher

import (
	"encoding/json"
	"net/http"

	"llmgateway/internal/endpoint"
)

// endpointStatus is one entry of the /health report.
type endpointStatus struct {
	URL                string `json:"url"`
	Healthy            bool   `json:"healthy"`
	CurrentConnections uint32 `json:"current_connections"`
	ModelAvailable     bool   `json:"model_available"`
}

// healthReport is the full /health response body (spec.md §6).
type healthReport struct {
	Status          string           `json:"status"`
	HealthyEndpoints []endpointStatus `json:"healthy_endpoints"`
	TotalEndpoints  int              `json:"total_endpoints"`
	HealthyCount    int              `json:"healthy_count"`
}

// serveHealth reports per-endpoint status. The liveness flag is read from
// the cached endpoint state (the background health loop keeps it current);
// the model-presence flag is probed live on every call, per spec.md §4.6.
func (d *Dispatcher) serveHealth(w http.ResponseWriter, r *http.Request) {
	endpoints := d.lb.Endpoints()
	statuses := make([]endpointStatus, 0, len(endpoints))
	healthyCount := 0

	for _, ep := range endpoints {
		modelAvailable := d.probeModelForReport(ep)
		healthy := ep.IsHealthy()
		if healthy && modelAvailable {
			healthyCount++
		}
		statuses = append(statuses, endpointStatus{
			URL:                ep.BaseURL(),
			Healthy:            healthy,
			CurrentConnections: ep.Connections(),
			ModelAvailable:     modelAvailable,
		})
	}

	report := healthReport{
		Status:           "OK",
		HealthyEndpoints: statuses,
		TotalEndpoints:   len(endpoints),
		HealthyCount:     healthyCount,
	}

	status := http.StatusOK
	if healthyCount == 0 {
		report.Status = "SERVICE_UNAVAILABLE"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}

// probeModelForReport runs a fresh model-presence check, swallowing errors as
// "not available" rather than failing the whole report.
func (d *Dispatcher) probeModelForReport(ep *endpoint.Endpoint) bool {
	present, err := d.models.IsModelPresent(ep, d.requiredModel)
	if err != nil {
		return false
	}
	return present
}
