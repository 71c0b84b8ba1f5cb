// Package modelmanager performs the two backend API calls needed to check
// for and install a model on an endpoint, plus the composite "ensure"
// operations the startup bootstrap uses. The health checker and dispatcher
// call only the presence check.
package modelmanager

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"llmgateway/internal/endpoint"
	"llmgateway/internal/gatewayerr"
)

// tagsResponse mirrors the backend's GET /api/tags body.
type tagsResponse struct {
	Models []modelEntry `json:"models"`
}

type modelEntry struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// ModelManager talks to a backend's model-management endpoints over HTTP.
// Neither operation carries its own timeout; the supplied client's timeout
// (from the health-check configuration) applies.
type ModelManager struct {
	client *http.Client
}

// New builds a ModelManager using client for all outbound calls.
func New(client *http.Client) *ModelManager {
	return &ModelManager{client: client}
}

// IsModelPresent issues GET {endpoint}/api/tags and reports whether name
// equals either the "name" or "model" field of any returned entry. A 200
// with no models array (or an empty one) returns false, not an error.
func (m *ModelManager) IsModelPresent(ep *endpoint.Endpoint, name string) (bool, error) {
	url := ep.BaseURL() + "/api/tags"
	resp, err := m.client.Get(url)
	if err != nil {
		return false, &gatewayerr.HTTPError{Op: "tags", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &gatewayerr.HTTPError{Op: "tags", URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, &gatewayerr.SerializationError{Err: err}
	}

	for _, entry := range tags.Models {
		if entry.Name == name || entry.Model == name {
			return true, nil
		}
	}
	return false, nil
}

// PullModel issues POST {endpoint}/api/pull with {"name": name}. Any
// non-2xx status produces a ConfigError carrying the response body text.
func (m *ModelManager) PullModel(ep *endpoint.Endpoint, name string) error {
	url := ep.BaseURL() + "/api/pull"
	body, err := json.Marshal(struct {
		Name string `json:"name"`
	}{Name: name})
	if err != nil {
		return &gatewayerr.SerializationError{Err: err}
	}

	resp, err := m.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return &gatewayerr.HTTPError{Op: "pull", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)
		return &gatewayerr.ConfigError{Message: fmt.Sprintf("pull model %q on %s failed (status %d): %s", name, ep.BaseURL(), resp.StatusCode, strings.TrimSpace(string(text)))}
	}
	return nil
}

// EnsureModel installs name on ep if it is not already present. On any
// error the endpoint is marked unhealthy; on success it is marked healthy.
func (m *ModelManager) EnsureModel(ep *endpoint.Endpoint, name string) error {
	present, err := m.IsModelPresent(ep, name)
	if err != nil {
		ep.MarkUnhealthy()
		return err
	}
	if !present {
		if err := m.PullModel(ep, name); err != nil {
			ep.MarkUnhealthy()
			return err
		}
	}
	ep.MarkHealthy()
	return nil
}

// EnsureModelOnAllEndpoints calls EnsureModel for each endpoint in order,
// collecting errors. It returns a single aggregated ConfigError if any
// endpoint failed, and nil only when all succeeded.
func (m *ModelManager) EnsureModelOnAllEndpoints(endpoints []*endpoint.Endpoint, name string) error {
	var failures []string
	for _, ep := range endpoints {
		if err := m.EnsureModel(ep, name); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", ep.BaseURL(), err))
		}
	}
	if len(failures) > 0 {
		return &gatewayerr.ConfigError{Message: fmt.Sprintf("failed to ensure model %q on all endpoints: %s", name, strings.Join(failures, "; "))}
	}
	return nil
}
