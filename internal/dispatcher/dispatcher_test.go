package dispatcher

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"llmgateway/internal/config"
	"llmgateway/internal/health"
	"llmgateway/internal/loadbalancer"
	"llmgateway/internal/modelmanager"
)

// fakeBackend serves /api/tags, /api/pull, / (liveness), and an arbitrary
// proxied path, all from one httptest.Server, so a single fixture can stand
// in for a whole endpoint.
func fakeBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(handler)
}

func modelsOKHandler(extra http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]string{{"name": "llama3", "model": "llama3"}},
			})
		case "/":
			w.WriteHeader(http.StatusOK)
		default:
			if extra != nil {
				extra(w, r)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}
}

func newTestDispatcher(t *testing.T, backendURL string) *Dispatcher {
	t.Helper()
	cfg := &config.Config{
		Endpoints:     []config.EndpointConfig{{URL: backendURL, Weight: 1, MaxConnections: 10}},
		HealthCheck:   config.HealthCheckConfig{IntervalSeconds: 3600, TimeoutSeconds: 2},
		Strategy:      "round_robin",
		RequiredModel: "llama3",
	}
	client := &http.Client{Timeout: 2 * time.Second}
	checker := health.New(cfg.HealthCheck, cfg.RequiredModel)
	lb, err := loadbalancer.New(cfg, checker)
	if err != nil {
		t.Fatalf("loadbalancer.New: %v", err)
	}
	t.Cleanup(lb.Stop)

	for _, ep := range lb.Endpoints() {
		ep.MarkHealthy()
	}

	return New(lb, modelmanager.New(client), client, cfg.RequiredModel)
}

func TestServeHealthReportsOKWhenModelPresent(t *testing.T) {
	backend := fakeBackend(t, modelsOKHandler(nil))
	defer backend.Close()

	d := newTestDispatcher(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var report healthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.HealthyCount != 1 || report.TotalEndpoints != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestServeHealthReportsUnavailableWhenModelMissing(t *testing.T) {
	backend := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			json.NewEncoder(w).Encode(map[string]any{"models": []map[string]string{}})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	defer backend.Close()

	d := newTestDispatcher(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestServeProxyForwardsUnaryResponse(t *testing.T) {
	backend := fakeBackend(t, modelsOKHandler(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/echo" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer backend.Close()

	d := newTestDispatcher(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestServeProxyStreamsNDJSON(t *testing.T) {
	backend := fakeBackend(t, modelsOKHandler(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stream" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, line := range []string{`{"n":1}` + "\n", `{"n":2}` + "\n", `{"n":3}` + "\n"} {
			w.Write([]byte(line))
			flusher.Flush()
		}
	}))
	defer backend.Close()

	d := newTestDispatcher(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 3 || lines[0] != `{"n":1}` || lines[2] != `{"n":3}` {
		t.Fatalf("unexpected streamed lines: %v", lines)
	}
}

func TestServeProxyReturns503WhenNoHealthyEndpoints(t *testing.T) {
	backend := fakeBackend(t, modelsOKHandler(nil))
	defer backend.Close()

	d := newTestDispatcher(t, backend.URL)
	for _, ep := range d.lb.Endpoints() {
		ep.MarkUnhealthy()
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestServeProxyReturns500WhenModelMissingAtRequestTime(t *testing.T) {
	backend := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			json.NewEncoder(w).Encode(map[string]any{"models": []map[string]string{}})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	defer backend.Close()

	d := newTestDispatcher(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestServeProxyReturns503WhenEndpointSaturated(t *testing.T) {
	backend := fakeBackend(t, modelsOKHandler(nil))
	defer backend.Close()

	cfg := &config.Config{
		Endpoints:     []config.EndpointConfig{{URL: backend.URL, Weight: 1, MaxConnections: 1}},
		HealthCheck:   config.HealthCheckConfig{IntervalSeconds: 3600, TimeoutSeconds: 2},
		Strategy:      "round_robin",
		RequiredModel: "llama3",
	}
	client := &http.Client{Timeout: 2 * time.Second}
	checker := health.New(cfg.HealthCheck, cfg.RequiredModel)
	lb, err := loadbalancer.New(cfg, checker)
	if err != nil {
		t.Fatalf("loadbalancer.New: %v", err)
	}
	defer lb.Stop()
	ep := lb.Endpoints()[0]
	ep.MarkHealthy()
	if !ep.TryAcquire() {
		t.Fatal("expected first acquire to succeed")
	}
	defer ep.Release()

	d := New(lb, modelmanager.New(client), client, cfg.RequiredModel)

	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when saturated, got %d", rec.Code)
	}
}

func TestServeProxyRejectsOversizedBody(t *testing.T) {
	backend := fakeBackend(t, modelsOKHandler(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	d := newTestDispatcher(t, backend.URL)

	oversized := strings.NewReader(strings.Repeat("a", maxProxyBodyBytes+1))
	req := httptest.NewRequest(http.MethodPost, "/v1/echo", oversized)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rec.Code)
	}
}
