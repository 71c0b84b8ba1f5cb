package dispatcher

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"llmgateway/internal/applog"
	"llmgateway/internal/endpoint"
	"llmgateway/internal/gatewayerr"
	"llmgateway/internal/metrics"
)

// serveProxy implements the transparent forward path (spec.md §4.6).
func (d *Dispatcher) serveProxy(w http.ResponseWriter, r *http.Request, start time.Time) {
	ep, err := d.lb.GetEndpoint()
	if err != nil {
		if errors.Is(err, gatewayerr.ErrNoHealthyEndpoints) {
			logAndCount(r.Method, http.StatusServiceUnavailable, time.Since(start), "select", nil)
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		logAndCount(r.Method, http.StatusInternalServerError, time.Since(start), "select", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	presenceStart := time.Now()
	present, err := d.models.IsModelPresent(ep, d.requiredModel)
	metrics.ObserveModelPresenceCheck(time.Since(presenceStart))
	if err != nil {
		logAndCount(r.Method, http.StatusInternalServerError, time.Since(start), "model-presence", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !present {
		applog.Info("dispatcher", map[string]string{"endpoint": ep.BaseURL()}, "required model %q not present at request time", d.requiredModel)
		logAndCount(r.Method, http.StatusInternalServerError, time.Since(start), "model-presence", nil)
		writeJSONError(w, http.StatusInternalServerError, "required model not present on selected endpoint")
		return
	}

	if !ep.TryAcquire() {
		logAndCount(r.Method, http.StatusServiceUnavailable, time.Since(start), "acquire", nil)
		writeJSONError(w, http.StatusServiceUnavailable, "endpoint at max_connections")
		return
	}
	defer ep.Release()

	outReq, err := d.buildUpstreamRequest(r, ep)
	if err != nil {
		logAndCount(r.Method, http.StatusBadRequest, time.Since(start), "build-request", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	upstreamResp, err := d.client.Do(outReq)
	if err != nil {
		logAndCount(r.Method, http.StatusInternalServerError, time.Since(start), "forward", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer upstreamResp.Body.Close()

	copyHeaders(w.Header(), upstreamResp.Header)

	if strings.Contains(upstreamResp.Header.Get("Content-Type"), "application/x-ndjson") {
		d.forwardStreaming(w, upstreamResp, r.Method, start)
		return
	}
	d.forwardBuffered(w, upstreamResp, r.Method, start)
}

// buildUpstreamRequest constructs the outbound request: method verbatim,
// URL {endpoint.url}{path}{?query}, headers copied except Host, body read
// (capped) for POST/PUT only.
func (d *Dispatcher) buildUpstreamRequest(r *http.Request, ep *endpoint.Endpoint) (*http.Request, error) {
	upstreamURL := ep.BaseURL() + r.URL.Path
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		limited := io.LimitReader(r.Body, maxProxyBodyBytes+1)
		data, err := io.ReadAll(limited)
		if err != nil {
			return nil, err
		}
		if len(data) > maxProxyBodyBytes {
			return nil, errBodyTooLarge
		}
		body = bytes.NewReader(data)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, body)
	if err != nil {
		return nil, err
	}
	copyHeaders(outReq.Header, r.Header)
	return outReq, nil
}

// forwardStreaming copies the upstream body to the client chunk-by-chunk,
// flushing after every read so no chunk waits behind another (spec.md §4.6
// step 7, scenario 6).
func (d *Dispatcher) forwardStreaming(w http.ResponseWriter, upstreamResp *http.Response, method string, start time.Time) {
	w.WriteHeader(upstreamResp.StatusCode)
	flusher, canFlush := w.(http.Flusher)

	buf := make([]byte, 4096)
	for {
		n, readErr := upstreamResp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				logAndCount(method, upstreamResp.StatusCode, time.Since(start), "stream", writeErr)
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				applog.Error("dispatcher", nil, "streaming upstream body: %v", readErr)
			}
			break
		}
	}
	logAndCount(method, upstreamResp.StatusCode, time.Since(start), "stream", nil)
}

// forwardBuffered reads the upstream body fully before writing it through.
func (d *Dispatcher) forwardBuffered(w http.ResponseWriter, upstreamResp *http.Response, method string, start time.Time) {
	body, err := io.ReadAll(upstreamResp.Body)
	if err != nil {
		logAndCount(method, http.StatusInternalServerError, time.Since(start), "read-response", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(upstreamResp.StatusCode)
	_, _ = w.Write(body)
	logAndCount(method, upstreamResp.StatusCode, time.Since(start), "forward", nil)
}

var errBodyTooLarge = errors.New("dispatcher: request body exceeds 32 MiB limit")
