// Package gatewayerr defines the domain-level error kinds shared by the
// endpoint pool, model manager, health checker, and dispatcher.
package gatewayerr

import "errors"

// ErrNoHealthyEndpoints is returned by a selection strategy when every
// endpoint failed the healthy filter. The dispatcher maps it to a 503.
var ErrNoHealthyEndpoints = errors.New("no healthy endpoints available")

// ConfigError reports a configuration, bootstrap or model-pull problem: an
// invalid configuration file, a non-2xx response from a backend's /api/pull,
// or the aggregated failure when the model could not be ensured on every
// endpoint at startup.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// HTTPError wraps a transport or response-decoding failure talking to a
// backend. Op names the call that failed ("tags" or "pull"); URL is the
// backend URL involved.
type HTTPError struct {
	Op  string
	URL string
	Err error
}

func (e *HTTPError) Error() string {
	return "http " + e.Op + " " + e.URL + ": " + e.Err.Error()
}

func (e *HTTPError) Unwrap() error { return e.Err }

// SerializationError wraps a YAML or JSON decoding failure.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string { return "serialization: " + e.Err.Error() }

func (e *SerializationError) Unwrap() error { return e.Err }
