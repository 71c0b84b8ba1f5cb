// Package endpoint holds the atomic, lock-free record for a single backend
// inference server. An Endpoint is constructed once at startup and never
// destroyed; its two mutable fields (health, connection count) are updated
// only through its own atomic accessors — there is no pool-wide lock.
package endpoint

import (
	"net/url"
	"strconv"
	"sync/atomic"
)

// Endpoint is one backend inference server. Identity (URL) and the static
// capacity fields are immutable after construction.
type Endpoint struct {
	URL            *url.URL
	Weight         uint32
	MaxConnections uint32

	healthy      atomic.Bool
	connections  atomic.Uint32
}

// New builds an Endpoint for the given base URL. The endpoint starts
// healthy with zero active connections; the health checker corrects this on
// its first probe.
func New(base *url.URL, weight, maxConnections uint32) *Endpoint {
	e := &Endpoint{URL: base, Weight: weight, MaxConnections: maxConnections}
	e.healthy.Store(true)
	return e
}

// BaseURL returns the scheme+authority string with no trailing slash.
func (e *Endpoint) BaseURL() string {
	s := e.URL.String()
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// IsHealthy reports the current health flag. Relaxed visibility is
// sufficient: callers only ever branch on it, never build correctness
// invariants across it and another field.
func (e *Endpoint) IsHealthy() bool { return e.healthy.Load() }

// MarkHealthy flips the health flag on.
func (e *Endpoint) MarkHealthy() { e.healthy.Store(true) }

// MarkUnhealthy flips the health flag off.
func (e *Endpoint) MarkUnhealthy() { e.healthy.Store(false) }

// TryAcquire reserves one connection slot. It increments Connections iff the
// pre-increment value was strictly less than MaxConnections; otherwise the
// counter is left unchanged and false is returned. The compare-and-swap loop
// makes this check-then-act sequentially consistent, which is required
// because the counter gates admission.
func (e *Endpoint) TryAcquire() bool {
	for {
		current := e.connections.Load()
		if current >= e.MaxConnections {
			return false
		}
		if e.connections.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release gives back one connection slot. Calling it without a prior
// successful TryAcquire is a caller bug.
func (e *Endpoint) Release() {
	if e.connections.Add(^uint32(0)) == ^uint32(0) {
		panic("endpoint: Release called without a matching TryAcquire on " + e.BaseURL())
	}
}

// Connections is an observational read of the in-flight count.
func (e *Endpoint) Connections() uint32 { return e.connections.Load() }

// String renders the endpoint for logging.
func (e *Endpoint) String() string {
	return e.BaseURL() + " (conns=" + strconv.FormatUint(uint64(e.Connections()), 10) + "/" + strconv.FormatUint(uint64(e.MaxConnections), 10) + ")"
}
