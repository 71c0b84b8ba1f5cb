// Package balancer implements the three selection strategies over a slice of
// endpoints: round-robin, least-connections, and uniform random. All three
// filter to healthy endpoints first and are safe to call concurrently; none
// block, perform I/O, or carry any state beyond what is documented per
// strategy. The strategy set is modeled as a small closed sum rather than an
// open plugin interface: the switch at configuration time is the only
// extension point (spec design note).
package balancer

import (
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"llmgateway/internal/endpoint"
	"llmgateway/internal/gatewayerr"
)

// Strategy picks one endpoint out of a slice. Implementations must not
// mutate the slice or block.
type Strategy interface {
	Pick(endpoints []*endpoint.Endpoint) (*endpoint.Endpoint, error)
	Name() string
}

// healthySubsequence returns the endpoints that currently report healthy,
// preserving original order — every strategy's first step.
func healthySubsequence(endpoints []*endpoint.Endpoint) []*endpoint.Endpoint {
	out := make([]*endpoint.Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if e.IsHealthy() {
			out = append(out, e)
		}
	}
	return out
}

// RoundRobin selects the next healthy endpoint in a never-resetting,
// atomically advanced cycle. Tie-break (which index the counter lands on
// after wraparound) is positional order in the original endpoint list.
type RoundRobin struct {
	counter atomic.Uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (s *RoundRobin) Name() string { return "round_robin" }

func (s *RoundRobin) Pick(endpoints []*endpoint.Endpoint) (*endpoint.Endpoint, error) {
	healthy := healthySubsequence(endpoints)
	if len(healthy) == 0 {
		return nil, gatewayerr.ErrNoHealthyEndpoints
	}
	n := s.counter.Add(1) - 1
	return healthy[n%uint64(len(healthy))], nil
}

// LeastConnections selects the healthy endpoint with the smallest current
// connection count, breaking ties by first occurrence in original order
// (stable min).
type LeastConnections struct{}

func NewLeastConnections() *LeastConnections { return &LeastConnections{} }

func (s *LeastConnections) Name() string { return "least_connections" }

func (s *LeastConnections) Pick(endpoints []*endpoint.Endpoint) (*endpoint.Endpoint, error) {
	healthy := healthySubsequence(endpoints)
	if len(healthy) == 0 {
		return nil, gatewayerr.ErrNoHealthyEndpoints
	}
	best := healthy[0]
	bestConn := best.Connections()
	for _, e := range healthy[1:] {
		if c := e.Connections(); c < bestConn {
			best, bestConn = e, c
		}
	}
	return best, nil
}

// Random selects uniformly over the healthy subsequence using a per-call
// draw from a non-cryptographic PRNG. math/rand is the right tool here: no
// library in the retrieved pack offers a non-cryptographic PRNG beyond what
// the standard library already provides idiomatically (see DESIGN.md).
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom() *Random {
	return &Random{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *Random) Name() string { return "random" }

func (s *Random) Pick(endpoints []*endpoint.Endpoint) (*endpoint.Endpoint, error) {
	healthy := healthySubsequence(endpoints)
	if len(healthy) == 0 {
		return nil, gatewayerr.ErrNoHealthyEndpoints
	}
	s.mu.Lock()
	idx := s.rng.Intn(len(healthy))
	s.mu.Unlock()
	return healthy[idx], nil
}

// New constructs the strategy named by config, falling back to round_robin
// (and logging the fallback via the caller) for anything unrecognized.
func New(name string) (Strategy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "round_robin":
		return NewRoundRobin(), true
	case "least_connections":
		return NewLeastConnections(), true
	case "random":
		return NewRandom(), true
	default:
		return NewRoundRobin(), false
	}
}
