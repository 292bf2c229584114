package gossip

import (
	"cmp"
	"slices"
	"sync"
)

// failedLatency is recorded when a probe fails.
const failedLatency int64 = -1

// Latency is the outcome of the last probe of a node.
type Latency struct {
	Endpoint Endpoint `json:"endpoint"`

	// Latency is the round trip time in milliseconds, or -1 if the probe
	// failed.
	Latency int64 `json:"latency"`

	// PingAt is the UNIX timestamp in milliseconds the probe was sent.
	PingAt int64 `json:"ping_at"`
}

func (l Latency) Failed() bool {
	return l.Latency == failedLatency
}

// latencyRecorder records the last probe outcome of each node.
type latencyRecorder struct {
	latencies map[Endpoint]Latency

	// mu protects the above fields.
	mu sync.Mutex
}

func newLatencyRecorder() *latencyRecorder {
	return &latencyRecorder{
		latencies: make(map[Endpoint]Latency),
	}
}

func (r *latencyRecorder) Record(endpoint Endpoint, pingAt int64, latency int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latencies[endpoint] = Latency{
		Endpoint: endpoint,
		Latency:  latency,
		PingAt:   pingAt,
	}
}

func (r *latencyRecorder) RecordFailure(endpoint Endpoint, pingAt int64) {
	r.Record(endpoint, pingAt, failedLatency)
}

// Failed returns whether the last probe of the node failed.
func (r *latencyRecorder) Failed(endpoint Endpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.latencies[endpoint]
	return ok && l.Failed()
}

// FailedEndpoints returns the nodes whose last probe failed.
func (r *latencyRecorder) FailedEndpoints() EndpointSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	failed := make(EndpointSet)
	for e, l := range r.latencies {
		if l.Failed() {
			failed.Add(e)
		}
	}
	return failed
}

// Get returns the last recorded latency of the node.
func (r *latencyRecorder) Get(endpoint Endpoint) (Latency, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.latencies[endpoint]
	return l, ok
}

// Ranking returns the reachable nodes ordered by ascending latency.
func (r *latencyRecorder) Ranking() []Latency {
	r.mu.Lock()
	defer r.mu.Unlock()

	ranking := make([]Latency, 0, len(r.latencies))
	for _, l := range r.latencies {
		if l.Failed() {
			continue
		}
		ranking = append(ranking, l)
	}
	slices.SortFunc(ranking, func(a, b Latency) int {
		if c := cmp.Compare(a.Latency, b.Latency); c != 0 {
			return c
		}
		return a.Endpoint.Compare(b.Endpoint)
	})
	return ranking
}
