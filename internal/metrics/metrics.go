// Package metrics exposes per-error-kind counters surfaced through /health,
// generalized from the collector's hand-rolled mutex-guarded counters into
// atomics for the ingest hot path. The per-kind counter map is still guarded
// by a mutex, which CountError takes to look up or create a counter.
package metrics

import (
	"sync"
	"sync/atomic"

	"honeytrack-collector/internal/errorkind"
)

// Registry counts errors by kind and tracks a handful of gauges the health
// endpoint reports.
type Registry struct {
	mu      sync.Mutex
	byKind  map[errorkind.Kind]*uint64
	scored  uint64
	degraded uint64
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[errorkind.Kind]*uint64)}
}

// CountError increments the counter for kind, creating it on first use.
func (r *Registry) CountError(kind errorkind.Kind) {
	r.mu.Lock()
	counter, ok := r.byKind[kind]
	if !ok {
		var c uint64
		counter = &c
		r.byKind[kind] = counter
	}
	r.mu.Unlock()
	atomic.AddUint64(counter, 1)
}

// CountScored increments the total number of events that went through
// scoring, and optionally the degraded-scoring count.
func (r *Registry) CountScored(degraded bool) {
	atomic.AddUint64(&r.scored, 1)
	if degraded {
		atomic.AddUint64(&r.degraded, 1)
	}
}

// Snapshot returns a point-in-time copy of all counters for reporting.
type Snapshot struct {
	ErrorsByKind    map[errorkind.Kind]uint64 `json:"errors_by_kind"`
	EventsScored    uint64                    `json:"events_scored"`
	EventsDegraded  uint64                    `json:"events_degraded"`
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	byKind := make(map[errorkind.Kind]uint64, len(r.byKind))
	for k, v := range r.byKind {
		byKind[k] = atomic.LoadUint64(v)
	}
	return Snapshot{
		ErrorsByKind:   byKind,
		EventsScored:   atomic.LoadUint64(&r.scored),
		EventsDegraded: atomic.LoadUint64(&r.degraded),
	}
}
