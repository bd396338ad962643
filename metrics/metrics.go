// Package metrics holds the registry that fans per-client metrics
// snapshots, published roughly every 100ms, out to a GUI or other
// subscriber. Each remotemic.ClientHandle creates its own Registry; the
// package keeps no process-wide instance. All reads are snapshot copies; nothing in this package is mutated by
// more than one goroutine at a time without going through Publish.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is the periodic status report published to metrics
// subscribers: latency, jitter, loss, and buffer-fill stats alongside
// the latest output meter reading.
type Snapshot struct {
	Timestamp      time.Time
	AvgLatencyNs   int64
	JitterNs       uint64
	LossRate       float64
	LateDrop       uint64
	TargetBufferNs uint64
	BufferedNs     uint64
	RMS            float32
	Peak           float32
	EncStatus      int32
}

// Registry fans a stream of snapshots out to any number of subscribers.
// It is the one piece of shared mutable state a client's metrics path
// needs; everything else flows through per-session structs.
type Registry struct {
	mu   sync.Mutex
	subs map[chan Snapshot]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[chan Snapshot]struct{})}
}

// Subscribe returns a channel that receives every future published
// snapshot. The channel is buffered so Publish never blocks on a slow
// subscriber; Unsubscribe must be called to release it.
func (r *Registry) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 16)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (r *Registry) Unsubscribe(ch chan Snapshot) {
	r.mu.Lock()
	delete(r.subs, ch)
	r.mu.Unlock()
	close(ch)
}

// Publish fans out a snapshot to all current subscribers, dropping it
// for any subscriber whose buffer is full rather than blocking the
// caller (metrics are informational, never on the real-time path).
func (r *Registry) Publish(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
