package jitter

import "time"

// releasePollInterval is how often the releaser checks the heap-top
// entry against the release rule. Fine enough to keep latency low
// without busy-spinning.
const releasePollInterval = 2 * time.Millisecond

// Releaser drains ready entries from a Pipeline's reorder heap onto a
// bounded output queue, in non-decreasing ts_ns order.
type Releaser struct {
	pipeline *Pipeline
	out      chan []float32
}

// NewReleaser creates a releaser feeding the given output queue.
func NewReleaser(pipeline *Pipeline, out chan []float32) *Releaser {
	return &Releaser{pipeline: pipeline, out: out}
}

// Run polls the pipeline until stop is closed, pushing every released
// batch onto the output queue. If the queue is full, the batch is
// dropped rather than blocking the reorder/release logic — playback
// underrun is preferable to stalling the network receive path.
func (r *Releaser) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(releasePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for {
				pcm, ok := r.pipeline.Release()
				if !ok {
					break
				}
				select {
				case r.out <- pcm:
				default:
				}
			}
		}
	}
}
