package jitter

import (
	"time"

	"remotemic/metrics"
)

// metricsPublishInterval matches the ~100ms emission cadence.
const metricsPublishInterval = 100 * time.Millisecond

// MetricsPublisher periodically snapshots a Pipeline and Output into
// the shared metrics registry for a GUI or other subscriber.
type MetricsPublisher struct {
	pipeline *Pipeline
	output   *Output
	registry *metrics.Registry
}

// NewMetricsPublisher creates a publisher reading from pipeline/output
// and writing to registry.
func NewMetricsPublisher(pipeline *Pipeline, output *Output, registry *metrics.Registry) *MetricsPublisher {
	return &MetricsPublisher{pipeline: pipeline, output: output, registry: registry}
}

// Run publishes a snapshot every ~100ms until stop is closed.
func (m *MetricsPublisher) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(metricsPublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.publishOnce()
		}
	}
}

func (m *MetricsPublisher) publishOnce() {
	rms, peak := m.output.LastMeter()

	m.registry.Publish(metrics.Snapshot{
		Timestamp:      time.Now(),
		AvgLatencyNs:   m.pipeline.AvgLatencyNs(),
		JitterNs:       m.pipeline.JitterNs(),
		LossRate:       m.pipeline.LossRate(),
		LateDrop:       m.pipeline.LateDrop(),
		TargetBufferNs: m.pipeline.TargetBufferNs(),
		BufferedNs:     m.output.BufferedNs(),
		RMS:            rms,
		Peak:           peak,
		EncStatus:      int32(m.pipeline.EncStatus()),
	})
}
