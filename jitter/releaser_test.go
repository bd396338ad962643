package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReleaserForwardsReadyEntries(t *testing.T) {
	p, tp := newTestPipeline()

	// Insert one frame and force the reorder delay and target buffer
	// down to zero so the normal release rule holds for it immediately.
	p.Accept(0, 0, []float32{42})
	p.reorderDelayNs = 0
	p.targetBufferNs = 0 // release rule is satisfied immediately

	out := make(chan []float32, 4)
	r := NewReleaser(p, out)

	stop := make(chan struct{})
	go r.Run(stop)
	defer close(stop)

	tp.Advance(time.Millisecond)

	require.Eventually(t, func() bool {
		select {
		case pcm := <-out:
			return len(pcm) == 1 && pcm[0] == 42
		default:
			return false
		}
	}, time.Second, 2*time.Millisecond)
}
