package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remotemic/crypto"
)

func newTestPipeline() (*Pipeline, *crypto.MockTimeProvider) {
	tp := &crypto.MockTimeProvider{CurrentTime: time.Unix(0, 0)}
	return NewPipeline(tp), tp
}

func TestExtendSeqWrapsMonotonically(t *testing.T) {
	p, _ := newTestPipeline()

	seqs := []uint32{0xFFFFFFFE, 0xFFFFFFFF, 0, 1}
	var exts []uint64
	for _, s := range seqs {
		exts = append(exts, p.ExtendSeq(s))
	}

	for i := 1; i < len(exts); i++ {
		assert.Greater(t, exts[i], exts[i-1])
	}
}

func TestAcceptTracksLossFromSeqGaps(t *testing.T) {
	p, tp := newTestPipeline()

	p.Accept(0, 0, []float32{0})
	tp.Advance(10 * time.Millisecond)
	p.Accept(3, uint64(10*time.Millisecond), []float32{0}) // seq_ext 1,2 missing

	assert.Equal(t, uint64(2), p.Lost())
	assert.Equal(t, uint64(2), p.Received())
}

func TestReorderRecoveryReleasesInTimestampOrder(t *testing.T) {
	p, tp := newTestPipeline()

	// Feed frames out of order; whatever the pipeline releases (the
	// reorder delay here is the adaptive one, not a fixed value) must
	// still come out by ascending ts_ns.
	ts := []uint64{0, 40e6, 20e6, 60e6, 80e6} // ns; indices 1 and 2 swapped
	for i, t := range ts {
		p.Accept(uint64(i), t, []float32{float32(t)})
		tp.Advance(5 * time.Millisecond)
	}

	var released []float32
	for i := 0; i < 10; i++ {
		pcm, ok := p.Release()
		if !ok {
			break
		}
		released = append(released, pcm...)
	}

	for i := 1; i < len(released); i++ {
		assert.LessOrEqual(t, released[i-1], released[i])
	}
}

func TestLateDropDiscardsStaleFrame(t *testing.T) {
	p, _ := newTestPipeline()

	p.Accept(0, 100*uint64(time.Millisecond), []float32{1})
	// force a known reorder delay so the late threshold is deterministic
	p.reorderDelayNs = 5 * uint64(time.Millisecond)

	// newest_ts is 100ms; inject a frame far enough in the past to be late.
	p.newestTsNs = 100 * uint64(time.Millisecond)
	before := p.LateDrop()
	p.Accept(1, 100*uint64(time.Millisecond)-3*p.reorderDelayNs, []float32{2})

	assert.Equal(t, before+1, p.LateDrop())
}

func TestAdjustTargetsClampsToBounds(t *testing.T) {
	p, _ := newTestPipeline()
	p.jitterNs = uint64(100 * time.Millisecond) // way beyond the clamp range
	p.adjustTargets()

	require.LessOrEqual(t, p.TargetBufferNs(), uint64(40*time.Millisecond))
	require.LessOrEqual(t, p.MaxBufferNs(), uint64(100*time.Millisecond))
	require.LessOrEqual(t, p.ReorderDelayNs(), uint64(40*time.Millisecond))
}

func TestLossRateZeroWhenNothingReceived(t *testing.T) {
	p, _ := newTestPipeline()
	assert.Equal(t, 0.0, p.LossRate())
}
