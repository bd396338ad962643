// Package jitter implements the client-side receive and adaptive jitter
// pipeline: UDP receive and decrypt, sequence-wrap extension, EWMA
// jitter estimation, a reorder min-heap keyed by server timestamp,
// dynamic target/max buffer sizing, late-frame dropping, and a
// prebuffered playback feeder.
package jitter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"remotemic/crypto"
)

// EncStatus mirrors the per-frame encryption outcome surfaced in
// metrics: plain transport, a successful open, or a failed one.
type EncStatus int32

const (
	EncPlain  EncStatus = 0
	EncOK     EncStatus = 1
	EncFailed EncStatus = -1
)

// seqWrapThreshold is the drop below the last-seen u32 seq that signals
// a wraparound rather than reordering/loss.
const seqWrapThreshold = 1 << 31

// Pipeline holds all per-session adaptive jitter buffer state. It is
// mutated by the receiver goroutine (Accept/ExtendSeq/SetDecryptFail),
// drained by the releaser goroutine (Release/ReadyToRelease), and read
// by the metrics publisher goroutine (the getters below), so every
// field is guarded by mu except encStatus, which is its own atomic
// per the metrics snapshot's enc_status contract.
type Pipeline struct {
	tp crypto.TimeProvider

	encStatus atomic.Int32

	mu sync.Mutex

	haveBase          bool
	baseServerTsNs    uint64
	baseClientInstant time.Time
	offsetNs          int64

	jitterNs      uint64
	lastTransitNs int64
	avgLatencyNs  int64

	reorderDelayNs uint64
	targetBufferNs uint64
	maxBufferNs    uint64

	newestTsNs uint64
	seqHigh    uint32
	haveSeq    bool
	lastRawSeq uint32

	haveAccepted       bool
	lastAcceptedSeqExt uint64

	reorder *ReorderBuffer

	received    uint64
	lost        uint64
	lateDrop    uint64
	decryptFail uint64
}

// NewPipeline creates an empty pipeline. A nil TimeProvider selects the
// real clock.
func NewPipeline(tp crypto.TimeProvider) *Pipeline {
	if tp == nil {
		tp = crypto.GetDefaultTimeProvider()
	}
	p := &Pipeline{
		tp:             tp,
		reorderDelayNs: 5 * uint64(time.Millisecond),
		targetBufferNs: 10 * uint64(time.Millisecond),
		maxBufferNs:    20 * uint64(time.Millisecond),
		reorder:        newReorderBuffer(),
	}
	p.encStatus.Store(int32(EncPlain))
	return p
}

// ExtendSeq extends a wire u32 seq to a monotonic u64 sequence, bumping
// seqHigh when the new value drops far below the last one (wrap).
func (p *Pipeline) ExtendSeq(seq uint32) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.haveSeq {
		p.haveSeq = true
		p.lastRawSeq = seq
		return uint64(seq)
	}

	if p.lastRawSeq > seq && p.lastRawSeq-seq > seqWrapThreshold {
		p.seqHigh++
	}
	p.lastRawSeq = seq
	return uint64(p.seqHigh)<<32 | uint64(seq)
}

// Accept processes one successfully decoded frame: updates the transit
// time and jitter EWMA, tracks loss from sequence gaps, recomputes the
// adaptive targets, and inserts into the reorder heap unless it's a
// duplicate or arrives too late.
func (p *Pipeline) Accept(seqExt, tsNs uint64, pcm []float32) {
	now := p.tp.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.haveBase {
		p.haveBase = true
		p.baseServerTsNs = tsNs
		p.baseClientInstant = now
		p.offsetNs = 0
	}

	serverRel := int64(tsNs) - int64(p.baseServerTsNs)
	arrivalRel := now.Sub(p.baseClientInstant).Nanoseconds()
	transit := arrivalRel - serverRel - p.offsetNs

	d := transit - p.lastTransitNs
	if d < 0 {
		d = -d
	}
	p.jitterNs = uint64(int64(p.jitterNs) + (d-int64(p.jitterNs))/16)
	p.lastTransitNs = transit
	p.avgLatencyNs += (transit - p.avgLatencyNs) / 16

	if tsNs > p.newestTsNs {
		p.newestTsNs = tsNs
	}

	if p.haveAccepted {
		gap := int64(seqExt) - int64(p.lastAcceptedSeqExt) - 1
		if gap > 0 {
			p.lost += uint64(gap)
		}
	}
	p.haveAccepted = true
	p.lastAcceptedSeqExt = seqExt
	p.received++

	p.adjustTargets()

	if tsNs+2*p.reorderDelayNs < p.newestTsNs {
		p.lateDrop++
		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.Accept",
			"seq_ext":  seqExt,
			"ts_ns":    tsNs,
		}).Debug("dropping late frame")
		return
	}

	if !p.reorder.Insert(seqExt, tsNs, pcm) {
		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.Accept",
			"seq_ext":  seqExt,
		}).Debug("dropping duplicate frame")
	}
}

// adjustTargets recomputes reorder_delay_ns, target_buffer_ns, and
// max_buffer_ns from the current jitter estimate. Called with mu held.
func (p *Pipeline) adjustTargets() {
	jMs := float64(p.jitterNs) / 1e6

	reorder := clampF(maxF(5.0, 2.5*jMs), 5.0, 40.0)
	target := clampF(10.0+1.5*jMs, 10.0, 40.0)
	maxBuf := minF(2*target, 100.0)

	p.reorderDelayNs = msToNs(reorder)
	p.targetBufferNs = msToNs(target)
	p.maxBufferNs = msToNs(maxBuf)
}

// BufferedSpanNs returns newest_ts - heap_top.ts_ns, or 0 if empty.
func (p *Pipeline) BufferedSpanNs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufferedSpanNsLocked()
}

func (p *Pipeline) bufferedSpanNsLocked() uint64 {
	e, ok := p.reorder.Peek()
	if !ok {
		return 0
	}
	if p.newestTsNs < e.tsNs {
		return 0
	}
	return p.newestTsNs - e.tsNs
}

// ReadyToRelease reports whether the heap-top entry meets the release
// rule: reached its reorder deadline with enough buffered span, or the
// buffer has overflowed max_buffer_ns and must force-release.
func (p *Pipeline) ReadyToRelease() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyToReleaseLocked()
}

func (p *Pipeline) readyToReleaseLocked() bool {
	e, ok := p.reorder.Peek()
	if !ok {
		return false
	}
	span := p.bufferedSpanNsLocked()
	if span > p.maxBufferNs {
		return true
	}
	return e.tsNs+p.reorderDelayNs <= p.newestTsNs && span >= p.targetBufferNs
}

// Release pops and returns the earliest buffered entry, if ready.
func (p *Pipeline) Release() ([]float32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.readyToReleaseLocked() {
		return nil, false
	}
	e, ok := p.reorder.Pop()
	if !ok {
		return nil, false
	}
	return e.pcm, true
}

// LossRate returns lost / max(1, received+lost).
func (p *Pipeline) LossRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	denom := p.received + p.lost
	if denom == 0 {
		denom = 1
	}
	return float64(p.lost) / float64(denom)
}

// SetEncStatus records the per-frame encryption outcome. Safe to call
// from the receiver goroutine concurrently with metrics reads.
func (p *Pipeline) SetEncStatus(s EncStatus) {
	p.encStatus.Store(int32(s))
}

// SetDecryptFail records a failed AEAD open: bumps decrypt_fail and
// marks enc_status failed, atomically with respect to metrics reads.
func (p *Pipeline) SetDecryptFail() {
	p.mu.Lock()
	p.decryptFail++
	p.mu.Unlock()
	p.encStatus.Store(int32(EncFailed))
}

// EncStatus returns the most recent per-frame encryption outcome.
func (p *Pipeline) EncStatus() EncStatus { return EncStatus(p.encStatus.Load()) }

// Received, Lost, LateDrop, DecryptFail expose the pipeline's running
// counters for metrics and tests.
func (p *Pipeline) Received() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received
}

func (p *Pipeline) Lost() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lost
}

func (p *Pipeline) LateDrop() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lateDrop
}

func (p *Pipeline) DecryptFail() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decryptFail
}

// AvgLatencyNs, JitterNs, TargetBufferNs, MaxBufferNs, ReorderDelayNs,
// NewestTsNs expose the current adaptive parameters for metrics and
// tests.
func (p *Pipeline) AvgLatencyNs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.avgLatencyNs
}

func (p *Pipeline) JitterNs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jitterNs
}

func (p *Pipeline) TargetBufferNs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.targetBufferNs
}

func (p *Pipeline) MaxBufferNs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxBufferNs
}

func (p *Pipeline) ReorderDelayNs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reorderDelayNs
}

func (p *Pipeline) NewestTsNs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newestTsNs
}

func msToNs(ms float64) uint64 { return uint64(ms * float64(time.Millisecond)) }

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
