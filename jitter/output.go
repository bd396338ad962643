package jitter

import (
	"sync"
	"time"

	"remotemic/av/audio"
)

// prebufferMs is the minimum amount of buffered audio the output feeder
// waits to accumulate before releasing any samples to playback.
const prebufferMs = 20

// Output accumulates released mono sample batches into a single
// buffer and feeds them to a playback device through the
// interfaces.PlaybackSink contract, holding back playback until the
// prebuffer threshold is met and zero-filling on underrun.
type Output struct {
	sampleRate uint32
	prebufferN int

	mu       sync.Mutex
	buf      []float32
	primed   bool
	meter    audio.Meter
	underruns uint64
	lastRMS   float32
	lastPeak  float32
}

// NewOutput creates an output feeder for the given sample rate.
func NewOutput(sampleRate uint32) *Output {
	return &Output{
		sampleRate: sampleRate,
		prebufferN: int(sampleRate) * prebufferMs / 1000,
	}
}

// Feed appends decoded, released samples to the playback buffer. Called
// from the releaser's consumption side.
func (o *Output) Feed(samples []float32) {
	o.mu.Lock()
	o.buf = append(o.buf, samples...)
	o.mu.Unlock()
}

// FeedFrom runs a goroutine draining released batches from out until
// stop is closed.
func (o *Output) FeedFrom(out chan []float32, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case pcm := <-out:
			o.Feed(pcm)
		}
	}
}

// Callback implements the interfaces.PlaybackSink pull contract: fill
// buf with up to len(buf) samples, zero-padding and counting an
// underrun if not enough are available. Returns the count filled
// (always len(buf), since zero padding counts as filled — callers
// distinguish real audio from silence via metrics).
func (o *Output) Callback(buf []float32) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.primed {
		if len(o.buf) < o.prebufferN {
			for i := range buf {
				buf[i] = 0
			}
			return len(buf)
		}
		o.primed = true
	}

	n := copy(buf, o.buf)
	if n < len(buf) {
		o.underruns++
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	}
	o.buf = o.buf[n:]

	rms, peak := o.meter.Update(buf[:n])
	o.lastRMS = rms
	o.lastPeak = peak

	return len(buf)
}

// Underruns returns the cumulative underrun count.
func (o *Output) Underruns() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.underruns
}

// LastMeter returns the RMS/peak from the most recent callback.
func (o *Output) LastMeter() (rms, peak float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRMS, o.lastPeak
}

// BufferedNs estimates currently buffered playback duration from sample
// count and sample rate, for metrics emission.
func (o *Output) BufferedNs() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sampleRate == 0 {
		return 0
	}
	return uint64(len(o.buf)) * uint64(time.Second) / uint64(o.sampleRate)
}
