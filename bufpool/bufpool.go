// Package bufpool recycles fixed-size payload buffers between the audio
// capture callback and the multicast send loop so neither allocates on
// the real-time path.
//
// Ownership of a slot moves through exactly one of three states: on the
// free stack, in flight on the filled queue, or held by whichever side
// last acquired it — mirroring the free-index/filled-index handoff the
// reference capture pipeline uses around its buffer pool.
package bufpool

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// DefaultSlotSize is the byte size of each pooled buffer, sized for
// ~4096 stereo f32 samples — comfortably larger than one capture batch.
const DefaultSlotSize = 4096 * 4

// SlotIndex identifies one buffer in the pool.
type SlotIndex int

// Pool is a fixed-capacity slab of reusable byte buffers, handed off
// between one producer (capture) and one consumer (multicast loop) via a
// free-index stack and a bounded filled-index channel.
type Pool struct {
	buffers [][]byte
	free    chan SlotIndex
	filled  chan SlotIndex
}

// New creates a pool of n buffers, each of slotSize bytes.
func New(n, slotSize int) *Pool {
	p := &Pool{
		buffers: make([][]byte, n),
		free:    make(chan SlotIndex, n),
		filled:  make(chan SlotIndex, n),
	}
	for i := 0; i < n; i++ {
		p.buffers[i] = make([]byte, slotSize)
		p.free <- SlotIndex(i)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "bufpool.New",
		"slots":     n,
		"slot_size": slotSize,
	}).Info("buffer pool initialized")

	return p
}

// AcquireFree returns a free slot and its backing buffer without
// blocking. The second return value is false under exhaustion: the
// caller should drop the current capture batch rather than wait, since
// audio is real-time.
func (p *Pool) AcquireFree() (SlotIndex, []byte, bool) {
	select {
	case idx := <-p.free:
		return idx, p.buffers[idx], true
	default:
		return 0, nil, false
	}
}

// PushFilled hands a filled slot off to the consumer via the bounded
// filled queue. Because the queue's capacity equals the pool size and a
// caller can only hold a slot after acquiring it from the free stack,
// this never blocks under correct ownership discipline: freshness over
// backpressure is enforced upstream, at AcquireFree's exhaustion return.
func (p *Pool) PushFilled(idx SlotIndex) {
	p.filled <- idx
}

// RecvFilled blocks until a filled slot is available.
func (p *Pool) RecvFilled() (SlotIndex, []byte) {
	idx := <-p.filled
	return idx, p.buffers[idx]
}

// Release returns a slot to the free stack. Must be called exactly once
// per acquisition.
func (p *Pool) Release(idx SlotIndex) {
	select {
	case p.free <- idx:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Pool.Release",
			"slot":     idx,
		}).Error("release called on pool already at capacity — duplicate release?")
	}
}

// Buffer returns the backing buffer for idx without transferring
// ownership; callers must already hold the slot.
func (p *Pool) Buffer(idx SlotIndex) ([]byte, error) {
	if int(idx) < 0 || int(idx) >= len(p.buffers) {
		return nil, fmt.Errorf("remotemic: slot index %d out of range", idx)
	}
	return p.buffers[idx], nil
}
