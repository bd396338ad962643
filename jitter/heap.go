package jitter

import "container/heap"

// entry is one decoded, reordered frame awaiting release to playback,
// keyed by server timestamp. container/heap has no equivalent in the
// example corpus's dependency set; a min-heap keyed by a monotonic
// timestamp is exactly the stdlib's intended use case, so it is used
// directly rather than pulled in from a third-party priority-queue
// package.
type entry struct {
	seqExt uint64
	tsNs   uint64
	pcm    []float32
}

// reorderHeap is a min-heap of entries ordered by tsNs ascending,
// implementing container/heap.Interface.
type reorderHeap []entry

func (h reorderHeap) Len() int            { return len(h) }
func (h reorderHeap) Less(i, j int) bool  { return h[i].tsNs < h[j].tsNs }
func (h reorderHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *reorderHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }
func (h *reorderHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// ReorderBuffer wraps reorderHeap with duplicate-seq tracking, matching
// the "no two entries share seq_extended" invariant.
type ReorderBuffer struct {
	h    reorderHeap
	seen map[uint64]struct{}
}

func newReorderBuffer() *ReorderBuffer {
	rb := &ReorderBuffer{seen: make(map[uint64]struct{})}
	heap.Init(&rb.h)
	return rb
}

// Insert adds an entry unless its seqExt has already been seen, in
// which case it's silently dropped as a duplicate. Returns true if
// inserted.
func (rb *ReorderBuffer) Insert(seqExt, tsNs uint64, pcm []float32) bool {
	if _, dup := rb.seen[seqExt]; dup {
		return false
	}
	rb.seen[seqExt] = struct{}{}
	heap.Push(&rb.h, entry{seqExt: seqExt, tsNs: tsNs, pcm: pcm})
	return true
}

// Len returns the number of buffered entries.
func (rb *ReorderBuffer) Len() int { return rb.h.Len() }

// Peek returns the earliest (lowest ts) entry without removing it.
func (rb *ReorderBuffer) Peek() (entry, bool) {
	if rb.h.Len() == 0 {
		return entry{}, false
	}
	return rb.h[0], true
}

// Pop removes and returns the earliest entry, dropping its seqExt from
// the duplicate-tracking set so long-running sessions don't leak
// memory on that map.
func (rb *ReorderBuffer) Pop() (entry, bool) {
	if rb.h.Len() == 0 {
		return entry{}, false
	}
	e := heap.Pop(&rb.h).(entry)
	delete(rb.seen, e.seqExt)
	return e, true
}
