package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New(4, 64)

	idx, buf, ok := p.AcquireFree()
	assert.True(t, ok)
	assert.Len(t, buf, 64)

	p.PushFilled(idx)
	got, gotBuf := p.RecvFilled()
	assert.Equal(t, idx, got)
	assert.Equal(t, buf, gotBuf)

	p.Release(got)

	_, _, ok = p.AcquireFree()
	assert.True(t, ok)
}

func TestAcquireExhaustion(t *testing.T) {
	p := New(1, 16)

	_, _, ok := p.AcquireFree()
	assert.True(t, ok)

	_, _, ok = p.AcquireFree()
	assert.False(t, ok, "second acquire should fail, pool has one slot")
}

func TestFilledQueueIsFIFO(t *testing.T) {
	p := New(2, 16)

	idx0, _, _ := p.AcquireFree()
	idx1, _, _ := p.AcquireFree()

	p.PushFilled(idx0)
	p.PushFilled(idx1)

	first, _ := p.RecvFilled()
	second, _ := p.RecvFilled()

	assert.Equal(t, idx0, first)
	assert.Equal(t, idx1, second)
}
