package jitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputHoldsSilenceUntilPrebuffered(t *testing.T) {
	out := NewOutput(1000) // 1000 Hz -> prebufferN = 20 samples

	buf := make([]float32, 5)
	out.Feed([]float32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}) // 10 samples, below threshold

	n := out.Callback(buf)
	assert.Equal(t, len(buf), n)
	for _, v := range buf {
		assert.Equal(t, float32(0), v)
	}
}

func TestOutputPlaysAfterPrebufferAndCountsUnderrun(t *testing.T) {
	out := NewOutput(1000) // prebufferN = 20 samples
	samples := make([]float32, 25)
	for i := range samples {
		samples[i] = 1
	}
	out.Feed(samples)

	buf := make([]float32, 10)
	out.Callback(buf)
	for _, v := range buf {
		assert.Equal(t, float32(1), v)
	}
	assert.Equal(t, uint64(0), out.Underruns())

	// Only 15 samples remain; requesting 20 should underrun and zero-pad.
	buf2 := make([]float32, 20)
	out.Callback(buf2)
	assert.Equal(t, uint64(1), out.Underruns())
	for i := 15; i < len(buf2); i++ {
		assert.Equal(t, float32(0), buf2[i])
	}
}
