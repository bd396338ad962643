package audio

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// OpusCodec wraps the Opus processor: DecodeFrame decodes received
// FMT_OPUS payloads back to PCM with pion/opus; EncodeFrame does no
// Opus compression (see EncodeFrame).
type OpusCodec struct {
	processor *Processor
}

// NewOpusCodec creates a codec configured for Opus-compatible settings
// (48kHz).
func NewOpusCodec() *OpusCodec {
	return &OpusCodec{processor: NewProcessor()}
}

// EncodeFrame returns pcm as raw little-endian int16 bytes through the
// processor's passthrough encoder; the output is not Opus-compressed.
func (c *OpusCodec) EncodeFrame(pcm []int16, sampleRate uint32) ([]byte, error) {
	if c.processor == nil {
		return nil, fmt.Errorf("remotemic: codec processor not initialized")
	}
	return c.processor.ProcessOutgoing(pcm, sampleRate)
}

// DecodeFrame decodes an FMT_OPUS payload to PCM.
func (c *OpusCodec) DecodeFrame(data []byte) ([]int16, uint32, error) {
	if c.processor == nil {
		return nil, 0, fmt.Errorf("remotemic: codec processor not initialized")
	}
	return c.processor.ProcessIncoming(data)
}

// ValidateFrameSize checks that frameSize corresponds to one of Opus's
// fixed frame durations (2.5, 5, 10, 20, 40, or 60 ms).
func (c *OpusCodec) ValidateFrameSize(frameSize int, sampleRate uint32, channels int) error {
	frameDurationMs := float32(frameSize) / float32(channels) * 1000.0 / float32(sampleRate)

	validDurations := []float32{2.5, 5.0, 10.0, 20.0, 40.0, 60.0}
	for _, duration := range validDurations {
		if frameDurationMs == duration {
			return nil
		}
	}
	return fmt.Errorf("invalid Opus frame size: %d samples (%.2f ms)", frameSize, frameDurationMs)
}

// Close releases codec resources.
func (c *OpusCodec) Close() error {
	if c.processor == nil {
		return nil
	}
	return c.processor.Close()
}

// BandwidthFromSampleRate maps a sample rate to the Opus bandwidth
// classification used for decode buffer sizing.
func BandwidthFromSampleRate(sampleRate uint32) opus.Bandwidth {
	switch sampleRate {
	case 8000:
		return opus.BandwidthNarrowband
	case 12000:
		return opus.BandwidthMediumband
	case 16000:
		return opus.BandwidthWideband
	case 24000:
		return opus.BandwidthSuperwideband
	case 48000:
		return opus.BandwidthFullband
	default:
		logrus.WithFields(logrus.Fields{
			"function":    "BandwidthFromSampleRate",
			"sample_rate": sampleRate,
		}).Warn("unsupported sample rate, defaulting to fullband")
		return opus.BandwidthFullband
	}
}
