package audio

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// pcmPassthroughEncoder is a minimal placeholder Opus "encoder": pion/opus
// only ships a decoder, so until a pure-Go Opus encoder is available in the
// ecosystem, FMT_OPUS frames are encoded as raw little-endian PCM and
// decoded with the real pion/opus decoder on data actually produced by a
// real Opus encoder elsewhere in the pipeline (e.g. a capture device that
// emits Opus natively). This mirrors the PCM-passthrough encoder the
// reference audio pipeline ships while its Opus encode path matures.
type pcmPassthroughEncoder struct {
	sampleRate uint32
}

func (e *pcmPassthroughEncoder) Encode(pcm []int16) []byte {
	data := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data
}

// Processor wraps an Opus decoder (pion/opus) and a PCM passthrough
// encoder into the codec used for the optional FMT_OPUS sample format.
type Processor struct {
	encoder    *pcmPassthroughEncoder
	decoder    *opus.Decoder
	sampleRate uint32
}

// NewProcessor creates a processor configured for 48kHz mono, the rate the
// reference Opus bandwidth tables assume.
func NewProcessor() *Processor {
	logrus.WithFields(logrus.Fields{
		"function": "NewProcessor",
	}).Info("creating audio processor")

	decoder := opus.NewDecoder()
	return &Processor{
		encoder:    &pcmPassthroughEncoder{sampleRate: 48000},
		decoder:    &decoder,
		sampleRate: 48000,
	}
}

// ProcessOutgoing encodes captured PCM for transmission under FMT_OPUS.
func (p *Processor) ProcessOutgoing(pcm []int16, sampleRate uint32) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("remotemic: empty PCM data")
	}
	if sampleRate != p.sampleRate {
		logrus.WithFields(logrus.Fields{
			"function":    "Processor.ProcessOutgoing",
			"input_rate":  sampleRate,
			"target_rate": p.sampleRate,
		}).Warn("sample rate mismatch, encoding without resampling")
	}
	return p.encoder.Encode(pcm), nil
}

// ProcessIncoming decodes a received FMT_OPUS payload to PCM samples plus
// the sample rate reported by the decoded Opus bandwidth.
func (p *Processor) ProcessIncoming(data []byte) ([]int16, uint32, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("remotemic: empty audio data")
	}

	outputSize := 1920 * 2 // 40ms at 48kHz, int16 bytes
	output := make([]byte, outputSize)

	bandwidth, isStereo, err := p.decoder.Decode(data, output)
	if err != nil {
		return nil, 0, fmt.Errorf("opus decode failed: %w", err)
	}

	sampleCount := len(output) / 2
	if isStereo {
		sampleCount /= 2
	}

	pcm := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		pcm[i] = int16(output[i*2]) | int16(output[i*2+1])<<8
	}

	return pcm, uint32(bandwidth.SampleRate()), nil
}

// Close releases processor resources. The pion/opus decoder holds no
// external resources, so this is currently a no-op kept for interface
// symmetry with callers that defer Close unconditionally.
func (p *Processor) Close() error {
	return nil
}
