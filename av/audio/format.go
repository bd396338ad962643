// Package audio provides sample format conversion, Opus codec integration,
// and level metering for the RemoteMic audio pipeline.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// SampleFormat identifies the wire encoding of a frame's payload.
type SampleFormat uint8

const (
	FormatF32 SampleFormat = 1
	FormatI16 SampleFormat = 2
	FormatU16 SampleFormat = 3
	FormatOpus SampleFormat = 4
)

func (f SampleFormat) String() string {
	switch f {
	case FormatF32:
		return "f32le"
	case FormatI16:
		return "i16le"
	case FormatU16:
		return "u16le"
	case FormatOpus:
		return "opus"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// ErrUnknownFormat is returned when a fmt_code does not map to a known
// SampleFormat. Callers must drop the frame and log once, per the control
// channel's error-handling table.
var ErrUnknownFormat = fmt.Errorf("remotemic: unknown sample format code")

// ToFloat32 converts raw payload bytes in the given format to interleaved
// float32 samples in [-1, 1]. Opus payloads must be decoded first via
// OpusCodec.DecodeFrame and passed in as FormatF32.
func ToFloat32(raw []byte, format SampleFormat) ([]float32, error) {
	switch format {
	case FormatF32:
		return bytesToF32(raw), nil
	case FormatI16:
		return i16BytesToF32(raw), nil
	case FormatU16:
		return u16BytesToF32(raw), nil
	default:
		logrus.WithFields(logrus.Fields{
			"function": "ToFloat32",
			"format":   format.String(),
		}).Warn("dropping frame with unsupported sample format")
		return nil, ErrUnknownFormat
	}
}

func bytesToF32(raw []byte) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func i16BytesToF32(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

func u16BytesToF32(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint16(raw[i*2:])
		out[i] = (float32(v) - 32768.0) / 32768.0
	}
	return out
}

// I16ToF32 converts decoded int16 samples (e.g. from OpusCodec.DecodeFrame)
// directly to float32 in [-1, 1], without a byte round-trip.
func I16ToF32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Downmix averages interleaved multi-channel samples down to mono.
// If channels <= 1, samples are returned unchanged (no copy).
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
