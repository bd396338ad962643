// Package audio provides sample format conversion, mono downmixing, level
// metering, and optional Opus codec support for the RemoteMic audio
// pipeline.
//
// # Core Components
//
// ToFloat32 converts a frame's raw payload (f32le, i16le, or u16le) into
// interleaved float32 samples; Downmix averages multi-channel samples to
// mono. Meter tracks RMS and a decaying peak for metrics reporting.
//
//	samples, err := audio.ToFloat32(payload, audio.FormatI16)
//	mono := audio.Downmix(samples, channels)
//	rms, peak := meter.Update(mono)
//
// OpusCodec wraps pion/opus for the optional FMT_OPUS sample format:
//
//	codec := audio.NewOpusCodec()
//	pcm, rate, err := codec.DecodeFrame(payload)
//
// # Dependencies
//
//   - github.com/pion/opus: pure Go Opus decoder
//   - github.com/sirupsen/logrus: structured logging
package audio
