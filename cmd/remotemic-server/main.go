// Command remotemic-server runs a RemoteMic server: it reads raw PCM
// from stdin (so it composes with any external capture tool, e.g. sox
// or arecord piping into it) and multicasts it to clients on the LAN.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"remotemic"
	"remotemic/av/audio"
	"remotemic/interfaces"
	"remotemic/server"
)

func main() {
	addr := flag.String("addr", ":5004", "control channel listen address (port doubles as the multicast port)")
	sampleRate := flag.Uint("rate", 48000, "input sample rate in Hz")
	channels := flag.Uint("channels", 1, "input channel count")
	format := flag.String("format", "i16", "input sample format: f32, i16, u16")
	pskHex := flag.String("psk", "", "pre-shared key, hex-encoded; empty disables PSK mode")
	opportunistic := flag.Bool("opportunistic-encryption", true, "advertise opportunistic Noise encryption when no PSK is set")
	heartbeatTimeout := flag.Duration("heartbeat-timeout", 5*time.Second, "session eviction timeout")
	flag.Parse()

	fmtCode, err := parseFormat(*format)
	if err != nil {
		logrus.Fatal(err)
	}

	var psk []byte
	if *pskHex != "" {
		psk, err = hex.DecodeString(*pskHex)
		if err != nil {
			logrus.WithError(err).Fatal("invalid -psk")
		}
	}

	opts := remotemic.Options{
		ListenAddr:              *addr,
		SampleRate:              uint32(*sampleRate),
		Channels:                uint8(*channels),
		FmtCode:                 fmtCode,
		PSK:                     psk,
		OpportunisticEncryption: *opportunistic,
		HeartbeatTimeout:        *heartbeatTimeout,
	}

	bytesPerSample := sampleBytes(audio.SampleFormat(fmtCode))
	src := &stdinCapture{
		rate:     uint32(*sampleRate),
		channels: uint8(*channels),
		format:   fmtCode,
		frame:    bytesPerSample * int(*channels) * int(*sampleRate) / 50, // 20ms batches
	}

	runner, err := server.Start(opts, src)
	if err != nil {
		logrus.WithError(err).Fatal("failed to start server")
	}

	logrus.WithFields(logrus.Fields{
		"addr":  runner.Addr().String(),
		"rate":  *sampleRate,
		"chans": *channels,
	}).Info("remotemic-server listening")

	select {}
}

// stdinCapture implements interfaces.CaptureSource by reading
// fixed-size PCM batches from os.Stdin. Real microphone access is left
// to an external capture process piped into stdin.
type stdinCapture struct {
	rate     uint32
	channels uint8
	format   uint8
	frame    int
	stop     chan struct{}
}

var _ interfaces.CaptureSource = (*stdinCapture)(nil)

func (c *stdinCapture) Start(callback func(pcm []byte, rate uint32, channels uint8, format uint8)) error {
	if c.frame <= 0 {
		c.frame = 3840
	}
	c.stop = make(chan struct{})
	r := bufio.NewReaderSize(os.Stdin, c.frame*4)

	go func() {
		buf := make([]byte, c.frame)
		for {
			select {
			case <-c.stop:
				return
			default:
			}
			n, err := io.ReadFull(r, buf)
			if n > 0 {
				callback(buf[:n], c.rate, c.channels, c.format)
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *stdinCapture) Stop() error {
	if c.stop != nil {
		close(c.stop)
	}
	return nil
}

func parseFormat(s string) (uint8, error) {
	switch s {
	case "f32":
		return uint8(audio.FormatF32), nil
	case "i16":
		return uint8(audio.FormatI16), nil
	case "u16":
		return uint8(audio.FormatU16), nil
	default:
		return 0, errUnsupportedFormat(s)
	}
}

func sampleBytes(f audio.SampleFormat) int {
	switch f {
	case audio.FormatF32:
		return 4
	default:
		return 2
	}
}

type errUnsupportedFormat string

func (e errUnsupportedFormat) Error() string { return "unsupported -format: " + string(e) }
