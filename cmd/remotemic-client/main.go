// Command remotemic-client connects to a RemoteMic server and writes
// decoded, jitter-released mono float32 PCM to stdout (so it composes
// with any external playback tool, e.g. sox or aplay reading from it).
package main

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"flag"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"remotemic/av/audio"
	"remotemic/client"
	"remotemic/interfaces"
)

func main() {
	addr := flag.String("addr", "localhost:5004", "server control channel address")
	pskHex := flag.String("psk", "", "pre-shared key, hex-encoded; empty relies on opportunistic encryption")
	flag.Parse()

	var psk []byte
	var err error
	if *pskHex != "" {
		psk, err = hex.DecodeString(*pskHex)
		if err != nil {
			logrus.WithError(err).Fatal("invalid -psk")
		}
	}

	codec := audio.NewOpusCodec()
	defer codec.Close()

	sink := &stdoutSink{w: bufio.NewWriter(os.Stdout)}

	runner, err := client.Connect(*addr, psk, codec, sink)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect")
	}

	metricsCh := runner.SubscribeMetrics()
	go func() {
		for snap := range metricsCh {
			logrus.WithFields(logrus.Fields{
				"latency_ms": float64(snap.AvgLatencyNs) / 1e6,
				"jitter_ms":  float64(snap.JitterNs) / 1e6,
				"loss_rate":  snap.LossRate,
				"rms":        snap.RMS,
			}).Debug("pipeline snapshot")
		}
	}()

	select {}
}

// stdoutSink implements interfaces.PlaybackSink by polling the
// callback on a fixed schedule and writing little-endian float32 PCM
// to stdout. Real speaker output is left to an external playback
// process reading from stdout.
type stdoutSink struct {
	w        *bufio.Writer
	callback func(buf []float32) int
	stop     chan struct{}
}

var _ interfaces.PlaybackSink = (*stdoutSink)(nil)

func (s *stdoutSink) Start(rate uint32, callback func(buf []float32) int) error {
	s.callback = callback
	s.stop = make(chan struct{})

	go func() {
		const batchDur = 20 * time.Millisecond
		buf := make([]float32, int(rate)*int(batchDur/time.Millisecond)/1000)
		raw := make([]byte, 4)

		ticker := time.NewTicker(batchDur)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
			n := s.callback(buf)
			for i := 0; i < n; i++ {
				binary.LittleEndian.PutUint32(raw, math.Float32bits(buf[i]))
				if _, err := s.w.Write(raw); err != nil {
					return
				}
			}
			s.w.Flush()
		}
	}()
	return nil
}

func (s *stdoutSink) Stop() error {
	if s.stop != nil {
		close(s.stop)
	}
	return s.w.Flush()
}
