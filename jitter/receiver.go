package jitter

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"remotemic/av/audio"
	"remotemic/frame"
)

// errEncryptionActiveNoKey is returned when the server's stream is
// encrypted but this receiver holds no key to open it.
var errEncryptionActiveNoKey = fmt.Errorf("remotemic: stream is encrypted but no key is held")

// datagramReader is the narrow interface the receiver needs from
// *transport.MulticastConn.
type datagramReader interface {
	ReadFrom(buf []byte) (int, error)
	SetReadDeadline(t time.Time) error
}

// ReceiverConfig configures the UDP receive side of the pipeline.
type ReceiverConfig struct {
	Conn datagramReader
	Key  *[32]byte // nil when we hold no key, whether or not the stream is encrypted
	Salt [8]byte
	// EncryptionActive reports whether the server advertised encryption
	// (a PSK salt or ENC_NOISE) at handshake time. A frame arriving while this is true and
	// Key is nil means the stream is encrypted but we never negotiated
	// a key for it (e.g. connected without a matching -psk); such
	// frames must be dropped rather than parsed as plaintext.
	EncryptionActive bool
	Channels         uint8
	Codec            *audio.OpusCodec // used only for FMT_OPUS payloads
}

// Receiver reads datagrams, decodes and decrypts them, and feeds
// decoded mono samples into a Pipeline.
type Receiver struct {
	cfg      ReceiverConfig
	pipeline *Pipeline
}

// NewReceiver creates a receiver that feeds the given pipeline.
func NewReceiver(cfg ReceiverConfig, pipeline *Pipeline) *Receiver {
	return &Receiver{cfg: cfg, pipeline: pipeline}
}

// Run blocks reading datagrams until stop is closed or the connection
// errors out permanently. It polls stop every 100ms via the read
// deadline, matching the transport's shutdown-poll convention.
func (r *Receiver) Run(stop <-chan struct{}) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-stop:
			return
		default:
		}

		r.cfg.Conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, err := r.cfg.Conn.ReadFrom(buf)
		if err != nil {
			continue // deadline exceeded or transient error, poll stop again
		}
		r.handleDatagram(buf[:n])
	}
}

func (r *Receiver) handleDatagram(datagram []byte) {
	h, payload, err := r.decode(datagram)
	if err != nil {
		return
	}

	pcm, err := r.decodeSamples(h, payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.handleDatagram",
			"error":    err.Error(),
		}).Debug("dropping frame with undecodable payload")
		return
	}

	mono := audio.Downmix(pcm, int(h.Ch))

	seqExt := r.pipeline.ExtendSeq(h.Seq)
	r.pipeline.Accept(seqExt, h.TsNs, mono)
}

// decode parses the header and, if encryption is configured, opens the
// AEAD payload. It tracks decrypt_fail/enc_status transitions per the
// receiver's documented encryption handling.
func (r *Receiver) decode(datagram []byte) (frame.Header, []byte, error) {
	if r.cfg.Key == nil {
		if r.cfg.EncryptionActive {
			h, _ := frame.DecodeHeader(datagram)
			r.pipeline.SetDecryptFail()
			logrus.WithFields(logrus.Fields{
				"function": "Receiver.decode",
			}).Debug("dropping frame: stream is encrypted but no key is held")
			return h, nil, errEncryptionActiveNoKey
		}
		h, payload, err := frame.Decode(datagram, nil, r.cfg.Salt)
		if err == nil {
			r.pipeline.SetEncStatus(EncPlain)
		}
		return h, payload, err
	}

	h, payload, err := frame.Decode(datagram, r.cfg.Key, r.cfg.Salt)
	if err != nil {
		r.pipeline.SetDecryptFail()
		return h, nil, err
	}
	r.pipeline.SetEncStatus(EncOK)
	return h, payload, nil
}

func (r *Receiver) decodeSamples(h frame.Header, payload []byte) ([]float32, error) {
	format := audio.SampleFormat(h.Fmt)
	if format == audio.FormatOpus {
		if r.cfg.Codec == nil {
			return nil, audio.ErrUnknownFormat
		}
		pcm, _, err := r.cfg.Codec.DecodeFrame(payload)
		if err != nil {
			return nil, err
		}
		return audio.I16ToF32(pcm), nil
	}
	return audio.ToFloat32(payload, format)
}
