// Package mcast implements the server's multicast send loop: it drains
// filled capture buffers, packetizes them into frames, optionally seals
// them, and fires them at the session's multicast group with no
// back-pressure onto the capture side.
package mcast

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"remotemic/bufpool"
	"remotemic/frame"
)

// DefaultTTL is the multicast hop count used when the caller doesn't
// override it; comfortably above the single-hop LAN minimum.
const DefaultTTL = 32

// datagramSender is the narrow interface the send loop needs from
// *transport.MulticastConn, kept separate so tests can substitute a
// fake without opening a real socket.
type datagramSender interface {
	Send(data []byte) error
}

// SenderConfig configures one multicast send loop.
type SenderConfig struct {
	Pool       *bufpool.Pool
	Conn       datagramSender
	SampleRate uint32
	Channels   uint8
	FmtCode    uint8
	Key        *[32]byte // nil disables AEAD sealing
	Salt       [8]byte
	StartedAt  time.Time // server_start_instant, on a monotonic clock
}

// Sender runs the server's single multicast send loop, shared by all
// sessions, described in the
// per-frame send sequence: acquire a filled slot, assign seq/ts_ns, seal
// if configured, send, return the slot.
type Sender struct {
	cfg SenderConfig

	nextSeq uint32 // wraps at 2^32 by plain overflow

	keyMu sync.RWMutex
	key   *[32]byte
	salt  [8]byte

	sent   uint64
	failed uint64
}

// SetKey updates the AEAD key and salt applied to frames sent after the
// call returns. A nil key switches the sender to plain mode. This is
// how the control channel's handshake completion (PSK-derived or
// opportunistic Noise) reaches an already-running send loop; the
// stream has exactly one active key at a time, matching the single
// shared multicast socket.
func (s *Sender) SetKey(key *[32]byte, salt [8]byte) {
	s.keyMu.Lock()
	s.key, s.salt = key, salt
	s.keyMu.Unlock()
}

func (s *Sender) currentKey() (*[32]byte, [8]byte) {
	s.keyMu.RLock()
	defer s.keyMu.RUnlock()
	return s.key, s.salt
}

// NewSender creates a sender bound to the given pool and multicast
// connection. The caller owns starting and stopping Run in its own
// goroutine.
func NewSender(cfg SenderConfig) *Sender {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &Sender{cfg: cfg, key: cfg.Key, salt: cfg.Salt}
}

// Run drains the pool's filled queue until stop is closed, sending one
// datagram per frame. It never blocks capture: a send error drops the
// frame, matching the real-time no-retry, no-queue policy for outbound
// datagrams. Each failure is logged at debug level; the log is not
// rate-limited.
func (s *Sender) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		idx, buf := s.cfg.Pool.RecvFilled()
		s.sendOne(buf)
		s.cfg.Pool.Release(idx)
	}
}

// sendOne packetizes and transmits the PCM payload held in a filled
// slot. The slot carries a 4-byte big-endian payload_len prefix ahead of
// the raw PCM bytes, written by the capture callback.
func (s *Sender) sendOne(slot []byte) {
	if len(slot) < 4 {
		return
	}
	payloadLen := binary.BigEndian.Uint32(slot[:4])
	if int(payloadLen) > len(slot)-4 {
		logrus.WithFields(logrus.Fields{
			"function": "Sender.sendOne",
		}).Warn("capture slot payload_len exceeds slot capacity, dropping")
		return
	}
	payload := slot[4 : 4+payloadLen]

	seq := s.nextSeq
	s.nextSeq++
	tsNs := uint64(time.Since(s.cfg.StartedAt).Nanoseconds())

	datagram, err := s.buildDatagram(seq, tsNs, payload)
	if err != nil {
		atomic.AddUint64(&s.failed, 1)
		logrus.WithFields(logrus.Fields{
			"function": "Sender.sendOne",
			"seq":      seq,
			"error":    err.Error(),
		}).Warn("failed to build frame, dropping")
		return
	}

	if err := s.cfg.Conn.Send(datagram); err != nil {
		atomic.AddUint64(&s.failed, 1)
		logrus.WithFields(logrus.Fields{
			"function": "Sender.sendOne",
			"seq":      seq,
			"error":    err.Error(),
		}).Debug("multicast send failed, dropping frame")
		return
	}

	atomic.AddUint64(&s.sent, 1)
}

func (s *Sender) buildDatagram(seq uint32, tsNs uint64, payload []byte) ([]byte, error) {
	key, salt := s.currentKey()
	if key == nil {
		return frame.EncodePlain(seq, s.cfg.FmtCode, s.cfg.Channels, s.cfg.SampleRate, tsNs, payload), nil
	}

	sealed, err := frame.EncodeSealed(*key, salt, seq, s.cfg.FmtCode, s.cfg.Channels, s.cfg.SampleRate, tsNs, payload)
	if err != nil {
		return nil, fmt.Errorf("remotemic: seal frame: %w", err)
	}
	return sealed, nil
}

// Stats returns sent/failed frame counters for diagnostics.
func (s *Sender) Stats() (sent, failed uint64) {
	return atomic.LoadUint64(&s.sent), atomic.LoadUint64(&s.failed)
}
