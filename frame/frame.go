// Package frame implements the 22-byte wire header and optional
// XChaCha20-Poly1305 AEAD sealing used by every RemoteMic UDP datagram.
//
// Wire format (big-endian, fixed 22-byte header):
//
//	Offset  Size  Field
//	0       2     magic
//	2       4     seq (u32)
//	6       1     fmt
//	7       1     ch
//	8       4     rate (u32)
//	12      2     payload_len
//	14      8     ts_ns (u64)
//
// The header doubles as AEAD associated data: tampering with sequence or
// timestamp invalidates the authentication tag.
package frame

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Magic is the 2-byte constant every datagram begins with.
var Magic = [2]byte{'R', 'M'}

// HeaderSize is the fixed size in bytes of the frame header.
const HeaderSize = 22

// TagSize is the XChaCha20-Poly1305 authentication tag length.
const TagSize = 16

// NonceSize is the XChaCha20-Poly1305 extended nonce length.
const NonceSize = chacha20poly1305.NonceSizeX

// ErrBadMagic is returned when a datagram's magic bytes don't match.
var ErrBadMagic = fmt.Errorf("remotemic: bad frame magic")

// ErrShortDatagram is returned when a datagram is shorter than the header
// plus its declared payload length.
var ErrShortDatagram = fmt.Errorf("remotemic: short datagram")

// Header is the fixed-size metadata prefix of every frame.
type Header struct {
	Seq        uint32
	Fmt        uint8
	Ch         uint8
	Rate       uint32
	PayloadLen uint16
	TsNs       uint64
}

// Encode serializes the header into its 22-byte wire form.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	buf[0], buf[1] = Magic[0], Magic[1]
	binary.BigEndian.PutUint32(buf[2:6], h.Seq)
	buf[6] = h.Fmt
	buf[7] = h.Ch
	binary.BigEndian.PutUint32(buf[8:12], h.Rate)
	binary.BigEndian.PutUint16(buf[12:14], h.PayloadLen)
	binary.BigEndian.PutUint64(buf[14:22], h.TsNs)
	return buf
}

// DecodeHeader parses the first 22 bytes of data as a Header.
func DecodeHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, ErrShortDatagram
	}
	if data[0] != Magic[0] || data[1] != Magic[1] {
		return h, ErrBadMagic
	}
	h.Seq = binary.BigEndian.Uint32(data[2:6])
	h.Fmt = data[6]
	h.Ch = data[7]
	h.Rate = binary.BigEndian.Uint32(data[8:12])
	h.PayloadLen = binary.BigEndian.Uint16(data[12:14])
	h.TsNs = binary.BigEndian.Uint64(data[14:22])
	return h, nil
}

// BuildNonce constructs the 24-byte XChaCha20-Poly1305 nonce from the
// session salt, sequence number, and timestamp: salt[0:8] || seq_be32 ||
// ts_ns_be64 || 4 zero bytes. The reserved tail bytes are fixed to zero.
func BuildNonce(salt [8]byte, seq uint32, tsNs uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[0:8], salt[:])
	binary.BigEndian.PutUint32(nonce[8:12], seq)
	binary.BigEndian.PutUint64(nonce[12:20], tsNs)
	// nonce[20:24] left zero.
	return nonce
}

// EncodePlain serializes a plaintext frame: header with payload_len set
// to len(payload), followed by the payload verbatim.
func EncodePlain(seq uint32, fmtCode, ch uint8, rate uint32, tsNs uint64, payload []byte) []byte {
	h := Header{
		Seq:        seq,
		Fmt:        fmtCode,
		Ch:         ch,
		Rate:       rate,
		PayloadLen: uint16(len(payload)),
		TsNs:       tsNs,
	}
	hdr := h.Encode()
	out := make([]byte, HeaderSize+len(payload))
	copy(out, hdr[:])
	copy(out[HeaderSize:], payload)
	return out
}

// EncodeSealed builds an AEAD-sealed frame: the header (with payload_len
// = plaintext length + 16) serves as associated data, and the ciphertext
// plus tag follow it.
func EncodeSealed(key [32]byte, salt [8]byte, seq uint32, fmtCode, ch uint8, rate uint32, tsNs uint64, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("remotemic: init AEAD: %w", err)
	}

	h := Header{
		Seq:        seq,
		Fmt:        fmtCode,
		Ch:         ch,
		Rate:       rate,
		PayloadLen: uint16(len(plaintext) + TagSize),
		TsNs:       tsNs,
	}
	hdr := h.Encode()

	nonce := BuildNonce(salt, seq, tsNs)
	sealed := aead.Seal(nil, nonce[:], plaintext, hdr[:])

	out := make([]byte, HeaderSize+len(sealed))
	copy(out, hdr[:])
	copy(out[HeaderSize:], sealed)
	return out, nil
}

// Decode parses a datagram's header and, if key is non-nil, opens the
// AEAD-sealed payload; otherwise it returns the payload unmodified
// (plain mode). The header is validated for magic and declared length
// before any decryption is attempted.
func Decode(data []byte, key *[32]byte, salt [8]byte) (Header, []byte, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return h, nil, err
	}
	if len(data) < HeaderSize+int(h.PayloadLen) {
		return h, nil, ErrShortDatagram
	}
	raw := data[HeaderSize : HeaderSize+int(h.PayloadLen)]

	if key == nil {
		return h, raw, nil
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return h, nil, fmt.Errorf("remotemic: init AEAD: %w", err)
	}

	nonce := BuildNonce(salt, h.Seq, h.TsNs)
	plaintext, err := aead.Open(nil, nonce[:], raw, data[:HeaderSize])
	if err != nil {
		return h, nil, fmt.Errorf("remotemic: AEAD open failed: %w", err)
	}
	return h, plaintext, nil
}
