// Package noise implements the opportunistic-encryption handshake used by
// the control channel when an operator wants confidentiality without
// provisioning a pre-shared key.
//
// # Noise_NN Pattern
//
// Neither side has a static key; the handshake is two ephemeral-only
// Diffie-Hellman messages:
//
//	Initiator                 Responder
//	-> e
//	                          <- e, ee
//	[session established]
//
// This buys confidentiality against passive LAN sniffing, not
// authentication: an active attacker positioned before the first message
// could complete separate handshakes with each side. That is an accepted
// tradeoff given RemoteMic never authenticates clients in the PSK path
// either.
//
// Example usage:
//
//	// Server (responder)
//	hs, _ := noise.NewNNHandshake(noise.Responder)
//	complete, _ := hs.ReadMessage(msg1)
//	msg2, complete, _ := hs.WriteMessage()
//	key, _ := hs.SessionKey()
//
//	// Client (initiator)
//	hs, _ := noise.NewNNHandshake(noise.Initiator)
//	msg1, _, _ := hs.WriteMessage()
//	// send msg1, receive msg2
//	complete, _ := hs.ReadMessage(msg2)
//	key, _ := hs.SessionKey()
//
// # Cipher Suite
//
// DH25519 (X25519), ChaCha20-Poly1305, SHA256 — the same suite the
// flynn/noise library uses for its authenticated IK/XX patterns, applied
// here without static keys.
package noise
