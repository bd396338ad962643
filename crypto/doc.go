// Package crypto implements the cryptographic primitives RemoteMic needs
// outside of the frame AEAD itself: pre-shared-key session key derivation,
// secure memory wiping, an injectable time source for deterministic
// testing, and a structured logging helper used inside this package.
//
// # Session Key Derivation
//
//	salt, _ := crypto.GenerateSalt()
//	key := crypto.DeriveSessionKey([]byte(psk), salt)
//
// Server and client derive identical keys from the same PSK and salt; the
// salt travels in the cleartext handshake line, the PSK never does.
//
// # Secure Memory Handling
//
//	defer crypto.ZeroBytes(sessionKey[:])
//
// # Deterministic Testing
//
//	mockTime := &crypto.MockTimeProvider{CurrentTime: time.Unix(1000, 0)}
//	crypto.SetDefaultTimeProvider(mockTime)
package crypto
