package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// SaltSize is the length in bytes of the per-session salt exchanged in the
// handshake response line (encoded as 16 lowercase hex chars on the wire).
const SaltSize = 8

// SessionKeySize is the length in bytes of the derived AEAD key.
const SessionKeySize = 32

// GenerateSalt produces a fresh random per-session salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("remotemic: generate salt: %w", err)
	}
	return salt, nil
}

// DeriveSessionKey computes the symmetric AEAD key from a pre-shared key
// and a session salt: the first 32 bytes of SHA-256(psk || salt). Server
// and client must produce byte-identical output given identical inputs.
func DeriveSessionKey(psk, salt []byte) [SessionKeySize]byte {
	logger := NewLogger("DeriveSessionKey")
	logger.WithFields(SecureFieldHash(salt, "salt")).Debug("deriving session key")

	h := sha256.New()
	h.Write(psk)
	h.Write(salt)
	sum := h.Sum(nil)

	var key [SessionKeySize]byte
	copy(key[:], sum[:SessionKeySize])
	return key
}
