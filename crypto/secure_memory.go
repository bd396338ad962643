package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe overwrites the contents of a byte slice containing sensitive
// data. Returns an error if data is nil.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	zeros := make([]byte, len(data))
	subtle.ConstantTimeCompare(data, zeros)
	copy(data, zeros)

	runtime.KeepAlive(data)
	runtime.KeepAlive(zeros)

	return nil
}

// ZeroBytes erases the contents of a byte slice, ignoring any error from
// SecureWipe (nil slices are a no-op for callers that don't want to check).
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}
