package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remotemic/crypto"
	"remotemic/frame"
)

type fakeDatagramReader struct {
	datagrams [][]byte
	i         int
}

func (f *fakeDatagramReader) ReadFrom(buf []byte) (int, error) {
	if f.i >= len(f.datagrams) {
		return 0, assert.AnError
	}
	n := copy(buf, f.datagrams[f.i])
	f.i++
	return n, nil
}

func (f *fakeDatagramReader) SetReadDeadline(t time.Time) error { return nil }

func TestReceiverPlainRoundTrip(t *testing.T) {
	payload := make([]byte, 8) // two f32 samples, little-endian zero = 0.0
	dg := frame.EncodePlain(0, uint8(1), 1, 48000, 0, payload)

	reader := &fakeDatagramReader{datagrams: [][]byte{dg}}
	pipeline := NewPipeline(&crypto.MockTimeProvider{CurrentTime: time.Unix(0, 0)})
	r := NewReceiver(ReceiverConfig{Conn: reader, Channels: 1}, pipeline)

	r.handleDatagram(dg)
	assert.Equal(t, uint64(1), pipeline.Received())
	assert.Equal(t, EncPlain, pipeline.EncStatus())
}

func TestReceiverAEADTamperSetsFailedThenRecovers(t *testing.T) {
	key := [32]byte{7}
	salt := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	pipeline := NewPipeline(&crypto.MockTimeProvider{CurrentTime: time.Unix(0, 0)})
	r := NewReceiver(ReceiverConfig{Key: &key, Salt: salt, Channels: 1}, pipeline)

	good, err := frame.EncodeSealed(key, salt, 0, 1, 1, 48000, 0, make([]byte, 8))
	require.NoError(t, err)
	r.handleDatagram(good)
	assert.Equal(t, EncOK, pipeline.EncStatus())

	tampered, err := frame.EncodeSealed(key, salt, 1, 1, 1, 48000, uint64(time.Millisecond), make([]byte, 8))
	require.NoError(t, err)
	tampered[len(tampered)-1] ^= 0xFF // flip a ciphertext byte
	r.handleDatagram(tampered)
	assert.Equal(t, uint64(1), pipeline.DecryptFail())
	assert.Equal(t, EncFailed, pipeline.EncStatus())

	recovered, err := frame.EncodeSealed(key, salt, 2, 1, 1, 48000, uint64(2*time.Millisecond), make([]byte, 8))
	require.NoError(t, err)
	r.handleDatagram(recovered)
	assert.Equal(t, EncOK, pipeline.EncStatus())
}

func TestReceiverDropsFrameWhenEncryptionActiveButNoKeyHeld(t *testing.T) {
	key := [32]byte{7}
	salt := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	sealed, err := frame.EncodeSealed(key, salt, 0, 1, 1, 48000, 0, make([]byte, 8))
	require.NoError(t, err)

	pipeline := NewPipeline(&crypto.MockTimeProvider{CurrentTime: time.Unix(0, 0)})
	r := NewReceiver(ReceiverConfig{EncryptionActive: true, Channels: 1}, pipeline)

	r.handleDatagram(sealed)
	assert.Equal(t, uint64(0), pipeline.Received())
	assert.Equal(t, uint64(1), pipeline.DecryptFail())
	assert.Equal(t, EncFailed, pipeline.EncStatus())
}

func TestReceiverDropsBadMagic(t *testing.T) {
	pipeline := NewPipeline(nil)
	r := NewReceiver(ReceiverConfig{Channels: 1}, pipeline)

	r.handleDatagram([]byte{0, 0, 0, 0})
	assert.Equal(t, uint64(0), pipeline.Received())
}
