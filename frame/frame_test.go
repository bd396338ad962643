package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePlainRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	data := EncodePlain(42, 1, 2, 48000, 123456789, payload)

	assert.Equal(t, Magic[0], data[0])
	assert.Equal(t, Magic[1], data[1])
	assert.GreaterOrEqual(t, len(data), HeaderSize+len(payload))

	h, decoded, err := Decode(data, nil, [8]byte{})
	require.NoError(t, err)
	assert.Equal(t, uint32(42), h.Seq)
	assert.Equal(t, uint64(123456789), h.TsNs)
	assert.Equal(t, payload, decoded)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := EncodePlain(1, 1, 1, 48000, 0, []byte{9, 9})
	data[0] = 'X'

	_, _, err := Decode(data, nil, [8]byte{})
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeRejectsShortDatagram(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3}, nil, [8]byte{})
	assert.ErrorIs(t, err, ErrShortDatagram)
}

func TestSealOpenRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	salt := [8]byte{1, 1, 2, 3, 5, 8, 13, 21}
	plaintext := []byte("hello remotemic")

	sealed, err := EncodeSealed(key, salt, 7, 1, 2, 48000, 999, plaintext)
	require.NoError(t, err)

	h, opened, err := Decode(sealed, &key, salt)
	require.NoError(t, err)
	assert.Equal(t, uint16(len(plaintext)+TagSize), h.PayloadLen)
	assert.Equal(t, plaintext, opened)
}

func TestSealOpenRejectsTamperedCiphertext(t *testing.T) {
	var key [32]byte
	salt := [8]byte{}
	sealed, err := EncodeSealed(key, salt, 7, 1, 2, 48000, 999, []byte("payload"))
	require.NoError(t, err)

	sealed[HeaderSize] ^= 0xFF

	_, _, err = Decode(sealed, &key, salt)
	assert.Error(t, err)
}

func TestSealOpenRejectsTamperedHeader(t *testing.T) {
	var key [32]byte
	salt := [8]byte{}
	sealed, err := EncodeSealed(key, salt, 7, 1, 2, 48000, 999, []byte("payload"))
	require.NoError(t, err)

	sealed[2] ^= 0xFF // flip a bit in seq, part of the AAD

	_, _, err = Decode(sealed, &key, salt)
	assert.Error(t, err)
}

func TestBuildNonceReservedBytesZero(t *testing.T) {
	nonce := BuildNonce([8]byte{1, 2, 3, 4, 5, 6, 7, 8}, 100, 200)
	assert.Equal(t, [4]byte{0, 0, 0, 0}, [4]byte(nonce[20:24]))
}
